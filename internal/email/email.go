package email

import (
	"bytes"
	"fmt"
	"html/template"
	"math/rand"
	"net/smtp"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func NewSender(host, port, username, password, from string) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

// GenerateCode returns a 6-digit numeric one-time code.
func GenerateCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}

const codeTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #6200ee; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .code { font-size: 2em; letter-spacing: 0.3em; text-align: center; padding: 20px; font-weight: bold; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Email verification</h1>
        </div>
        <p>Use this code to confirm your email address. It expires in 10 minutes.</p>
        <div class="code">{{.Code}}</div>
        <div class="footer">
            <p>If you didn't request this, you can safely ignore this email.</p>
        </div>
    </div>
</body>
</html>
`

// SendVerificationCode mails a one-time code to the given address.
func (s *Sender) SendVerificationCode(to, code string) error {
	t, err := template.New("code").Parse(codeTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, map[string]string{"Code": code}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	headers := map[string]string{
		"From":         s.From,
		"To":           to,
		"Subject":      "Your verification code",
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"UTF-8\"",
	}

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body.String()

	// Without a configured host, log the code instead of sending (dev mode).
	if s.Host == "" {
		fmt.Println("==================================================")
		fmt.Printf("MOCK EMAIL TO: %s\n", to)
		fmt.Printf("VERIFICATION CODE: %s\n", code)
		fmt.Println("==================================================")
		return nil
	}

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(message))
}
