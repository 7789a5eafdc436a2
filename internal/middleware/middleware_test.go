package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/viollenaki/nurtilek/internal/auth"
	"github.com/viollenaki/nurtilek/internal/session"
)

func TestAuth(t *testing.T) {
	sessions := session.NewManager(time.Hour)
	signer := auth.NewSigner("test-secret")

	token := sessions.Create()
	sessions.Bind(token, 123, "alice")

	anonToken := sessions.Create()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r) != 123 {
			t.Errorf("expected userID 123, got %v", UserID(r))
		}
		if Nickname(r) != "alice" {
			t.Errorf("expected nickname alice, got %q", Nickname(r))
		}
		if Token(r) != token {
			t.Error("expected session token in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		cookieValue    string
		expectedStatus int
	}{
		{
			name:           "Valid Session",
			cookieValue:    signer.Sign(token),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Anonymous Session",
			cookieValue:    signer.Sign(anonToken),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid Signature",
			cookieValue:    token + "|invalid_signature",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Unknown Token",
			cookieValue:    signer.Sign("not-a-session"),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookieValue})
			rr := httptest.NewRecorder()

			Auth(sessions, signer)(nextHandler).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					rr.Code, tt.expectedStatus)
			}
		})
	}

	t.Run("Missing Cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()

		Auth(sessions, signer)(nextHandler).ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("handler returned wrong status code: got %v want %v",
				rr.Code, http.StatusUnauthorized)
		}
	})
}

func TestLogging(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	Logging(nextHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("handler returned wrong status code: got %v want %v",
			rr.Code, http.StatusNotFound)
	}
}
