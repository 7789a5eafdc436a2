package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string

	DBDriver string
	DBDSN    string

	CookieSecret string
	SessionTTL   time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string

	CodeTTL        time.Duration
	SearchMinQuery int
	PageSize       int
}

// Load reads configuration from the environment, with a .env file as fallback.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return Config{
		Addr:           getEnv("HTTP_ADDR", ":8080"),
		DBDriver:       getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:          getEnv("DB_DSN", "messenger.db"),
		CookieSecret:   getEnv("COOKIE_SECRET", "insecure-dev-secret-change-me"),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnv("SMTP_PORT", "587"),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		FromEmail:      getEnv("FROM_EMAIL", "no-reply@localhost"),
		CodeTTL:        getEnvAsDuration("CODE_TTL", 10*time.Minute),
		SearchMinQuery: getEnvAsInt("SEARCH_MIN_QUERY", 2),
		PageSize:       getEnvAsInt("PAGE_SIZE", 50),
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
