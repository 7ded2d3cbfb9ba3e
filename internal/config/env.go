package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env/.env.local without overriding variables already
// present in the process environment.
func loadEnvFiles() {
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// applyEnvOverrides layers environment variables over file values. The
// variable names mirror the deployment's existing conventions.
func applyEnvOverrides(c *Config) {
	setString(&c.Auth.Secret, "APP_SECRET")
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.GitHub.Username, "GITHUB_USERNAME")
	setString(&c.GitHub.APIURL, "GITHUB_API_URL")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Server.Host, "HOST")
	setInt(&c.Server.Port, "PORT")
	setInt(&c.Retry.Notify.MaxAttempts, "MAX_RETRIES")
	setSeconds(&c.Retry.Notify.InitialDelay, "INITIAL_RETRY_DELAY")
	setSeconds(&c.Retry.Notify.MaxDelay, "MAX_RETRY_DELAY")
	setString(&c.Events.NATSURL, "NATS_URL")
	setString(&c.History.Path, "HISTORY_PATH")
	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setSeconds parses a float seconds value (the legacy env convention).
func setSeconds(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			*dst = Duration(time.Duration(f * float64(time.Second)))
		}
	}
}
