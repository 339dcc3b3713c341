package testutils

import (
	"time"

	"github.com/tech-arch1tect/authd/config"
	"golang.org/x/crypto/bcrypt"
)

// TestSecretKey passes the production secret policy so tests may call Validate.
const TestSecretKey = "k7Qp2vX9mR4tL8wZ3nB6yH1jF5cD0sGa"

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:             "authd-test",
			Env:              config.EnvDevelopment,
			FrontendResetURL: "https://app.local/reset-password",
		},
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            "0",
			ShutdownTimeout: 5 * time.Second,
			BodyLimit:       "64K",
			SecureHeaders:   true,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:  "sqlite",
			DSN:     ":memory:",
			Migrate: "auto",
		},
		JWT: config.JWTConfig{
			SecretKey:     TestSecretKey,
			Algorithm:     "HS256",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 14 * 24 * time.Hour,
			Issuer:        "authd-test",
		},
		Auth: config.AuthConfig{
			BcryptCost:               bcrypt.MinCost,
			MinPasswordLength:        4,
			MinNewPasswordLength:     8,
			PasswordResetExpiry:      15 * time.Minute,
			PasswordResetTokenLength: 32,
		},
		Cookie: config.CookieConfig{
			Name:     "refresh_token",
			Path:     "/",
			SameSite: "lax",
		},
		RateLimit: config.RateLimitConfig{
			Enabled:            false,
			Store:              "memory",
			Period:             time.Minute,
			LoginRate:          5,
			ForgotPasswordRate: 3,
			ResetPasswordRate:  5,
			CountMode:          config.CountAll,
		},
		Telemetry: config.TelemetryConfig{
			ServiceName: "authd-test",
		},
	}
}

// GetProductionTestConfig is GetTestConfig with production semantics over plain http.
func GetProductionTestConfig() *config.Config {
	cfg := GetTestConfig()
	cfg.App.Env = config.EnvProduction
	cfg.App.LocalProd = true
	cfg.Mail.Host = "smtp.mail.local"
	cfg.Mail.FromAddress = "no-reply@mail.local"
	return cfg
}

var TestPasswords = struct {
	Valid    string
	NewValid string
	TooShort string
}{
	Valid:    "pw1234",
	NewValid: "n3w-passw0rd",
	TooShort: "abc",
}

var TestUsers = struct {
	Email    string
	Password string
}{
	Email:    "u@a.com",
	Password: "pw1234",
}
