package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvProduction  Environment = "prod"
)

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

const minSecretKeyLength = 32

var weakSecretPatterns = []string{"password", "secret", "test", "example", "default", "change"}

type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Cookie    CookieConfig    `envPrefix:"COOKIE_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	CORS      CORSConfig      `envPrefix:"CORS_"`
	Docs      DocsConfig      `envPrefix:"DOCS_"`
	Telemetry TelemetryConfig `envPrefix:"OTEL_"`
}

type AppConfig struct {
	Name string      `env:"NAME" envDefault:"authd"`
	Env  Environment `env:"ENV" envDefault:"dev"`
	// LocalProd runs production semantics over plain http on a developer machine.
	LocalProd        bool   `env:"LOCAL_PROD" envDefault:"false"`
	FrontendResetURL string `env:"FRONTEND_RESET_URL"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Host            string        `env:"HOST" envDefault:"localhost"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BodyLimit       string        `env:"BODY_LIMIT" envDefault:"64K"`
	SecureHeaders   bool          `env:"SECURE_HEADERS" envDefault:"true"`
	EnableHSTS      bool          `env:"ENABLE_HSTS" envDefault:"false"`
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is believed. Without
	// any, the client IP is the peer address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"authd.db"`
	// Migrate is one of auto (gorm AutoMigrate), goose (embedded SQL migrations) or none.
	Migrate string `env:"MIGRATE" envDefault:"auto"`
}

type JWTConfig struct {
	SecretKey     string        `env:"SECRET_KEY"`
	Algorithm     string        `env:"ALGORITHM" envDefault:"HS256"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"336h"`
	Issuer        string        `env:"ISSUER" envDefault:"authd"`
}

type AuthConfig struct {
	BcryptCost               int           `env:"BCRYPT_COST" envDefault:"12"`
	MinPasswordLength        int           `env:"MIN_PASSWORD_LENGTH" envDefault:"4"`
	MinNewPasswordLength     int           `env:"MIN_NEW_PASSWORD_LENGTH" envDefault:"8"`
	PasswordResetExpiry      time.Duration `env:"PASSWORD_RESET_EXPIRY" envDefault:"15m"`
	PasswordResetTokenLength int           `env:"PASSWORD_RESET_TOKEN_LENGTH" envDefault:"32"`
}

type CookieConfig struct {
	Name     string `env:"NAME" envDefault:"refresh_token"`
	Path     string `env:"PATH" envDefault:"/"`
	Domain   string `env:"DOMAIN"`
	Secure   bool   `env:"SECURE" envDefault:"false"`
	SameSite string `env:"SAMESITE" envDefault:"lax"`
}

type MailConfig struct {
	Host         string `env:"HOST"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	FromAddress  string `env:"FROM_ADDRESS"`
	FromName     string `env:"FROM_NAME"`
	Encryption   string `env:"ENCRYPTION" envDefault:"starttls"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

type RateLimitConfig struct {
	Enabled            bool          `env:"ENABLED" envDefault:"true"`
	Store              string        `env:"STORE" envDefault:"memory"`
	Period             time.Duration `env:"PERIOD" envDefault:"1m"`
	LoginRate          int           `env:"LOGIN_RATE" envDefault:"5"`
	ForgotPasswordRate int           `env:"FORGOT_PASSWORD_RATE" envDefault:"3"`
	ResetPasswordRate  int           `env:"RESET_PASSWORD_RATE" envDefault:"5"`
	CountMode          CountingMode  `env:"COUNT_MODE" envDefault:"all"`
}

type CORSConfig struct {
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowCredentials bool     `env:"ALLOW_CREDENTIALS" envDefault:"true"`
}

type DocsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Key     string `env:"KEY"`
}

type TelemetryConfig struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"authd"`
}

func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// LoadConfig reads an optional .env file and the process environment into cfg.
// A *Config is validated and hardened before it is returned.
func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		c.normalise()
		return c.Validate()
	}

	return nil
}

func (c *Config) normalise() {
	c.App.Env = Environment(strings.ToLower(strings.TrimSpace(string(c.App.Env))))
	c.Cookie.SameSite = strings.ToLower(strings.TrimSpace(c.Cookie.SameSite))

	if c.IsProduction() && !c.App.LocalProd {
		c.Cookie.Secure = true
		c.Server.SecureHeaders = true
		c.RateLimit.Enabled = true
	}
}

func (c *Config) Validate() error {
	if c.App.Env != EnvDevelopment && c.App.Env != EnvProduction {
		return fmt.Errorf("APP_ENV must be 'dev' or 'prod', got %q", c.App.Env)
	}

	if err := validateJWTConfig(&c.JWT); err != nil {
		return err
	}

	if err := validateAuthConfig(&c.Auth); err != nil {
		return err
	}

	switch c.Cookie.SameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("cookie SameSite must be: lax, strict, or none")
	}

	switch c.Database.Migrate {
	case "auto", "goose", "none":
	default:
		return fmt.Errorf("database migrate mode must be: auto, goose, or none")
	}

	if c.IsProduction() {
		if c.Docs.Enabled && c.Docs.Key == "" {
			return errors.New("DOCS_ENABLED=true in production but DOCS_KEY is missing")
		}
		if c.Mail.Host == "" || c.Mail.FromAddress == "" || c.App.FrontendResetURL == "" {
			return errors.New("production requires MAIL_HOST, MAIL_FROM_ADDRESS and APP_FRONTEND_RESET_URL")
		}
	}

	return nil
}

func validateJWTConfig(cfg *JWTConfig) error {
	if len(cfg.SecretKey) < minSecretKeyLength {
		return fmt.Errorf("JWT secret key must be at least %d characters long", minSecretKeyLength)
	}

	lower := strings.ToLower(cfg.SecretKey)
	for _, pattern := range weakSecretPatterns {
		if strings.Contains(lower, pattern) {
			return errors.New("JWT secret key contains weak patterns")
		}
	}

	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT algorithm must be one of HS256, HS384, HS512, got %q", cfg.Algorithm)
	}

	if cfg.AccessExpiry <= 0 || cfg.RefreshExpiry <= 0 {
		return errors.New("JWT access and refresh expiry must be positive")
	}

	return nil
}

func validateAuthConfig(cfg *AuthConfig) error {
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if cfg.PasswordResetExpiry <= 0 {
		return errors.New("password reset expiry must be positive")
	}

	if cfg.PasswordResetTokenLength < 16 {
		return errors.New("password reset token length must be at least 16 bytes")
	}

	if cfg.MinPasswordLength < 1 || cfg.MinNewPasswordLength < cfg.MinPasswordLength {
		return errors.New("password length policy is inconsistent")
	}

	return nil
}
