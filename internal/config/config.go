// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// minProductionSecretLength is the shortest JWT secret accepted in production.
const minProductionSecretLength = 32

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Redis (rate limits, chat streams)
	RedisURL string `env:"REDIS_URL,required"`

	// Sessions
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"`

	// Only addresses at this domain may sign up.
	AllowedEmailDomain string `env:"ALLOWED_EMAIL_DOMAIN" envDefault:"usc.edu"`

	// Zone the departure-time picker is read in.
	SlotTimezone string `env:"SLOT_TIMEZONE" envDefault:"America/Los_Angeles"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitEnabled       bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitUserPerMinute int  `env:"RATE_LIMIT_USER_PER_MINUTE" envDefault:"120"`
	RateLimitUserBurst     int  `env:"RATE_LIMIT_USER_BURST" envDefault:"30"`
	RateLimitAuthRPS       int  `env:"RATE_LIMIT_AUTH_RPS" envDefault:"2"`
	RateLimitAuthBurst     int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"10"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
	// Receipt upload size limit in bytes (default 5MB)
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"5242880"`

	// Receipt OCR
	OCRURL         string        `env:"OCR_URL" envDefault:"https://api.ocr.space/parse/image"`
	OCRAPIKey      string        `env:"OCR_API_KEY"`
	OCRTimeout     time.Duration `env:"OCR_TIMEOUT" envDefault:"30s"`
	OCRMaxAttempts int           `env:"OCR_MAX_ATTEMPTS" envDefault:"3"`
	OCRRatePerSec  float64       `env:"OCR_RATE_PER_SEC" envDefault:"2"`
	OCRBurst       int           `env:"OCR_BURST" envDefault:"4"`

	// Group teardown
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"15m"`
	GroupRetention  time.Duration `env:"GROUP_RETENTION" envDefault:"24h"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Location returns the slot time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SlotTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SLOT_TIMEZONE %q: %w", c.SlotTimezone, err)
	}
	return loc, nil
}

// Validate checks settings that env tags cannot express.
func (c *Config) Validate() error {
	if c.IsProduction() && len(c.JWTSecret) < minProductionSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLength)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if strings.TrimSpace(c.AllowedEmailDomain) == "" {
		return errors.New("ALLOWED_EMAIL_DOMAIN must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.CleanupInterval <= 0 {
		return errors.New("CLEANUP_INTERVAL must be positive")
	}
	if c.GroupRetention < 0 {
		return errors.New("GROUP_RETENTION must not be negative")
	}
	switch c.LogFormat {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("LOG_FORMAT %q must be json, text or pretty", c.LogFormat)
	}
	return nil
}

// Load parses environment variables and returns a Config.
// Outside production a .env file in the working directory is read first;
// variables already set in the environment win.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
