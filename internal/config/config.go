// Package config loads process settings from the environment and optional
// .env files.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Production is the ACADEMY_ENV value that enables strict settings.
const Production = "production"

// DefaultEnvFiles are read, when present, before the environment is parsed.
// Variables already set in the environment win.
var DefaultEnvFiles = []string{".env", ".env.local"}

// EmailOptions configures outbound notices. An empty ResendKey selects the
// logging sender.
type EmailOptions struct {
	ResendKey string `env:"ACADEMY_RESEND_KEY"`
	From      string `env:"ACADEMY_EMAIL_FROM" envDefault:"Academy <noreply@example.com>"`
	ReplyTo   string `env:"ACADEMY_REPLY_TO"`
}

// Config holds every setting the server and CLI read.
type Config struct {
	Env                 string        `env:"ACADEMY_ENV" envDefault:"development"`
	Addr                string        `env:"ACADEMY_ADDR" envDefault:":8080"`
	DBPath              string        `env:"ACADEMY_DB_PATH" envDefault:"academy.db"`
	LogLevel            string        `env:"ACADEMY_LOG_LEVEL" envDefault:"info"`
	SaveTimeout         time.Duration `env:"ACADEMY_SAVE_TIMEOUT" envDefault:"10s"`
	SlowQueryMs         int           `env:"ACADEMY_SLOW_QUERY_MS" envDefault:"50"`
	SlowRequestMs       int           `env:"ACADEMY_SLOW_REQUEST_MS" envDefault:"200"`
	RateLimitPerSecond  int           `env:"ACADEMY_RATE_LIMIT_PER_SECOND" envDefault:"10"`
	CSRFKey             string        `env:"ACADEMY_CSRF_KEY"`
	APIToken            string        `env:"ACADEMY_API_TOKEN"`
	MaxImportBytes      int64         `env:"ACADEMY_MAX_IMPORT_BYTES" envDefault:"1048576"`
	MetricsPath         string        `env:"ACADEMY_METRICS_PATH" envDefault:"/metrics"`
	// NoticeRetryInterval is how often serve retries queued cancellation notices.
	NoticeRetryInterval time.Duration `env:"ACADEMY_NOTICE_RETRY_INTERVAL" envDefault:"1m"`
	Email               EmailOptions
}

// LoadEnv loads the env files that exist and reports how many were read.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads envFiles (DefaultEnvFiles when none are given), parses the
// environment and validates the result.
// PRE: none
// POST: Returns a validated Config or an error naming the bad setting
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// IsProduction reports whether ACADEMY_ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == Production
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.SaveTimeout <= 0 {
		errs = append(errs, errors.New("ACADEMY_SAVE_TIMEOUT must be positive"))
	}
	if c.SlowQueryMs <= 0 {
		errs = append(errs, errors.New("ACADEMY_SLOW_QUERY_MS must be positive"))
	}
	if c.SlowRequestMs <= 0 {
		errs = append(errs, errors.New("ACADEMY_SLOW_REQUEST_MS must be positive"))
	}
	if c.RateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("ACADEMY_RATE_LIMIT_PER_SECOND must be positive"))
	}
	if c.MaxImportBytes <= 0 {
		errs = append(errs, errors.New("ACADEMY_MAX_IMPORT_BYTES must be positive"))
	}
	if c.NoticeRetryInterval <= 0 {
		errs = append(errs, errors.New("ACADEMY_NOTICE_RETRY_INTERVAL must be positive"))
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, errors.New("ACADEMY_METRICS_PATH must start with /"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CSRFKeyBytes(); err != nil {
		errs = append(errs, err)
	} else if c.CSRFKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("ACADEMY_CSRF_KEY is required in production"))
	}
	return errors.Join(errs...)
}

// CSRFKeyBytes decodes ACADEMY_CSRF_KEY. It returns nil, nil when unset.
func (c Config) CSRFKeyBytes() ([]byte, error) {
	if c.CSRFKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.CSRFKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("ACADEMY_CSRF_KEY must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// SlowQuery returns the slow query threshold.
func (c Config) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// SlowRequest returns the slow request threshold.
func (c Config) SlowRequest() time.Duration {
	return time.Duration(c.SlowRequestMs) * time.Millisecond
}

// NewLogger builds the process logger: JSON in production, text otherwise.
// PRE: c has been validated
// POST: Returns a logger writing to w at the configured level
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("ACADEMY_LOG_LEVEL %q is not debug, info, warn or error", s)
	}
	return level, nil
}
