// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zoneinfo for TIMEZONE and CRON_TZ

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/winedeals.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	ShopsFile    string `env:"SHOPS_FILE"`
	ClientURL    string `env:"CLIENT_URL" envDefault:"http://localhost:3000"`
	MetricsAddr  string `env:"METRICS_ADDR" envDefault:":9090"`

	Schedule Schedule
	Ingest   Ingest
	Mail     Mail
	Telegram Telegram
}

// Schedule holds the cron specs of the three triggers and notification policy.
type Schedule struct {
	Ingest        string        `env:"INGEST_SCHEDULE" envDefault:"CRON_TZ=America/New_York 30 7 * * *"`
	Notify        string        `env:"NOTIFY_SCHEDULE" envDefault:"CRON_TZ=America/New_York 0 8 * * *"`
	Cleanup       string        `env:"CLEANUP_SCHEDULE" envDefault:"CRON_TZ=America/New_York 0 2 * * *"`
	Timezone      string        `env:"TIMEZONE" envDefault:"America/New_York"`
	RetentionDays int           `env:"RETENTION_DAYS" envDefault:"30"`
	MatchLimit    int           `env:"MATCH_LIMIT" envDefault:"10"`
	SendInterval  time.Duration `env:"SEND_INTERVAL" envDefault:"1s"`
}

// Ingest holds the retailer fetch settings.
type Ingest struct {
	Concurrency  int           `env:"INGEST_CONCURRENCY" envDefault:"2"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
}

// Mail holds the SMTP relay settings. An empty host selects the log transport.
type Mail struct {
	Host     string        `env:"SMTP_HOST"`
	Port     int           `env:"SMTP_PORT" envDefault:"587"`
	Username string        `env:"SMTP_USERNAME"`
	Password string        `env:"SMTP_PASSWORD"`
	From     string        `env:"MAIL_FROM"`
	Timeout  time.Duration `env:"MAIL_TIMEOUT" envDefault:"30s"`
}

// Telegram holds the operator console settings. An empty token disables it.
type Telegram struct {
	BotToken     string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers UserIDs `env:"ALLOWED_USERS"`
}

// UserIDs is a comma separated list of Telegram user IDs.
type UserIDs []int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UserIDs) UnmarshalText(text []byte) error {
	var ids UserIDs
	for _, s := range strings.Split(string(text), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID %q: %w", s, err)
		}
		ids = append(ids, uid)
	}
	*u = ids
	return nil
}

// Load reads configuration from environment variables, after loading a .env
// file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabasePath == "":
		return fmt.Errorf("DATABASE_PATH must not be empty")
	case c.Schedule.RetentionDays <= 0:
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.Schedule.RetentionDays)
	case c.Schedule.MatchLimit <= 0:
		return fmt.Errorf("MATCH_LIMIT must be positive, got %d", c.Schedule.MatchLimit)
	case c.Ingest.Concurrency <= 0:
		return fmt.Errorf("INGEST_CONCURRENCY must be positive, got %d", c.Ingest.Concurrency)
	case c.Mail.Host != "" && c.Mail.From == "":
		return fmt.Errorf("MAIL_FROM is required when SMTP_HOST is set")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.Telegram.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.Telegram.AllowedUsers, userID)
}
