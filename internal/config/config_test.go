package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"DATABASE_PATH", "LOG_LEVEL", "LOG_FORMAT", "SHOPS_FILE", "CLIENT_URL", "METRICS_ADDR",
	"INGEST_SCHEDULE", "NOTIFY_SCHEDULE", "CLEANUP_SCHEDULE", "TIMEZONE",
	"RETENTION_DAYS", "MATCH_LIMIT", "SEND_INTERVAL",
	"INGEST_CONCURRENCY", "FETCH_TIMEOUT",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "MAIL_FROM", "MAIL_TIMEOUT",
	"TELEGRAM_BOT_TOKEN", "ALLOWED_USERS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func defaults() *Config {
	return &Config{
		DatabasePath: "./data/winedeals.db",
		LogLevel:     "info",
		LogFormat:    "text",
		ClientURL:    "http://localhost:3000",
		MetricsAddr:  ":9090",
		Schedule: Schedule{
			Ingest:        "CRON_TZ=America/New_York 30 7 * * *",
			Notify:        "CRON_TZ=America/New_York 0 8 * * *",
			Cleanup:       "CRON_TZ=America/New_York 0 2 * * *",
			Timezone:      "America/New_York",
			RetentionDays: 30,
			MatchLimit:    10,
			SendInterval:  time.Second,
		},
		Ingest: Ingest{Concurrency: 2, FetchTimeout: 10 * time.Second},
		Mail:   Mail{Port: 587, Timeout: 30 * time.Second},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func(c *Config)
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: func(*Config) {},
		},
		{
			name: "all values set",
			env: map[string]string{
				"DATABASE_PATH":      "/tmp/deals.db",
				"LOG_LEVEL":          "debug",
				"LOG_FORMAT":         "json",
				"TIMEZONE":           "UTC",
				"RETENTION_DAYS":     "14",
				"SEND_INTERVAL":      "250ms",
				"INGEST_CONCURRENCY": "4",
				"SMTP_HOST":          "smtp.example.com",
				"SMTP_USERNAME":      "bot",
				"SMTP_PASSWORD":      "secret",
				"MAIL_FROM":          "deals@winedeals.com",
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "111,222,333",
			},
			want: func(c *Config) {
				c.DatabasePath = "/tmp/deals.db"
				c.LogLevel = "debug"
				c.LogFormat = "json"
				c.Schedule.Timezone = "UTC"
				c.Schedule.RetentionDays = 14
				c.Schedule.SendInterval = 250 * time.Millisecond
				c.Ingest.Concurrency = 4
				c.Mail.Host = "smtp.example.com"
				c.Mail.Username = "bot"
				c.Mail.Password = "secret"
				c.Mail.From = "deals@winedeals.com"
				c.Telegram = Telegram{BotToken: "tok", AllowedUsers: UserIDs{111, 222, 333}}
			},
		},
		{
			name: "allowed users with spaces",
			env:  map[string]string{"ALLOWED_USERS": " 10 , 20 , "},
			want: func(c *Config) {
				c.Telegram.AllowedUsers = UserIDs{10, 20}
			},
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "smtp host without sender",
			env:     map[string]string{"SMTP_HOST": "smtp.example.com"},
			wantErr: true,
		},
		{
			name:    "non-positive retention",
			env:     map[string]string{"RETENTION_DAYS": "0"},
			wantErr: true,
		},
		{
			name:    "unknown log format",
			env:     map[string]string{"LOG_FORMAT": "xml"},
			wantErr: true,
		},
		{
			name:    "unknown timezone",
			env:     map[string]string{"TIMEZONE": "Mars/Olympus"},
			wantErr: true,
		},
		{
			name:    "malformed duration",
			env:     map[string]string{"SEND_INTERVAL": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := defaults()
			tt.want(want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers UserIDs
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: UserIDs{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: UserIDs{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Telegram: Telegram{AllowedUsers: tt.allowedUsers}}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	c := defaults()
	if got := c.Location().String(); got != "America/New_York" {
		t.Errorf("Location() = %q, want America/New_York", got)
	}
	c.Schedule.Timezone = "Nowhere/Special"
	if got := c.Location(); got != time.UTC {
		t.Errorf("Location() = %v, want UTC fallback", got)
	}
}
