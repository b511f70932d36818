package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"winedeals/internal/clock"
	"winedeals/internal/model"
	"winedeals/migrations"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db    *sql.DB
	clock clock.Clock
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithClock overrides the clock used for timestamps and the merge window.
func WithClock(c clock.Clock) Option {
	return func(s *SQLite) {
		s.clock = c
	}
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
//
// The pool is limited to a single connection: SQLite serializes writers
// anyway, and it keeps ":memory:" databases shared across callers.
func NewSQLite(dsn string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLite{db: db, clock: clock.Real()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func nullCents(d decimal.NullDecimal) sql.NullInt64 {
	if !d.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toCents(d.Decimal), Valid: true}
}

func nullDecimalFromCents(c sql.NullInt64) decimal.NullDecimal {
	if !c.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(fromCents(c.Int64))
}

func nullFloat(d decimal.NullDecimal) sql.NullFloat64 {
	if !d.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.Decimal.InexactFloat64(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}
