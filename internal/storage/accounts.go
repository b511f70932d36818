package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"winedeals/internal/model"
)

const userColumns = `id, email, first_name, is_active, email_notifications, notification_time`

// ListEligibleUsers returns active users with email notifications enabled,
// each with their wine preferences in creation order.
func (s *SQLite) ListEligibleUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE is_active = 1 AND email_notifications = 1
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, unavailable("query users", err)
	}
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			_ = rows.Close()
			return nil, unavailable("scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, unavailable("iterate users", err)
	}
	_ = rows.Close()

	prefs, err := s.preferences(ctx,
		`SELECT id, user_id, wine_name, varietal, region, price_min_cents, price_max_cents
		 FROM wine_preferences
		 WHERE user_id IN (SELECT id FROM users WHERE is_active = 1 AND email_notifications = 1)
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Preferences = prefs[users[i].ID]
	}
	return users, nil
}

// GetUser returns a single user with preferences, regardless of eligibility.
func (s *SQLite) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Kind: "user", ID: id}
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}

	prefs, err := s.preferences(ctx,
		`SELECT id, user_id, wine_name, varietal, region, price_min_cents, price_max_cents
		 FROM wine_preferences WHERE user_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, err
	}
	u.Preferences = prefs[id]
	return u, nil
}

// PutUser creates or replaces an account and its preferences. Accounts are
// owned by the identity service; this exists for seeding and tests.
func (s *SQLite) PutUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, is_active, email_notifications, notification_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			is_active = excluded.is_active,
			email_notifications = excluded.email_notifications,
			notification_time = excluded.notification_time`,
		u.ID, u.Email, u.FirstName, boolToInt(u.IsActive), boolToInt(u.EmailNotificationsEnabled),
		notificationTime(u.NotificationTime), formatTime(s.clock.Now()),
	)
	if err != nil {
		return unavailable("upsert user", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM wine_preferences WHERE user_id = ?`, u.ID); err != nil {
		return unavailable("delete preferences", err)
	}
	for i := range u.Preferences {
		p := &u.Preferences[i]
		var lo, hi sql.NullInt64
		if p.PriceRange.Min != nil {
			lo = sql.NullInt64{Int64: toCents(*p.PriceRange.Min), Valid: true}
		}
		if p.PriceRange.Max != nil {
			hi = sql.NullInt64{Int64: toCents(*p.PriceRange.Max), Valid: true}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO wine_preferences (user_id, wine_name, varietal, region, price_min_cents, price_max_cents)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID, p.WineName, p.Varietal, p.Region, lo, hi,
		)
		if err != nil {
			return unavailable("insert preference", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return unavailable("last insert id", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit user", err)
	}
	return nil
}

func (s *SQLite) preferences(ctx context.Context, query string, args ...any) (map[string][]model.WinePreference, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query preferences", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]model.WinePreference)
	for rows.Next() {
		var p model.WinePreference
		var userID string
		var lo, hi sql.NullInt64
		if err := rows.Scan(&p.ID, &userID, &p.WineName, &p.Varietal, &p.Region, &lo, &hi); err != nil {
			return nil, unavailable("scan preference", err)
		}
		if lo.Valid {
			v := fromCents(lo.Int64)
			p.PriceRange.Min = &v
		}
		if hi.Valid {
			v := fromCents(hi.Int64)
			p.PriceRange.Max = &v
		}
		out[userID] = append(out[userID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate preferences", err)
	}
	return out, nil
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var active, notify int
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &active, &notify, &u.NotificationTime); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsActive = active == 1
	u.EmailNotificationsEnabled = notify == 1
	return &u, nil
}

func notificationTime(s string) string {
	if s == "" {
		return "08:00"
	}
	return s
}
