// Package scheduler drives ingestion, notification and cleanup on cron
// schedules and exposes the same actions for manual triggering.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"winedeals/internal/clock"
	"winedeals/internal/email"
	"winedeals/internal/ingest"
	"winedeals/internal/mailer"
	"winedeals/internal/matcher"
	"winedeals/internal/metrics"
	"winedeals/internal/model"
	"winedeals/internal/storage"
)

// Trigger names.
const (
	TriggerIngest  = "ingest"
	TriggerNotify  = "notify"
	TriggerCleanup = "cleanup"
)

// Defaults, in the shops' local time.
const (
	DefaultIngestSchedule  = "CRON_TZ=America/New_York 30 7 * * *"
	DefaultNotifySchedule  = "CRON_TZ=America/New_York 0 8 * * *"
	DefaultCleanupSchedule = "CRON_TZ=America/New_York 0 2 * * *"
	DefaultRetentionDays   = 30
)

// Ingester runs one ingestion pass.
type Ingester interface {
	Run(ctx context.Context) (ingest.Summary, error)
}

// Matcher matches one user's preferences.
type Matcher interface {
	Match(ctx context.Context, prefs []model.WinePreference) (matcher.Result, error)
}

// Builder renders emails.
type Builder interface {
	Build(user model.User, matches []model.MatchResult, date time.Time) (email.Payload, error)
	BuildTest(user model.User) (email.Payload, error)
}

// Cleaner expires stale deals.
type Cleaner interface {
	DeactivateOlderThan(ctx context.Context, days int) (int64, error)
}

// Deps are the collaborators a State drives.
type Deps struct {
	Ingester Ingester
	Matcher  Matcher
	Builder  Builder
	Mail     mailer.Transport
	Deals    Cleaner
	Accounts storage.AccountReader
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}

// Config holds the trigger schedules and policy knobs.
type Config struct {
	IngestSchedule  string
	NotifySchedule  string
	CleanupSchedule string
	RetentionDays   int
	// SendInterval is the pause between two notification emails.
	SendInterval time.Duration
	// Location is used for the date in digest subjects.
	Location *time.Location
}

// NotifySummary is the outcome of one notification run.
type NotifySummary struct {
	Users              int
	Sent               int
	Failed             int
	SkippedPreferences int
	FailedUsers        []string
}

// SendResult describes one manually triggered email.
type SendResult struct {
	MessageID string
	Deals     int
}

type trigger struct {
	name     string
	schedule cron.Schedule
	run      func(ctx context.Context) error
}

// State is the scheduler. It is built once at startup; all triggers, whether
// scheduled or manual, run under one lock and never overlap.
type State struct {
	deps          Deps
	triggers      []trigger
	retentionDays int
	location      *time.Location
	limiter       *rate.Limiter
	log           *slog.Logger

	mu sync.Mutex
}

// New creates a State. Empty schedules select the defaults.
func New(deps Deps, cfg Config, log *slog.Logger) (*State, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	s := &State{
		deps:          deps,
		retentionDays: cfg.RetentionDays,
		location:      cfg.Location,
		limiter:       rate.NewLimiter(rate.Inf, 1),
		log:           log,
	}
	if s.retentionDays <= 0 {
		s.retentionDays = DefaultRetentionDays
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if cfg.SendInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.SendInterval), 1)
	}

	specs := []struct {
		name, spec, def string
		run             func(ctx context.Context) error
	}{
		{TriggerIngest, cfg.IngestSchedule, DefaultIngestSchedule, func(ctx context.Context) error {
			_, err := s.RunIngestion(ctx)
			return err
		}},
		{TriggerNotify, cfg.NotifySchedule, DefaultNotifySchedule, func(ctx context.Context) error {
			_, err := s.RunNotification(ctx)
			return err
		}},
		{TriggerCleanup, cfg.CleanupSchedule, DefaultCleanupSchedule, func(ctx context.Context) error {
			_, err := s.RunCleanup(ctx)
			return err
		}},
	}
	for _, sp := range specs {
		spec := sp.spec
		if spec == "" {
			spec = sp.def
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("%s schedule %q: %w", sp.name, spec, err)
		}
		s.triggers = append(s.triggers, trigger{name: sp.name, schedule: sched, run: sp.run})
	}
	return s, nil
}

// Run fires each trigger at its scheduled time, blocking until ctx is
// cancelled. A failed run is logged; the next scheduled run tries again.
func (s *State) Run(ctx context.Context) {
	next := make([]time.Time, len(s.triggers))
	now := s.deps.Clock.Now()
	for i, t := range s.triggers {
		next[i] = t.schedule.Next(now)
		s.log.Info("trigger scheduled", "trigger", t.name, "next", next[i])
	}

	for {
		soonest := 0
		for i := range next {
			if next[i].Before(next[soonest]) {
				soonest = i
			}
		}

		timer := time.NewTimer(max(next[soonest].Sub(s.deps.Clock.Now()), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		now := s.deps.Clock.Now()
		for i, t := range s.triggers {
			if next[i].After(now) {
				continue
			}
			if err := t.run(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("trigger failed", "trigger", t.name, "error", err)
			}
			next[i] = t.schedule.Next(s.deps.Clock.Now())
		}
	}
}

// RunIngestion runs the ingestion pipeline once.
func (s *State) RunIngestion(ctx context.Context) (ingest.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.log.Info("ingestion started")
	sum, err := s.deps.Ingester.Run(ctx)
	for _, ss := range sum.Shops {
		s.deps.Metrics.ObserveShop(ss.Shop, ss.Created, ss.Merged, ss.Rejected, ss.Dropped, ss.Err != nil)
	}
	s.deps.Metrics.ObserveTrigger(TriggerIngest, start, err)
	if err != nil {
		return sum, fmt.Errorf("run ingestion: %w", err)
	}
	return sum, nil
}

// RunNotification emails every eligible user their matched deals. One
// user's failure is logged and the loop moves on; only a store failure
// aborts the run.
func (s *State) RunNotification(ctx context.Context) (NotifySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	sum, err := s.notifyAll(ctx)
	s.deps.Metrics.ObserveTrigger(TriggerNotify, start, err)
	if err != nil {
		return sum, fmt.Errorf("run notification: %w", err)
	}
	s.log.Info("notification finished", "users", sum.Users, "sent", sum.Sent, "failed", sum.Failed)
	return sum, nil
}

func (s *State) notifyAll(ctx context.Context) (NotifySummary, error) {
	var sum NotifySummary

	users, err := s.deps.Accounts.ListEligibleUsers(ctx)
	if err != nil {
		return sum, err
	}
	sum.Users = len(users)
	s.log.Info("notification started", "users", len(users))

	for _, u := range users {
		if err := s.limiter.Wait(ctx); err != nil {
			return sum, err
		}

		res, skipped, err := s.sendDigest(ctx, u)
		sum.SkippedPreferences += skipped
		if err != nil {
			if errors.Is(err, model.ErrStoreUnavailable) {
				return sum, err
			}
			s.log.Error("notify user", "user_id", u.ID, "email", u.Email, "error", err)
			sum.Failed++
			sum.FailedUsers = append(sum.FailedUsers, u.ID)
			continue
		}
		sum.Sent++
		s.log.Info("email sent", "user_id", u.ID, "email", u.Email, "message_id", res.MessageID, "deals", res.Deals)
	}
	return sum, nil
}

// RunCleanup deactivates deals older than the retention period.
func (s *State) RunCleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	n, err := s.deps.Deals.DeactivateOlderThan(ctx, s.retentionDays)
	s.deps.Metrics.ObserveTrigger(TriggerCleanup, start, err)
	if err != nil {
		return 0, fmt.Errorf("run cleanup: %w", err)
	}
	s.deps.Metrics.ObserveCleanup(n)
	s.log.Info("cleanup finished", "retention_days", s.retentionDays, "deactivated", n)
	return n, nil
}

// SendNow emails one user their digest immediately, through the same path
// as the scheduled notification.
func (s *State) SendNow(ctx context.Context, userID string) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.manualRecipient(ctx, userID)
	if err != nil {
		return SendResult{}, err
	}
	res, _, err := s.sendDigest(ctx, *u)
	if err != nil {
		return SendResult{}, fmt.Errorf("send now %s: %w", userID, err)
	}
	s.log.Info("email sent", "user_id", u.ID, "email", u.Email, "message_id", res.MessageID, "deals", res.Deals, "manual", true)
	return res, nil
}

// SendTest emails one user a delivery check without deal data.
func (s *State) SendTest(ctx context.Context, userID string) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.manualRecipient(ctx, userID)
	if err != nil {
		return SendResult{}, err
	}
	p, err := s.deps.Builder.BuildTest(*u)
	if err != nil {
		return SendResult{}, err
	}
	id, err := s.deps.Mail.Send(ctx, u.Email, p.Subject, p.HTML)
	s.deps.Metrics.ObserveEmail("test", err)
	if err != nil {
		return SendResult{}, fmt.Errorf("send test %s: %w", userID, err)
	}
	s.log.Info("test email sent", "user_id", u.ID, "email", u.Email, "message_id", id)
	return SendResult{MessageID: id}, nil
}

func (s *State) manualRecipient(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.deps.Accounts.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.EmailNotificationsEnabled {
		return nil, &model.ValidationError{Field: "emailNotificationsEnabled", Reason: "email notifications are disabled for this account"}
	}
	return u, nil
}

// sendDigest matches, renders and sends one user's digest. It returns the
// number of preferences skipped as malformed.
func (s *State) sendDigest(ctx context.Context, u model.User) (SendResult, int, error) {
	res, err := s.deps.Matcher.Match(ctx, u.Preferences)
	if err != nil {
		return SendResult{}, 0, err
	}

	p, err := s.deps.Builder.Build(u, res.Matches, s.deps.Clock.Now().In(s.location))
	if err != nil {
		return SendResult{}, len(res.Skipped), err
	}

	id, err := s.deps.Mail.Send(ctx, u.Email, p.Subject, p.HTML)
	s.deps.Metrics.ObserveEmail("digest", err)
	if err != nil {
		return SendResult{}, len(res.Skipped), err
	}
	return SendResult{MessageID: id, Deals: res.TotalDeals()}, len(res.Skipped), nil
}
