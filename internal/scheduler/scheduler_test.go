package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"winedeals/internal/clock"
	"winedeals/internal/email"
	"winedeals/internal/fetcher"
	"winedeals/internal/ingest"
	"winedeals/internal/matcher"
	"winedeals/internal/model"
	"winedeals/internal/storage"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	To      string
	Subject string
	HTML    string
}

type mockTransport struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[string]bool
}

func (m *mockTransport) Send(_ context.Context, to, subject, html string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[to] {
		return "", &model.TransportError{Target: "smtp", Err: errors.New("mailbox unavailable")}
	}
	m.messages = append(m.messages, sentMessage{To: to, Subject: subject, HTML: html})
	return fmt.Sprintf("msg-%d", len(m.messages)), nil
}

func (m *mockTransport) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *mockTransport) recipients() []string {
	var out []string
	for _, msg := range m.getMessages() {
		out = append(out, msg.To)
	}
	return out
}

type fixture struct {
	store *storage.SQLite
	clock *clock.Mock
	mail  *mockTransport
	state *State
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock(t0)
	store, err := storage.NewSQLite(":memory:", storage.WithClock(clk))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := discardLogger()
	mail := &mockTransport{failFor: map[string]bool{}}
	state, err := New(Deps{
		Ingester: ingest.New(fetcher.NewStatic(fetcher.DemoListings()), store, fetcher.DefaultShops(), log),
		Matcher:  matcher.New(store, 10, log),
		Builder:  email.NewBuilder("http://localhost:3000"),
		Mail:     mail,
		Deals:    store,
		Accounts: store,
		Clock:    clk,
	}, Config{}, log)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return &fixture{store: store, clock: clk, mail: mail, state: state}
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func (f *fixture) putUser(t *testing.T, u model.User) {
	t.Helper()
	if err := f.store.PutUser(context.Background(), &u); err != nil {
		t.Fatalf("put user %s: %v", u.ID, err)
	}
}

func demoUser(id, addr string) model.User {
	return model.User{
		ID:                        id,
		Email:                     addr,
		FirstName:                 "Demo",
		IsActive:                  true,
		EmailNotificationsEnabled: true,
		Preferences: []model.WinePreference{
			{WineName: "Château Margaux", PriceRange: model.PriceRange{Min: dec("500"), Max: dec("1000")}},
			{WineName: "Opus One", PriceRange: model.PriceRange{Min: dec("300"), Max: dec("600")}},
			{WineName: "Pétrus"},
		},
	}
}

func TestIngestThenNotify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putUser(t, demoUser("u1", "demo@winedeals.com"))

	ingested, err := f.state.RunIngestion(ctx)
	if err != nil {
		t.Fatalf("run ingestion: %v", err)
	}
	if diff := cmp.Diff(5, ingested.Created); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}

	sum, err := f.state.RunNotification(ctx)
	if err != nil {
		t.Fatalf("run notification: %v", err)
	}
	if diff := cmp.Diff(NotifySummary{Users: 1, Sent: 1}, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	msgs := f.mail.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if diff := cmp.Diff("Your Daily Wine Deals - Mar 10, 2026", msg.Subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"Château Margaux 2015", "Opus One 2018", "No deals found for Pétrus today."} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("digest missing %q", want)
		}
	}
	if strings.Contains(msg.HTML, "Sassicaia") {
		t.Error("digest contains a wine the user did not ask for")
	}
}

func TestNotifyIsolatesUserFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putUser(t, demoUser("a", "a@example.com"))
	f.putUser(t, demoUser("b", "b@example.com"))
	f.putUser(t, demoUser("c", "c@example.com"))
	muted := demoUser("d", "d@example.com")
	muted.EmailNotificationsEnabled = false
	f.putUser(t, muted)
	inactive := demoUser("e", "e@example.com")
	inactive.IsActive = false
	f.putUser(t, inactive)

	f.mail.failFor["b@example.com"] = true

	sum, err := f.state.RunNotification(ctx)
	if err != nil {
		t.Fatalf("run notification: %v", err)
	}
	want := NotifySummary{Users: 3, Sent: 2, Failed: 1, FailedUsers: []string{"b"}}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a@example.com", "c@example.com"}, f.mail.recipients()); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyCountsSkippedPreferences(t *testing.T) {
	f := newFixture(t)
	u := demoUser("u1", "demo@winedeals.com")
	u.Preferences = append(u.Preferences, model.WinePreference{WineName: "   "})
	f.putUser(t, u)

	sum, err := f.state.RunNotification(context.Background())
	if err != nil {
		t.Fatalf("run notification: %v", err)
	}
	if diff := cmp.Diff(NotifySummary{Users: 1, Sent: 1, SkippedPreferences: 1}, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

type downAccounts struct{}

func (downAccounts) ListEligibleUsers(context.Context) ([]model.User, error) {
	return nil, fmt.Errorf("query users: %w: %w", model.ErrStoreUnavailable, errors.New("disk I/O error"))
}

func (downAccounts) GetUser(_ context.Context, id string) (*model.User, error) {
	return nil, fmt.Errorf("get user: %w: %w", model.ErrStoreUnavailable, errors.New("disk I/O error"))
}

func TestNotifyAbortsWhenStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.state.deps.Accounts = downAccounts{}

	_, err := f.state.RunNotification(context.Background())
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(f.mail.getMessages()) != 0 {
		t.Error("expected no messages")
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.state.RunIngestion(ctx); err != nil {
		t.Fatalf("run ingestion: %v", err)
	}

	n, err := f.state.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh deals deactivated: %d", n)
	}

	f.clock.Add(31 * 24 * time.Hour)
	for i, want := range []int64{5, 0} {
		n, err := f.state.RunCleanup(ctx)
		if err != nil {
			t.Fatalf("cleanup #%d: %v", i+1, err)
		}
		if n != want {
			t.Errorf("cleanup #%d deactivated %d, want %d", i+1, n, want)
		}
	}
}

func TestSendNow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putUser(t, demoUser("u1", "demo@winedeals.com"))
	muted := demoUser("u2", "muted@example.com")
	muted.EmailNotificationsEnabled = false
	f.putUser(t, muted)
	if _, err := f.state.RunIngestion(ctx); err != nil {
		t.Fatalf("run ingestion: %v", err)
	}

	res, err := f.state.SendNow(ctx, "u1")
	if err != nil {
		t.Fatalf("send now: %v", err)
	}
	if diff := cmp.Diff(SendResult{MessageID: "msg-1", Deals: 2}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.state.SendNow(ctx, "u2"); !model.IsValidation(err) {
		t.Errorf("expected validation error for muted user, got %v", err)
	}
	if _, err := f.state.SendNow(ctx, "missing"); !model.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if got := len(f.mail.getMessages()); got != 1 {
		t.Errorf("expected 1 message, got %d", got)
	}
}

func TestSendTest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putUser(t, demoUser("u1", "demo@winedeals.com"))
	muted := demoUser("u2", "muted@example.com")
	muted.EmailNotificationsEnabled = false
	f.putUser(t, muted)

	if _, err := f.state.SendTest(ctx, "u1"); err != nil {
		t.Fatalf("send test: %v", err)
	}
	if _, err := f.state.SendTest(ctx, "u2"); !model.IsValidation(err) {
		t.Errorf("expected validation error for muted user, got %v", err)
	}

	msgs := f.mail.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if diff := cmp.Diff(email.TestSubject, msgs[0].Subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}

	f.mail.failFor["demo@winedeals.com"] = true
	_, err := f.state.SendTest(ctx, "u1")
	var te *model.TransportError
	if !errors.As(err, &te) {
		t.Errorf("expected transport error, got %v", err)
	}
}

type blockingIngester struct {
	started chan struct{}
	release chan struct{}
	running atomic.Bool
}

func (b *blockingIngester) Run(context.Context) (ingest.Summary, error) {
	b.running.Store(true)
	close(b.started)
	<-b.release
	b.running.Store(false)
	return ingest.Summary{}, nil
}

type recordingCleaner struct {
	ingester *blockingIngester
	overlap  atomic.Bool
	calls    atomic.Int32
}

func (r *recordingCleaner) DeactivateOlderThan(context.Context, int) (int64, error) {
	if r.ingester.running.Load() {
		r.overlap.Store(true)
	}
	r.calls.Add(1)
	return 0, nil
}

func TestTriggersDoNotOverlap(t *testing.T) {
	ing := &blockingIngester{started: make(chan struct{}), release: make(chan struct{})}
	cleaner := &recordingCleaner{ingester: ing}
	s, err := New(Deps{Ingester: ing, Deals: cleaner, Clock: clock.NewMock(t0)}, Config{}, discardLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = s.RunIngestion(context.Background())
	}()
	<-ing.started
	go func() {
		defer wg.Done()
		_, _ = s.RunCleanup(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	if cleaner.calls.Load() != 0 {
		t.Error("cleanup ran while ingestion was in progress")
	}
	close(ing.release)
	wg.Wait()

	if cleaner.overlap.Load() {
		t.Error("cleanup overlapped ingestion")
	}
	if cleaner.calls.Load() != 1 {
		t.Errorf("cleanup calls = %d, want 1", cleaner.calls.Load())
	}
}

type countingIngester struct {
	calls atomic.Int32
}

func (c *countingIngester) Run(context.Context) (ingest.Summary, error) {
	c.calls.Add(1)
	return ingest.Summary{}, errors.New("shop catalog empty")
}

func TestRunFiresDueTriggers(t *testing.T) {
	ing := &countingIngester{}
	s, err := New(Deps{Ingester: ing}, Config{
		IngestSchedule:  "@every 1s",
		NotifySchedule:  "0 0 1 1 *",
		CleanupSchedule: "0 0 1 1 *",
	}, discardLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for ing.calls.Load() < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("ingestion fired %d times, want at least 2", ing.calls.Load())
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.state.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(Deps{}, Config{NotifySchedule: "every morning"}, discardLogger())
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if !strings.Contains(err.Error(), TriggerNotify) {
		t.Errorf("error %q does not name the trigger", err)
	}
}
