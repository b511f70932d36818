package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"winedeals/internal/bot"
	"winedeals/internal/config"
	"winedeals/internal/email"
	"winedeals/internal/fetcher"
	"winedeals/internal/ingest"
	"winedeals/internal/mailer"
	"winedeals/internal/matcher"
	"winedeals/internal/metrics"
	"winedeals/internal/scheduler"
	"winedeals/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("winedeals stopped", tint.Err(err))
		os.Exit(1)
	}
	log.Info("winedeals stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, tint.Err(err))
			return err
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, tint.Err(err))
		return err
	}
	defer func() { _ = store.Close() }()

	shops, err := fetcher.LoadShops(cfg.ShopsFile)
	if err != nil {
		log.Error("load shops", "path", cfg.ShopsFile, tint.Err(err))
		return err
	}

	client := &http.Client{}
	sources := fetcher.Registry{
		fetcher.SourceHTML:   fetcher.NewHTML(client, cfg.Ingest.FetchTimeout),
		fetcher.SourceFeed:   fetcher.NewFeed(client, cfg.Ingest.FetchTimeout),
		fetcher.SourceStatic: fetcher.NewStatic(fetcher.DemoListings()),
	}

	transport, err := newTransport(cfg.Mail, log)
	if err != nil {
		log.Error("create mail transport", tint.Err(err))
		return err
	}

	m := metrics.New()

	sched, err := scheduler.New(scheduler.Deps{
		Ingester: ingest.New(sources, store, shops, log,
			ingest.WithConcurrency(cfg.Ingest.Concurrency),
			ingest.WithShopTimeout(cfg.Ingest.FetchTimeout*3),
		),
		Matcher:  matcher.New(store, cfg.Schedule.MatchLimit, log),
		Builder:  email.NewBuilder(cfg.ClientURL),
		Mail:     transport,
		Deals:    store,
		Accounts: store,
		Metrics:  m,
	}, scheduler.Config{
		IngestSchedule:  cfg.Schedule.Ingest,
		NotifySchedule:  cfg.Schedule.Notify,
		CleanupSchedule: cfg.Schedule.Cleanup,
		RetentionDays:   cfg.Schedule.RetentionDays,
		SendInterval:    cfg.Schedule.SendInterval,
		Location:        cfg.Location(),
	}, log)
	if err != nil {
		log.Error("create scheduler", tint.Err(err))
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, m, log)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if cfg.Telegram.BotToken != "" {
		b, err := bot.New(cfg.Telegram.BotToken, sched, store, cfg, log)
		if err != nil {
			log.Error("create bot", tint.Err(err))
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			b.Run(ctx)
			return nil
		})
	}

	log.Info("starting winedeals",
		"shops", len(shops),
		"smtp", cfg.Mail.Host != "",
		"console", cfg.Telegram.BotToken != "",
		"metrics", cfg.MetricsAddr,
	)

	return g.Wait()
}

func newTransport(cfg config.Mail, log *slog.Logger) (mailer.Transport, error) {
	if cfg.Host == "" {
		log.Warn("SMTP_HOST not set, emails will only be logged")
		return mailer.NewLog(log), nil
	}
	return mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	})
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.DateTime}))
}
