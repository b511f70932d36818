package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/shopspring/decimal"

	"winedeals/internal/fetcher"
	"winedeals/internal/ingest"
	"winedeals/internal/model"
	"winedeals/internal/storage"
)

const demoEmail = "demo@winedeals.com"

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/winedeals.db"), "path to sqlite database")
	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stderr, nil))

	if err := seed(context.Background(), *dbPath, log); err != nil {
		log.Error("seed", tint.Err(err))
		os.Exit(1)
	}
}

func seed(ctx context.Context, dbPath string, log *slog.Logger) error {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	user := demoUser()
	if err := store.PutUser(ctx, user); err != nil {
		return err
	}
	log.Info("demo user ready", "id", user.ID, "email", user.Email, "preferences", len(user.Preferences))

	sum, err := ingest.New(fetcher.NewStatic(fetcher.DemoListings()), store, fetcher.DefaultShops(), log).Run(ctx)
	if err != nil {
		return err
	}
	log.Info("demo deals ready", "created", sum.Created, "merged", sum.Merged, "rejected", sum.Rejected)
	return nil
}

// demoUser has a stable ID so reseeding replaces the same account.
func demoUser() *model.User {
	return &model.User{
		ID:                        uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+demoEmail)).String(),
		Email:                     demoEmail,
		FirstName:                 "Demo",
		IsActive:                  true,
		EmailNotificationsEnabled: true,
		NotificationTime:          "08:00",
		Preferences: []model.WinePreference{
			{WineName: "Château Margaux", PriceRange: priceRange(500, 1000)},
			{WineName: "Opus One", PriceRange: priceRange(300, 600)},
		},
	}
}

func priceRange(lo, hi int64) model.PriceRange {
	minP, maxP := decimal.NewFromInt(lo), decimal.NewFromInt(hi)
	return model.PriceRange{Min: &minP, Max: &maxP}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
