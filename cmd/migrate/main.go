package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"winedeals/migrations"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/winedeals.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show current version")
		fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	provider, err := migrations.NewProvider(db)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	cmd := args[0]
	switch cmd {
	case "up":
		var results []*goose.MigrationResult
		results, err = provider.Up(ctx)
		printResults(results...)
	case "up-one":
		var res *goose.MigrationResult
		res, err = provider.UpByOne(ctx)
		printResults(res)
	case "down":
		var res *goose.MigrationResult
		res, err = provider.Down(ctx)
		printResults(res)
	case "status":
		var statuses []*goose.MigrationStatus
		statuses, err = provider.Status(ctx)
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.Format(time.DateTime)
			}
			fmt.Printf("%-5d %-40s %s\n", s.Source.Version, s.Source.Path, applied)
		}
	case "version":
		var v int64
		v, err = provider.GetDBVersion(ctx)
		fmt.Printf("version %d\n", v)
	case "reset":
		var results []*goose.MigrationResult
		results, err = provider.DownTo(ctx, 0)
		printResults(results...)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func printResults(results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Printf("%-5d %-40s %s %s\n", r.Source.Version, r.Source.Path, r.Direction, r.Duration.Round(time.Millisecond))
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
