package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"

	"github.com/technosupport/slothunter/internal/journal"
)

func main() {
	flags := pflag.NewFlagSet("migrator", pflag.ContinueOnError)
	upCmd := flags.Bool("up", false, "Run all up migrations")
	downCmd := flags.Bool("down", false, "Rollback all migrations")
	stepsCmd := flags.Int("steps", 0, "Run +/- steps")
	dbURL := flags.String("database-url", os.Getenv("SLOTHUNTER_DATABASE_URL"), "Postgres URL of the event journal")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(*dbURL, *upCmd, *downCmd, *stepsCmd, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(url string, up, down bool, steps int, logger *slog.Logger) error {
	if url == "" {
		return errors.New("--database-url or SLOTHUNTER_DATABASE_URL is required")
	}

	// 1. Connect to DB
	db, err := sql.Open("postgres", url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	// 2. Init Migrate
	m, err := journal.NewMigrator(db)
	if err != nil {
		return err
	}

	// 3. Run Commands
	start := time.Now()
	switch {
	case up:
		logger.Info("running up migrations")
		err = m.Up()
	case down:
		logger.Info("running down migrations")
		err = m.Down()
	case steps != 0:
		logger.Info("running migration steps", "steps", steps)
		err = m.Steps(steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("no migrations applied", "elapsed", time.Since(start))
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		logger.Info("migration state", "version", version, "dirty", dirty, "elapsed", time.Since(start))
	}
	return nil
}
