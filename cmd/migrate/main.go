package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("path", "migrations", "Path to migrations directory")
	level := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	cmd, err := migration.ParseCommand(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      *level,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
		Service:    "invoicing-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	absDir, err := filepath.Abs(*dir)
	if err != nil {
		log.Fatal("Failed to resolve migrations path", zap.Error(err))
	}
	log = log.With(zap.String("command", cmd.Name), zap.String("migrations_path", absDir))

	if !cmd.NeedsDatabase() {
		available, err := migration.ListAvailable(absDir)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		for _, a := range available {
			fmt.Printf("  %06d  %s\n", a.Version, a.Identifier)
		}
		return
	}

	if err := run(cmd, absDir, log); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
}

func run(cmd migration.Command, dir string, log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("reach %s:%d: %w", cfg.Database.Host, cfg.Database.Port, err)
	}

	m, err := migration.New(db, dir, log)
	if err != nil {
		_ = db.Close()
		return err
	}
	return errors.Join(m.Run(cmd), m.Close())
}

func usage() {
	fmt.Fprintln(os.Stderr, `Invoicing schema migrations

Usage:
  migrate [flags] <command> [n]

Commands:
  up           Apply all pending migrations
  down         Roll back all migrations
  step <n>     Apply n migrations, or roll back when n is negative
  version      Show the applied version
  status       Show the applied version and pending migrations
  force <v>    Mark version v as applied after a failed migration
  list         List migrations on disk (no database needed)

Flags:
  -path        Migrations directory (default ./migrations)
  -log-level   debug, info, warn or error (default info)

Database settings come from INV_DATABASE_* variables.`)
}
