package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ogurasousui/timesheet-sync/internal/platform/config"
	"github.com/ogurasousui/timesheet-sync/internal/platform/logger"
)

const defaultConfigPath = "assets/local.yaml"

func main() {
	var (
		configPath    = flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
		migrationsDir = flag.String("dir", "assets/migrations", "directory containing blob store migrations")
		n             = flag.Int("n", 0, "step count for steps (negative rolls back) or target version for force")
	)
	flag.Parse()

	action := "up"
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	log := logger.New(config.LogConfig{Level: "info", Format: "text"}, os.Stderr)

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Error("failed to load config", slog.String("path", path), slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Store.Backend != config.BackendPostgres {
		log.Error("migrations only apply to the postgres blob store", slog.String("backend", cfg.Store.Backend))
		os.Exit(1)
	}

	if err := runMigration(log, action, *migrationsDir, cfg.Store.Database.DSN(), *n); err != nil {
		log.Error("migration failed", slog.String("action", action), slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("migration completed", slog.String("action", action))
}

func runMigration(log *slog.Logger, action, dir, dsn string, n int) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve path for %s: %w", dir, err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(absDir), dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		if n == 0 {
			return errors.New("steps requires -n")
		}
		err = m.Steps(n)
	case "force":
		if n <= 0 {
			return errors.New("force requires a positive -n version")
		}
		return m.Force(n)
	case "drop":
		return m.Drop()
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("no migration applied")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("blob store schema", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil
	default:
		return fmt.Errorf("unsupported action %q", action)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("blob store schema already current")
		return nil
	}
	return err
}
