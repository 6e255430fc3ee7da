package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ogurasousui/timesheet-sync/internal/adapters/store/github"
	"github.com/ogurasousui/timesheet-sync/internal/adapters/store/memory"
	pgstore "github.com/ogurasousui/timesheet-sync/internal/adapters/store/postgres"
	"github.com/ogurasousui/timesheet-sync/internal/adapters/store/sqlite"
	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
	"github.com/ogurasousui/timesheet-sync/internal/core/table"
	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
	"github.com/ogurasousui/timesheet-sync/internal/platform/config"
	pgdb "github.com/ogurasousui/timesheet-sync/internal/platform/db/postgres"
)

// App は設定から組み立てたタイムシートサービス一式です。
type App struct {
	Service *timesheet.Service
	Tables  timesheet.Tables
	Store   blobstore.Store
	closers []func()
}

// Close はストアが保持する接続を解放します。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build は設定に従ってストア、同期層、ユースケースを組み立てます。observer は nil でも構いません。
func Build(ctx context.Context, cfg *config.Config, observer table.Observer, logger *slog.Logger) (*App, error) {
	store, closer, err := NewStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	reconciler := table.NewReconciler(store, table.ReconcilerConfig{
		MaxAttempts: cfg.Sync.MaxAttempts,
		Backoff:     cfg.Sync.RetryBackoff,
	}, observer, logger)
	cache := table.NewCache(cfg.Sync.CacheTTL, nil)
	repo := table.NewRepository(store, reconciler, cache, logger)

	tables := timesheet.NewTables(timesheet.TablePaths{
		Employees:       cfg.Tables.Employees,
		TaskTypes:       cfg.Tables.TaskTypes,
		Tasks:           cfg.Tables.Tasks,
		LegacyEmployees: cfg.Tables.LegacyEmployees,
		LegacyTaskTypes: cfg.Tables.LegacyTaskTypes,
		LegacyTasks:     cfg.Tables.LegacyTasks,
	}, cfg.Timesheet.Location)

	app := &App{
		Service: timesheet.NewService(repo, tables, nil, logger),
		Tables:  tables,
		Store:   store,
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}

	logger.InfoContext(ctx, "timesheet store ready",
		slog.String("backend", cfg.Store.Backend),
		slog.String("employees", tables.Employees.Path),
		slog.String("task_types", tables.TaskTypes.Path),
		slog.String("tasks", tables.Tasks.Path),
	)
	return app, nil
}

// NewStore は store.backend に応じた blobstore.Store を生成します。返却される closer は nil の場合があります。
func NewStore(ctx context.Context, cfg config.StoreConfig) (blobstore.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendGitHub:
		client, err := github.New(github.Config{
			BaseURL:           cfg.GitHub.BaseURL,
			Repo:              cfg.GitHub.Repo,
			Branch:            cfg.GitHub.Branch,
			Token:             cfg.GitHub.Token,
			Timeout:           cfg.GitHub.Timeout,
			RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case config.BackendPostgres:
		pool, err := pgdb.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewBlobStore(pool, pgdb.NewTransactionManager(pool, pgdb.WithIsoLevel(pgx.RepeatableRead))), pool.Close, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendMemory:
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unsupported store backend %q", cfg.Backend)
	}
}
