package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/taskboard/internal/config"
	"github.com/randalmurphal/taskboard/internal/db"
	"github.com/randalmurphal/taskboard/internal/db/driver"
	"github.com/randalmurphal/taskboard/internal/git"
	"github.com/randalmurphal/taskboard/internal/lifecycle"
	"github.com/randalmurphal/taskboard/internal/reconcile"
	"github.com/randalmurphal/taskboard/internal/scheduler"
)

// app holds what a command needs once config is loaded and the store is open.
type app struct {
	cfg     *config.Config
	cfgPath string
	store   *db.Store
	machine *lifecycle.Machine
	logger  *slog.Logger
	logs    io.Closer
}

// openApp loads config, sets up logging, and opens the store. Callers must
// Close the result.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, used, err := config.Load(".", cfgFile)
	if err != nil {
		return nil, err
	}
	level, _ := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	logger, logs := newLogger(cfg.Log, level, logFile, stderrWriter)
	logger.Debug("config loaded", "file", used)

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	return &app{
		cfg:     cfg,
		cfgPath: used,
		store:   store,
		machine: lifecycle.New(store, cfg.Workflow(), logger),
		logger:  logger,
		logs:    logs,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*db.Store, error) {
	dialect, err := driver.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Database.Path
	if dialect == driver.DialectPostgres {
		dsn = cfg.Database.DSN
	}
	store, err := db.OpenStore(ctx, dsn, dialect, db.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	return store, nil
}

// Close releases the store and the log file.
func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.logs.Close())
}

// resolveScope turns --project/--inbox flags into a worker scope.
func (a *app) resolveScope(ctx context.Context, project string, inbox bool) (scheduler.Scope, error) {
	if inbox {
		return scheduler.Scope{InboxOnly: true}, nil
	}
	if project == "" {
		return scheduler.Scope{}, nil
	}
	p, err := a.store.ResolveProject(ctx, project)
	if err != nil {
		return scheduler.Scope{}, err
	}
	return scheduler.Scope{ProjectID: p.ID}, nil
}

func (a *app) newWorker(scope scheduler.Scope) *scheduler.Worker {
	inspector := git.NewInspector(git.NewExecRunner(a.cfg.Worker.GitTimeout))
	return scheduler.NewWorker(a.store, a.machine, inspector, scheduler.Config{
		Scope:          scope,
		Interval:       a.cfg.Worker.Interval,
		StuckThreshold: a.cfg.Worker.StuckThreshold,
		ReviewCooldown: a.cfg.Review.Cooldown,
		RepoPath:       a.cfg.Worker.RepoPath,
		Logger:         a.logger,
	})
}

func (a *app) newEngine() (*reconcile.Engine, error) {
	limiter := reconcile.NewRateLimiter(
		reconcile.WithBuffer(a.cfg.Sync.RateLimitBuffer),
		reconcile.WithBackoff(a.cfg.Sync.Backoff),
	)
	return reconcile.NewEngine(a.store, reconcile.Options{
		Limiter:      limiter,
		Hosting:      a.cfg.TrackerConfig,
		IgnoreLabels: a.cfg.Sync.IgnoreLabels,
		Logger:       a.logger,
	})
}
