// Package app wires the session store, event journal, webhook dispatcher and
// pipeline from a Config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"frameforge/internal/config"
	"frameforge/internal/db"
	"frameforge/internal/events"
	"frameforge/internal/migrate"
	"frameforge/internal/notify"
	"frameforge/internal/phases"
	"frameforge/internal/pipeline"
	"frameforge/internal/store"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Registry   *prometheus.Registry
	DB         *sql.DB
	Store      *store.Store
	Journal    events.Journal
	Dispatcher *notify.Dispatcher
	Pipeline   *pipeline.Pipeline
}

// Build opens storage for the configured driver, restores persisted
// sessions and starts the dispatcher workers. Callers must Close the App.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var storeOpts []store.Option
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		conn, err := db.Open(db.Config{Workspace: cfg.Store.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open session database: %w", err)
		}
		applied, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate session database: %w", err)
		}
		a.DB = conn
		a.Journal = events.SQLJournal{DB: conn}
		storeOpts = append(storeOpts, store.WithPersister(store.SQLite{DB: conn}))
		logger.Info("session database ready", zap.String("path", db.Path(cfg.Store.Workspace)), zap.Int("migrations_applied", applied))
	default:
		a.Journal = events.NewMemoryJournal()
	}

	a.Store = store.New(storeOpts...)
	restored, err := a.Store.Restore(ctx)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	if restored > 0 {
		logger.Info("sessions restored", zap.Int("count", restored))
	}

	n := cfg.Notifications
	a.Dispatcher = notify.New(notify.Options{
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		MaxAttempts: n.MaxAttempts,
		BaseDelay:   n.BaseDelay,
		MaxDelay:    n.MaxDelay,
		Timeout:     n.Timeout,
		Registerer:  a.Registry,
		Logger:      logger,
	})
	a.Pipeline = pipeline.New(a.Store, pipeline.Handlers{
		Refiner:    phases.NewRefiner(),
		Questioner: phases.NewQuestioner(),
		Narrator:   phases.NewNarrator(),
		Planner:    phases.NewPlanner(),
	}, pipeline.Options{
		MaxRevisions:       cfg.Pipeline.MaxRevisions,
		AnswerThreshold:    cfg.Pipeline.AnswerThreshold,
		WebhookURLPrefixes: n.AllowedURLPrefixes,
		Journal:            a.Journal,
		Notifier:           a.Dispatcher,
		Logger:             logger,
	})
	return a, nil
}

// Close drains the dispatcher until ctx expires, then closes the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain webhook queue: %w", err))
		}
	}
	if err := a.closeDB(); err != nil {
		errs = append(errs, fmt.Errorf("close session database: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeDB() error {
	if a.DB == nil {
		return nil
	}
	err := a.DB.Close()
	a.DB = nil
	return err
}
