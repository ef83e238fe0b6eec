// Package app wires storage, policy, services and transports together for
// each blockdoc command.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"blockdoc/internal/config"
	"blockdoc/internal/domain"
	"blockdoc/internal/metrics"
	"blockdoc/internal/policy"
	"blockdoc/internal/relay"
	"blockdoc/internal/service"
	"blockdoc/internal/storage"
)

// App holds the long-lived components of one process.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	policy    *policy.Table
	metrics   *metrics.Metrics
	hub       *relay.Hub
	documents *service.DocumentService

	closers []func(context.Context) error
}

// New opens the configured store and builds the document service.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	tbl := policy.Default()
	if cfg.PolicyFile != "" {
		loaded, err := policy.Load(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		tbl = loaded
	}
	a.policy = tbl

	snapshots, changes, err := a.openStore(ctx)
	if err != nil {
		a.Shutdown(ctx)
		return nil, err
	}

	a.metrics = metrics.New()
	a.hub = relay.NewHub(log, a.metrics)

	opts := []service.Option{
		service.WithRecorder(a.metrics),
		service.WithUndoLimit(cfg.UndoLimit),
		service.WithLogger(log),
	}
	if changes != nil {
		opts = append(opts, service.WithChangeLog(changes))
	}
	a.documents = service.NewDocumentService(snapshots, tbl, a.hub, opts...)
	return a, nil
}

// openStore returns the snapshot store for the configured driver and, for
// SQL drivers, the change log that lives next to it.
func (a *App) openStore(ctx context.Context) (domain.SnapshotStore, domain.ChangeLog, error) {
	switch a.cfg.Driver {
	case config.DriverMongo:
		store, err := storage.OpenMongo(ctx, a.cfg.MongoURI, a.cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("open mongo store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.log.Info().Str("db", a.cfg.MongoDB).Msg("using mongo snapshot store")
		return store, nil, nil
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(a.cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		a.log.Info().Str("path", a.cfg.SQLitePath()).Msg("using sqlite store")
		return storage.NewSnapshotStore(db), storage.NewChangeLog(db), nil
	default:
		db, err := storage.Open(ctx, a.cfg.Driver, a.cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		a.log.Info().Str("driver", a.cfg.Driver).Msg("using sql store")
		return storage.NewSnapshotStore(db), storage.NewChangeLog(db), nil
	}
}

// Startup starts the background jobs: policy hot reload and the checkpoint
// schedule. Both stop when ctx is done.
func (a *App) Startup(ctx context.Context) error {
	if a.cfg.PolicyFile != "" {
		if err := policy.Watch(ctx, a.cfg.PolicyFile, a.policy, a.log.With().Str("component", "policy").Logger()); err != nil {
			return err
		}
	}
	if a.cfg.Checkpoint != "" {
		if err := a.documents.StartScheduler(ctx, a.cfg.Checkpoint); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown checkpoints and closes every open document, then the store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.documents != nil {
		errs = append(errs, a.documents.Close(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs the HTTP API and websocket relay until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	srv := relay.NewServer(a.documents, a.hub, a.log, a.metrics.Handler())
	return srv.ListenAndServe(ctx, a.cfg.Listen)
}

// Checkpoint snapshots every stored document and compacts its change log.
func (a *App) Checkpoint(ctx context.Context) ([]service.CheckpointResult, error) {
	docs, err := a.documents.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if _, err := a.documents.Open(ctx, d.DocID); err != nil {
			return nil, err
		}
	}
	return a.documents.CheckpointAll(ctx)
}

// Documents exposes the document service.
func (a *App) Documents() *service.DocumentService { return a.documents }
