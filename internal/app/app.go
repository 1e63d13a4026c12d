// Package app wires configuration, storage, blob storage and the inventory
// service for the command binaries.
package app

import (
	"arboria/internal/adapters/archive"
	"arboria/internal/blob"
	"arboria/internal/config"
	"arboria/internal/core"
	"arboria/internal/logging"
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App bundles the opened dependencies.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Store    core.PersistentStore
	Service  *core.Service
	Blobs    blob.Store
	Archives *archive.Exporter
}

// Open connects the configured backends. Extra service options (a tracer,
// for instance) are applied after the defaults.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...core.Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	store, err := core.OpenPersistentStore(ctx, cfg.Storage, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = core.CloseStore(store)
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}

	svcOpts := append([]core.Option{
		core.WithLogger(logging.NewLogger(logger.Named("core"))),
		core.WithMetricsRecorder(recorder),
	}, opts...)
	svc := core.NewService(store, svcOpts...)

	logger.Info("backends ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", string(blobs.Driver())),
	)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Store:    store,
		Service:  svc,
		Blobs:    blobs,
		Archives: archive.NewExporter(svc, blobs),
	}, nil
}

// Close releases the store connection and flushes the logger.
func (a *App) Close() error {
	err := core.CloseStore(a.Store)
	_ = a.Logger.Sync()
	return err
}
