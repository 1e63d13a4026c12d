// Command arboria-server serves the orchard inventory HTTP API.
package main

import (
	"arboria/internal/adapters/archive"
	"arboria/internal/adapters/httpapi"
	"arboria/internal/app"
	"arboria/internal/config"
	"arboria/internal/logging"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, config.Load, nil); err != nil {
		fmt.Fprintln(os.Stderr, "arboria-server:", err)
		exitFunc(1)
	}
}

// run serves until ctx is cancelled. When ready is non-nil it receives the
// bound address once the listener is open.
func run(ctx context.Context, load func() (config.Config, error), ready chan<- string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close backends", zap.Error(err))
		}
	}()

	srv, err := httpapi.New(a.Service, a.Registry, a.Registry,
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithArchives(a.Archives),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)
	if err != nil {
		return err
	}

	if cfg.Backup.Schedule != "" {
		sched, err := archive.NewScheduler(a.Archives, cfg.Backup.Schedule, cfg.Backup.FarmID, logger)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Duration)
			defer cancel()
			sched.Stop(stopCtx)
		}()
		logger.Info("backups scheduled", zap.String("schedule", cfg.Backup.Schedule), zap.Time("next", sched.Next()))
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Serve(ln) }()
	logger.Info("listening", zap.String("addr", ln.Addr().String()))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
