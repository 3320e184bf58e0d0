package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/garagebay/staffgate/config"
	"github.com/garagebay/staffgate/internal/service"
	"golang.org/x/sync/errgroup"
)

// RunConfig holds what Run needs to serve until ctx is cancelled.
type RunConfig struct {
	Config   *config.AppConfig
	Server   *http.Server
	Sessions *service.SessionService
	Logger   *slog.Logger
}

// Run serves HTTP and sweeps idle sessions until ctx is cancelled or either
// fails, then shuts the server down gracefully.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Server == nil || cfg.Config == nil {
		return errors.New("run config requires a server and app config")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", cfg.Server.Addr)
		if err := cfg.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	if cfg.Sessions != nil {
		g.Go(func() error {
			runSweeper(gctx, cfg.Sessions, cfg.Config.Staff, logger)
			return nil
		})
	}

	return g.Wait()
}

// runSweeper drops idle in-memory sessions on a fixed interval.
func runSweeper(ctx context.Context, sessions *service.SessionService, cfg config.StaffConfig, logger *slog.Logger) {
	interval := cfg.SessionSweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(cfg.SessionMaxIdle); n > 0 {
				logger.Debug("swept idle sessions", "count", n)
			}
		}
	}
}
