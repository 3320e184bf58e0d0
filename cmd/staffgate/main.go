package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/garagebay/staffgate/config"
	"github.com/garagebay/staffgate/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.ConfigureLogger(cfg.Log)

	logStartupInfo(ctx, logger, &cfg)

	infra, err := bootstrap.OpenInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: &cfg,
		DB:     infra.DB,
		Redis:  infra.Redis,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if m := services.Observability.Metrics; m != nil {
		defer func() {
			if cerr := m.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close statsd client failed", "error", cerr)
			}
		}()
	}

	server, err := bootstrap.NewHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		DB:       infra.DB,
		Redis:    infra.Redis,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	return bootstrap.Run(ctx, bootstrap.RunConfig{
		Config:   &cfg,
		Server:   server,
		Sessions: services.Sessions,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting staffgate",
		"addr", cfg.HTTP.Addr,
		"staff_backend", cfg.Staff.BackendURL,
		"shared_api", cfg.Staff.SharedAPIURL,
		"demo_fallback", cfg.Staff.DemoEnabled,
		"audit_db", cfg.Postgres.Enabled,
		"dev", cfg.IsDev)
}
