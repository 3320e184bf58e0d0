package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/garagebay/staffgate/config"
	httpx "github.com/garagebay/staffgate/internal/http"
	"github.com/redis/go-redis/v9"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Redis    redis.UniversalClient
	Logger   *slog.Logger
}

// NewHTTPServer builds the portal router and wraps it in an http.Server.
// The server is not started.
func NewHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Sessions:   cfg.Services.Sessions,
		Tokens:     cfg.Services.Tokens,
		SharedAPI:  cfg.Services.SharedAPI,
		StaffAPI:   cfg.Services.Backend,
		Storefront: cfg.Services.Storefront,
		Cookies: httpx.CookieConfig{
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.HTTP.SecureCookies,
			MaxAge: appCfg.HTTP.CookieMaxAge,
		},
		HealthChecks: healthChecks(cfg.Redis, cfg.DB),
		Logger:       logger,
	}
	if sink := cfg.Services.Observability.metricsSink(); sink != nil {
		services.Metrics = sink
	}
	if cfg.Services.AuthEvents != nil {
		services.AuthEvents = cfg.Services.AuthEvents
	}

	handler, err := httpx.NewRouter(services)
	if err != nil {
		return nil, err
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func healthChecks(rdb redis.UniversalClient, db *sql.DB) map[string]httpx.HealthCheck {
	checks := make(map[string]httpx.HealthCheck, 2)
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	return checks
}
