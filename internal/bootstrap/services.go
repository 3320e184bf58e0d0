package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garagebay/staffgate/config"
	"github.com/garagebay/staffgate/internal/adapters/redis"
	"github.com/garagebay/staffgate/internal/adapters/staffapi"
	"github.com/garagebay/staffgate/internal/adapters/storefront"
	"github.com/garagebay/staffgate/internal/data"
	"github.com/garagebay/staffgate/internal/observability/notify"
	"github.com/garagebay/staffgate/internal/observability/notify/pagerduty"
	"github.com/garagebay/staffgate/internal/observability/notify/slack"
	"github.com/garagebay/staffgate/internal/observability/statsd"
	"github.com/garagebay/staffgate/internal/ports"
	"github.com/garagebay/staffgate/internal/service"
	"github.com/garagebay/staffgate/internal/service/securityalerts"
	goredis "github.com/redis/go-redis/v9"
)

const userAgent = "staffgate"

// ServiceDeps groups the infrastructure NewServices wires together.
type ServiceDeps struct {
	Config *config.AppConfig
	DB     *sql.DB // nil when DB_ENABLED=false
	Redis  goredis.UniversalClient
	Logger *slog.Logger
}

// ObservabilityContainer holds the metric and alert sinks.
type ObservabilityContainer struct {
	Metrics       *statsd.Client // nil when metrics are disabled
	MetricsConfig config.ObservabilityMetricsConfig
	Alerts        notify.Sink // nil when no alert sink is configured
}

// ServiceContainer holds the wired staff authorization core.
type ServiceContainer struct {
	Sessions      *service.SessionService
	Tokens        *service.TokenDelegate
	Backend       *staffapi.Client
	SharedAPI     *staffapi.Client
	Storefront    *storefront.CookieSession
	Credentials   *redis.CredentialStore
	AuthEvents    *data.AuthEventRepo // nil without Postgres
	Observability ObservabilityContainer
}

// metricsSink avoids handing a typed nil *statsd.Client to consumers.
//
//nolint:ireturn // statsd.Sink is the consumer-facing type.
func (o ObservabilityContainer) metricsSink() statsd.Sink {
	if o.Metrics == nil {
		return nil
	}
	return o.Metrics
}

// NewServices builds every component of the staff authorization core.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.Redis == nil {
		return ServiceContainer{}, errors.New("redis client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability)

	backend, shared, err := newUpstreamClients(cfg.Staff, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	creds := redis.NewCredentialStoreWithPrefix(deps.Redis, cfg.Staff.CredentialPrefix)
	front := storefront.NewCookieSession(cfg.Staff.StorefrontCookie)

	var (
		audit      ports.AuthEventRecorder = data.NoopAuthEventRecorder{}
		authEvents *data.AuthEventRepo
	)
	if deps.DB != nil {
		authEvents = data.NewAuthEventRepo(deps.DB)
		audit = authEvents
	} else {
		logger.Warn("postgres disabled, sign-in audit trail is not persisted")
	}

	sessions, err := service.NewSessionService(service.SessionServiceOptions{
		Deps: service.SessionDeps{Backend: backend, Credentials: creds},
		Config: service.SessionConfig{
			Fallback: service.DemoFallback{
				Enabled:  cfg.Staff.DemoEnabled,
				Login:    cfg.Staff.FallbackLogin,
				Password: cfg.Staff.FallbackPassword,
			},
			CredentialTTL: cfg.Staff.CredentialTTL,
		},
		Observers: service.SessionObservers{
			Logger:  logger,
			Metrics: obs.metricsSink(),
			Audit:   audit,
			Alerts:  obs.Alerts,
		},
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build session service: %w", err)
	}
	if cfg.Staff.DemoEnabled {
		logger.Warn("demo fallback enabled, the fallback login becomes superuser while the staff backend is down",
			"login", cfg.Staff.FallbackLogin)
	}

	return ServiceContainer{
		Sessions:      sessions,
		Tokens:        service.NewTokenDelegate(front),
		Backend:       backend,
		SharedAPI:     shared,
		Storefront:    front,
		Credentials:   creds,
		AuthEvents:    authEvents,
		Observability: obs,
	}, nil
}

func newUpstreamClients(cfg config.StaffConfig, logger *slog.Logger) (*staffapi.Client, *staffapi.Client, error) {
	backend, err := staffapi.NewClient(staffapi.Config{
		BaseURL:   cfg.BackendURL,
		Timeout:   cfg.Timeout,
		UserAgent: userAgent,
		Mapping: staffapi.IdentityMapping{
			ID:          cfg.Identity.ID,
			Login:       cfg.Identity.Login,
			DisplayName: cfg.Identity.DisplayName,
			Role:        cfg.Identity.Role,
			IsActive:    cfg.Identity.IsActive,
		},
		Logger: logger.With("upstream", "staff_backend"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build staff backend client: %w", err)
	}
	shared, err := staffapi.NewClient(staffapi.Config{
		BaseURL:   cfg.SharedAPIURL,
		Timeout:   cfg.Timeout,
		UserAgent: userAgent,
		Logger:    logger.With("upstream", "shared_api"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build shared api client: %w", err)
	}
	return backend, shared, nil
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var metricsClient *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			Logger:     logger,
			GlobalTags: cfg.Metrics.Tags,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsClient = client
		}
	}

	return ObservabilityContainer{
		Metrics:       metricsClient,
		MetricsConfig: cfg.Metrics,
		Alerts:        buildAlertSink(logger, cfg.Notifications),
	}
}

//nolint:ireturn // callers only need the notify.Sink behaviour.
func buildAlertSink(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) notify.Sink {
	if !cfg.Enabled || !cfg.Active() {
		return nil
	}

	var sinks []securityalerts.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, securityalerts.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Endpoint:   cfg.PagerDuty.Endpoint,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, securityalerts.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	svc := securityalerts.NewService(securityalerts.Options{
		Logger:   logger.With("component", "security_alerts"),
		Sinks:    sinks,
		Cooldown: cfg.Cooldown,
	})
	if !svc.Enabled() {
		return nil
	}
	logger.Info("security alerts enabled", "sinks", svc.SinkNames(), "cooldown", cfg.Cooldown)
	return svc
}
