package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/garagebay/staffgate/config"
	"github.com/garagebay/staffgate/internal/service/securityalerts"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Staff: config.StaffConfig{
			BackendURL:       "http://staff.internal",
			SharedAPIURL:     "http://api.internal",
			DemoEnabled:      true,
			FallbackLogin:    "admin",
			FallbackPassword: "admin",
		},
		HTTP: config.HTTPConfig{Addr: "127.0.0.1:0"},
	}
	cfg.Sanitize()
	return cfg
}

// lazyRedis never dials until a command is issued.
func lazyRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewServices_RequiresDeps(t *testing.T) {
	_, err := NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{Config: testAppConfig()})
	require.Error(t, err)
}

func TestNewServices_WithoutPostgres(t *testing.T) {
	cfg := testAppConfig()
	cfg.Staff.CredentialPrefix = "bo_token:"

	svcs, err := NewServices(&ServiceDeps{Config: cfg, Redis: lazyRedis(t), Logger: discardLogger()})
	require.NoError(t, err)

	assert.NotNil(t, svcs.Sessions)
	assert.NotNil(t, svcs.Tokens)
	assert.NotNil(t, svcs.Backend)
	assert.NotNil(t, svcs.SharedAPI)
	assert.Nil(t, svcs.AuthEvents)
	assert.Equal(t, "bo_token:", svcs.Credentials.Prefix())
	assert.Equal(t, "access_token", svcs.Storefront.CookieName())
	assert.Nil(t, svcs.Observability.Metrics)
	assert.Nil(t, svcs.Observability.Alerts)
}

func TestNewServices_RejectsBadIdentityExpression(t *testing.T) {
	cfg := testAppConfig()
	cfg.Staff.Identity.Login = "data.[login"

	_, err := NewServices(&ServiceDeps{Config: cfg, Redis: lazyRedis(t), Logger: discardLogger()})
	require.Error(t, err)
}

func TestBuildAlertSink(t *testing.T) {
	logger := discardLogger()

	assert.Nil(t, buildAlertSink(logger, config.ObservabilityNotificationsConfig{}))
	assert.Nil(t, buildAlertSink(logger, config.ObservabilityNotificationsConfig{Enabled: true}))

	sink := buildAlertSink(logger, config.ObservabilityNotificationsConfig{
		Enabled:   true,
		Slack:     config.SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/x"},
		PagerDuty: config.PagerDutyNotificationConfig{Enabled: true, RoutingKey: "rk"},
	})
	svc, ok := sink.(*securityalerts.Service)
	require.True(t, ok)
	assert.Equal(t, []string{"slack", "pagerduty"}, svc.SinkNames())
}

func TestNewHTTPServer_ServesHealth(t *testing.T) {
	cfg := testAppConfig()
	svcs, err := NewServices(&ServiceDeps{Config: cfg, Redis: lazyRedis(t), Logger: discardLogger()})
	require.NoError(t, err)

	srv, err := NewHTTPServer(&HTTPServerConfig{Config: cfg, Services: svcs, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff/api/auth-events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "audit endpoint needs postgres")
}

func TestHealthChecks(t *testing.T) {
	assert.Empty(t, healthChecks(nil, nil))

	checks := healthChecks(lazyRedis(t), nil)
	require.Contains(t, checks, "redis")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, checks["redis"](ctx), "nothing listens on the test address")
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testAppConfig()
	cfg.Staff.SessionSweepInterval = 10 * time.Millisecond
	svcs, err := NewServices(&ServiceDeps{Config: cfg, Redis: lazyRedis(t), Logger: discardLogger()})
	require.NoError(t, err)
	srv, err := NewHTTPServer(&HTTPServerConfig{Config: cfg, Services: svcs, Logger: discardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunConfig{Config: cfg, Server: srv, Sessions: svcs.Sessions, Logger: discardLogger()})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RequiresServer(t *testing.T) {
	require.Error(t, Run(context.Background(), RunConfig{Config: testAppConfig()}))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("STAFF_BACKEND_URL", "https://staff.example.ru")
	t.Setenv("STAFF_SHARED_API_URL", "https://api.example.ru")
	t.Setenv("STAFF_DEMO_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Staff.DemoEnabled)

	t.Setenv("APP_COOKIE_DOMAIN", "co.uk")
	_, err = LoadConfig()
	require.Error(t, err)
}
