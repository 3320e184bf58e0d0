package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultServiceName    = "staffgate"
	defaultAlertSource    = "staffgate"
	defaultAlertComponent = "staff-auth"
)

// ObservabilityConfig groups metrics and security alert settings.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies defaults to both groups.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// Validate rejects malformed sink endpoints.
func (c *ObservabilityConfig) Validate() error {
	return c.Notifications.Validate()
}

// ObservabilityMetricsConfig controls the StatsD client.
type ObservabilityMetricsConfig struct {
	Enabled       bool              `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string            `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string            `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"staffgate"`
	Tags          map[string]string `env:"OBSERVABILITY_METRICS_TAGS"` // k:v,k2:v2
}

// Sanitize trims values and disables metrics without an address.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.Prefix == "" {
		c.Prefix = defaultServiceName
	}
	for k, v := range c.Tags {
		delete(c.Tags, k)
		if k = strings.TrimSpace(k); k != "" {
			c.Tags[k] = strings.TrimSpace(v)
		}
	}
}

// IsEnabled reports whether metrics should be emitted.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound security alerts.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Cooldown   time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_COOLDOWN"    envDefault:"10m"`
	Slack      SlackNotificationConfig     `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty  PagerDutyNotificationConfig `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize clamps timings and switches off sinks that lack credentials. When
// notifications are disabled every sink is disabled too.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)
	c.Cooldown = max(c.Cooldown, 0)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// Validate checks the endpoints of enabled sinks.
func (c *ObservabilityNotificationsConfig) Validate() error {
	var errs []error
	if c.Slack.Enabled {
		if err := requireHTTPS(c.Slack.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("slack webhook url: %w", err))
		}
	}
	if c.PagerDuty.Enabled && c.PagerDuty.Endpoint != "" {
		if err := requireHTTPS(c.PagerDuty.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("pagerduty endpoint: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Active reports whether at least one sink will receive alerts.
func (c *ObservabilityNotificationsConfig) Active() bool {
	return c.Slack.Enabled || c.PagerDuty.Enabled
}

// SlackNotificationConfig configures the Slack incoming webhook.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"staffgate"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultServiceName
	}
}

// PagerDutyNotificationConfig configures PagerDuty Events API v2.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"staffgate"`
	Component  string `env:"COMPONENT"   envDefault:"staff-auth"`
	Endpoint   string `env:"ENDPOINT"` // empty uses the public Events API
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultAlertSource
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = defaultAlertComponent
	}
}

func requireHTTPS(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%q must be an absolute https URL", raw)
	}
	return nil
}
