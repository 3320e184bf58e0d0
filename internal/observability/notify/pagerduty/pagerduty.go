// Package pagerduty triggers incidents through the Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/garagebay/staffgate/internal/observability/notify"
)

// APIEndpoint is the Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Endpoint   string // defaults to APIEndpoint
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client triggers one incident per alert kind and login.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
	now        func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, "staffgate"),
		component:  orDefault(cfg.Component, "staff-auth"),
		endpoint:   orDefault(cfg.Endpoint, APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
		now:        time.Now,
	}, nil
}

// SendSecurityAlert enqueues a trigger event, retrying transient failures.
func (c *Client) SendSecurityAlert(ctx context.Context, alert notify.SecurityAlert) error {
	ev := c.event(alert)
	return notify.Retry(ctx, c.retryLimit, func() error {
		return notify.PostJSON(ctx, c.client, "pagerduty events api", c.endpoint, ev)
	})
}

type event struct {
	RoutingKey  string  `json:"routing_key"`
	EventAction string  `json:"event_action"`
	DedupKey    string  `json:"dedup_key,omitempty"`
	Payload     payload `json:"payload"`
}

type payload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component,omitempty"`
	Class         string            `json:"class,omitempty"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

// Events API v2 severities.
var severities = map[string]bool{"critical": true, "error": true, "warning": true, "info": true}

func (c *Client) event(alert notify.SecurityAlert) event {
	severity := strings.ToLower(strings.TrimSpace(alert.Severity))
	if !severities[severity] {
		severity = notify.SeverityCritical
	}
	at := alert.OccurredAt
	if at.IsZero() {
		at = c.now()
	}
	summary := alert.Summary
	if summary == "" {
		summary = "Staff security alert " + orDefault(alert.Kind, "unknown")
	}

	details := make(map[string]string, len(alert.Metadata)+5)
	maps.Copy(details, alert.Metadata)
	// Alert fields win over metadata with the same key.
	for k, v := range map[string]string{
		"kind":        alert.Kind,
		"login":       alert.Login,
		"session":     alert.SessionID,
		"cause":       alert.Cause,
		"error_class": alert.ErrorClass,
	} {
		if v != "" {
			details[k] = v
		} else {
			delete(details, k)
		}
	}

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		// Repeated demo logins for one account collapse into a single incident.
		DedupKey: strings.Trim(alert.Kind+":"+alert.Login, ":"),
		Payload: payload{
			Summary:       truncate(summary, 1024),
			Severity:      severity,
			Source:        c.source,
			Component:     c.component,
			Class:         alert.Kind,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
