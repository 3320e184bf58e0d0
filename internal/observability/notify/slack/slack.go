// Package slack posts security alerts to an incoming webhook as Block Kit
// messages.
package slack

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/garagebay/staffgate/internal/observability/notify"
)

type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client delivers alerts to one webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	client     *http.Client
	now        func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "staffgate"
	}
	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
		now:        time.Now,
	}, nil
}

// SendSecurityAlert posts alert, retrying transient failures.
func (c *Client) SendSecurityAlert(ctx context.Context, alert notify.SecurityAlert) error {
	msg := c.message(alert)
	return notify.Retry(ctx, c.retryLimit, func() error {
		return notify.PostJSON(ctx, c.client, "slack webhook", c.webhookURL, msg)
	})
}

type message struct {
	Text     string  `json:"text"`
	Username string  `json:"username,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	Blocks   []block `json:"blocks"`
}

type block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Fields   []textObject `json:"fields,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) textObject { return textObject{Type: "mrkdwn", Text: s} }

// message builds the webhook body. Text is the notification fallback shown by
// clients that do not render blocks.
func (c *Client) message(alert notify.SecurityAlert) message {
	at := alert.OccurredAt
	if at.IsZero() {
		at = c.now()
	}
	severity := alert.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	kind := alert.Kind
	if kind == "" {
		kind = "security"
	}

	headline := "Staff security alert `" + kind + "`"
	msg := message{
		Text:     headline,
		Username: c.username,
		Channel:  c.channel,
		Blocks: []block{
			{Type: "header", Text: &textObject{Type: "plain_text", Text: "Staff security alert: " + kind}},
		},
	}
	if alert.Summary != "" {
		summary := escape(alert.Summary)
		msg.Text += ": " + summary
		msg.Blocks = append(msg.Blocks, block{Type: "section", Text: ptr(mrkdwn(summary))})
	}

	fields := []textObject{mrkdwn("*Severity*\n" + escape(severity))}
	for _, f := range []struct{ label, value string }{
		{"Login", alert.Login},
		{"Session", alert.SessionID},
		{"Error class", alert.ErrorClass},
		{"Cause", alert.Cause},
	} {
		if strings.TrimSpace(f.value) != "" {
			fields = append(fields, mrkdwn("*"+f.label+"*\n"+escape(f.value)))
		}
	}
	msg.Blocks = append(msg.Blocks, block{Type: "section", Fields: fields})

	footer := []textObject{mrkdwn(at.UTC().Format(time.RFC3339))}
	for _, k := range slices.Sorted(maps.Keys(alert.Metadata)) {
		footer = append(footer, mrkdwn(escape(k)+": "+escape(alert.Metadata[k])))
	}
	msg.Blocks = append(msg.Blocks, block{Type: "context", Elements: footer})
	return msg
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func ptr[T any](v T) *T { return &v }
