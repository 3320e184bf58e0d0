package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// KindDemoFallback is raised when a login was granted the demo superuser
// because the staff backend could not be reached.
const KindDemoFallback = "demo_fallback"

// SecurityAlert is the canonical data emitted for security-relevant auth events.
type SecurityAlert struct {
	Kind       string
	Summary    string
	Login      string
	SessionID  string // correlating prefix only
	Cause      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming security alerts.
type Sink interface {
	SendSecurityAlert(ctx context.Context, alert SecurityAlert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert SecurityAlert) error

// SendSecurityAlert implements the Sink interface.
func (f SinkFunc) SendSecurityAlert(ctx context.Context, alert SecurityAlert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}

// Retry calls send up to retryLimit+1 times with a linear backoff. It stops
// early when ctx is done or send fails permanently.
func Retry(ctx context.Context, retryLimit int, send func() error) error {
	attempts := max(retryLimit, 0) + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = send(); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 || IsPermanent(lastErr) {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
