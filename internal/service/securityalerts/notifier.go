package securityalerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/garagebay/staffgate/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the security alert service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Cooldown mutes repeats of the same kind and login; zero sends every alert.
	Cooldown time.Duration
}

// Service dispatches security alerts to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

var _ notify.Sink = (*Service)(nil)

// NewService constructs a security alert dispatcher.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "security_alerts")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger:   logger,
		sinks:    sinks,
		cooldown: max(opts.Cooldown, 0),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// SendSecurityAlert fans the alert out to all sinks in parallel and joins
// their delivery errors.
func (s *Service) SendSecurityAlert(ctx context.Context, alert notify.SecurityAlert) error {
	if len(s.sinks) == 0 {
		return nil
	}
	if s.muted(alert) {
		s.logger.DebugContext(ctx, "security alert muted by cooldown",
			"kind", alert.Kind,
			"login", alert.Login,
		)
		return nil
	}

	if alert.Severity == "" {
		alert.Severity = notify.SeverityCritical
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendSecurityAlert(ctx, alert); err != nil {
				s.logger.ErrorContext(ctx, "security alert delivery error",
					"sink", entry.Name,
					"kind", alert.Kind,
					"login", alert.Login,
					"error", err,
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", entry.Name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// muted records the alert and reports whether an identical one was sent
// within the cooldown.
func (s *Service) muted(alert notify.SecurityAlert) bool {
	if s.cooldown <= 0 {
		return false
	}
	key := alert.Kind + "\x00" + alert.Login
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && now.Sub(last) < s.cooldown {
		return true
	}
	for k, t := range s.lastSent {
		if now.Sub(t) >= s.cooldown {
			delete(s.lastSent, k)
		}
	}
	s.lastSent[key] = now
	return false
}

// Enabled reports whether the service has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// SinkNames lists the registered sinks in registration order.
func (s *Service) SinkNames() []string {
	names := make([]string, 0, len(s.sinks))
	for _, entry := range s.sinks {
		names = append(names, entry.Name)
	}
	return names
}
