package service

import (
	"context"
	"log/slog"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	obserrors "github.com/garagebay/staffgate/internal/observability/errors"
	"github.com/garagebay/staffgate/internal/observability/metrics"
	"github.com/garagebay/staffgate/internal/observability/notify"
	"github.com/garagebay/staffgate/internal/observability/statsd"
	"github.com/garagebay/staffgate/internal/ports"
)

// Audit outcomes recorded for every authorization operation.
const (
	OutcomeLoginSucceeded   = "login_succeeded"
	OutcomeLoginRejected    = "login_rejected"
	OutcomeLoginUnreachable = "login_unreachable"
	OutcomeLoginFailed      = "login_failed"
	OutcomeDemoFallback     = "demo_fallback"
	OutcomeLogout           = "logout"
	OutcomeResolveFailed    = "resolve_failed"
	OutcomeRefreshed        = "refreshed"
	OutcomePasswordChanged  = "password_changed"
)

var authErrors = obserrors.NewClassifier(
	obserrors.Rule{Target: domainauth.ErrDemoCredential, Class: "demo_credential"},
	obserrors.Rule{Target: domainauth.ErrUnreachable, Class: "unreachable"},
	obserrors.Rule{Target: domainauth.ErrNotFound, Class: "not_found"},
	obserrors.Rule{Target: domainauth.ErrRejected, Class: "rejected"},
	obserrors.Rule{Target: domainauth.ErrForbidden, Class: "forbidden"},
	obserrors.Rule{Target: domainauth.ErrNoSession, Class: "no_session"},
)

// ErrorClass maps err onto the authorization error taxonomy for tagging.
func ErrorClass(err error) string {
	return authErrors.Classify(err)
}

// SessionObservers groups optional observability sinks for SessionService.
type SessionObservers struct {
	Logger  *slog.Logger            // Optional: structured logger
	Metrics statsd.Sink             // Optional: metrics sink (StatsD-compatible)
	Audit   ports.AuthEventRecorder // Optional: security audit trail
	Alerts  notify.Sink             // Optional: paged when the demo superuser is granted
}

type observer struct {
	logger  *slog.Logger
	metrics statsd.Sink
	audit   ports.AuthEventRecorder
	alerts  notify.Sink
	now     func() time.Time
}

func newObserver(o SessionObservers) observer {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return observer{
		logger:  logger.With("component", "staff_session"),
		metrics: o.Metrics,
		audit:   o.Audit,
		alerts:  o.Alerts,
		now:     time.Now,
	}
}

type authOutcome struct {
	sid       string
	login     string
	operation string
	outcome   string
	result    string
	err       error
}

// observe logs, counts and audits one outcome. Audit failures are logged and
// never surface to the caller.
func (o observer) observe(ctx context.Context, in authOutcome) {
	class := ErrorClass(in.err)

	attrs := []any{
		"operation", in.operation,
		"outcome", in.outcome,
		"sid", shortSID(in.sid),
	}
	if in.login != "" {
		attrs = append(attrs, "login", in.login)
	}
	if in.err != nil {
		attrs = append(attrs, "error", in.err, "error_class", class)
		o.logger.WarnContext(ctx, "staff auth operation failed", attrs...)
	} else {
		o.logger.InfoContext(ctx, "staff auth operation", attrs...)
	}

	metrics.EmitAuth(o.metrics, metrics.AuthMetric{
		Operation:  in.operation,
		Result:     in.result,
		ErrorClass: class,
	})

	if o.audit == nil || in.outcome == "" {
		return
	}
	ev := ports.AuthEvent{
		SessionID:  shortSID(in.sid),
		Login:      in.login,
		Outcome:    in.outcome,
		ErrorClass: class,
		CreatedAt:  o.now().UTC(),
	}
	if err := o.audit.Record(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.ErrorContext(ctx, "record auth event failed", "error", err, "outcome", in.outcome)
	}
}

const alertTimeout = 10 * time.Second

// alert delivers a security alert in the background. Delivery failures are
// logged only; the request that triggered the alert has already completed.
func (o observer) alert(ctx context.Context, a notify.SecurityAlert) {
	if o.alerts == nil {
		return
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = o.now().UTC()
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()
		if err := o.alerts.SendSecurityAlert(sendCtx, a); err != nil {
			o.logger.ErrorContext(sendCtx, "send security alert failed", "kind", a.Kind, "error", err)
		}
	}()
}

// shortSID keeps portal session ids out of logs beyond a correlating prefix.
func shortSID(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}
