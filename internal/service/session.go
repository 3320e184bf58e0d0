package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/observability/metrics"
	"github.com/garagebay/staffgate/internal/observability/notify"
	"github.com/garagebay/staffgate/internal/ports"
)

const defaultCredentialTTL = 12 * time.Hour

// ErrSuperseded is returned when a resolution finished after a newer login,
// refresh or logout replaced the credential it was started for. Its result
// has been discarded.
var ErrSuperseded = errors.New("resolution superseded")

// DemoFallback configures the demo identity fallback for logins made while the
// staff backend is unreachable.
type DemoFallback struct {
	Enabled  bool
	Login    string
	Password string
}

func (f DemoFallback) matches(login, password string) bool {
	if !f.Enabled || f.Login == "" {
		return false
	}
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(f.Login)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(f.Password)) == 1
	return loginOK && passOK
}

// SessionDeps groups the required ports for SessionService.
type SessionDeps struct {
	Backend     ports.AuthBackend     // Required: staff authorization backend
	Credentials ports.CredentialStore // Required: persisted credential store
}

// SessionConfig groups SessionService settings.
type SessionConfig struct {
	Fallback      DemoFallback
	CredentialTTL time.Duration // upper bound for persisted credentials; default 12h
}

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Deps      SessionDeps
	Config    SessionConfig
	Observers SessionObservers
}

// sessionCell is the single-writer state for one portal session.
type sessionCell struct {
	mu       sync.Mutex
	sess     domainauth.Session
	gen      uint64
	hydrated bool
	lastSeen time.Time
}

// SessionService owns the back-office Session of every portal session id.
// Each Session changes only through Login, Logout and Refresh, plus the
// initial hydration from the persisted credential in Current.
type SessionService struct {
	backend  ports.AuthBackend
	creds    ports.CredentialStore
	resolver *Resolver
	cfg      SessionConfig
	obs      observer

	mu    sync.Mutex
	cells map[string]*sessionCell
}

// NewSessionService constructs a SessionService.
func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Deps.Backend == nil {
		return nil, errors.New("AuthBackend is required")
	}
	if opts.Deps.Credentials == nil {
		return nil, errors.New("CredentialStore is required")
	}
	cfg := opts.Config
	if cfg.CredentialTTL <= 0 {
		cfg.CredentialTTL = defaultCredentialTTL
	}

	return &SessionService{
		backend:  opts.Deps.Backend,
		creds:    opts.Deps.Credentials,
		resolver: NewResolver(opts.Deps.Backend),
		cfg:      cfg,
		obs:      newObserver(opts.Observers),
		cells:    make(map[string]*sessionCell),
	}, nil
}

func (s *SessionService) cell(sid string) *sessionCell {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cells[sid]
	if !ok {
		c = &sessionCell{sess: domainauth.EmptySession()}
		s.cells[sid] = c
	}
	return c
}

// Current returns a snapshot of the session for sid. The first call for a sid
// hydrates it from the persisted credential and resolves the identity in the
// calling goroutine; concurrent callers observe PhaseResolving meanwhile.
func (s *SessionService) Current(ctx context.Context, sid string) domainauth.Session {
	if sid == "" {
		return domainauth.EmptySession()
	}

	c := s.cell(sid)
	c.mu.Lock()
	c.lastSeen = s.obs.now()
	if c.hydrated {
		snap := c.sess
		c.mu.Unlock()
		return snap
	}
	c.hydrated = true
	c.gen++
	gen := c.gen
	c.sess = domainauth.Session{Phase: domainauth.PhaseResolving}
	c.mu.Unlock()

	return s.hydrate(ctx, sid, c, gen)
}

func (s *SessionService) hydrate(ctx context.Context, sid string, c *sessionCell, gen uint64) domainauth.Session {
	cred, err := s.creds.Load(ctx, sid)

	c.mu.Lock()
	if c.gen != gen {
		snap := c.sess
		c.mu.Unlock()
		return snap
	}
	if err != nil || cred == "" {
		if err != nil && !errors.Is(err, ports.ErrCredentialNotFound) {
			s.obs.logger.WarnContext(ctx, "load persisted credential failed", "sid", shortSID(sid), "error", err)
		}
		c.sess = domainauth.EmptySession()
		snap := c.sess
		c.mu.Unlock()
		return snap
	}
	c.sess = domainauth.Session{Credential: cred, Phase: domainauth.PhaseResolving}
	c.mu.Unlock()

	snap, _ := s.resolveAndApply(ctx, resolution{sid: sid, cell: c, gen: gen, cred: cred, operation: "resolve"})
	return snap
}

// Login authenticates against the staff backend and installs the resulting
// credential and identity.
//
// When the backend is unreachable (or the login endpoint is missing) and the
// attempted pair equals the configured fallback pair, the demo sentinel is
// installed with the demo identity instead, without any resolution call. Any
// other failure is returned and leaves the prior session untouched.
func (s *SessionService) Login(ctx context.Context, sid, login, password string) (domainauth.Session, error) {
	if sid == "" {
		return domainauth.Session{}, errors.New("session ID is required")
	}

	cred, err := s.backend.Login(ctx, login, password)
	if err != nil {
		if domainauth.FallbackEligible(err) && s.cfg.Fallback.matches(login, password) {
			return s.installDemo(ctx, sid, login, err)
		}
		s.obs.observe(ctx, authOutcome{
			sid: sid, login: login, operation: "login",
			outcome: loginFailureOutcome(err), result: metrics.ResultError, err: err,
		})
		return domainauth.Session{}, fmt.Errorf("login: %w", err)
	}
	if cred.IsDemo() {
		// A backend must never hand out the reserved sentinel.
		err = fmt.Errorf("backend issued reserved credential: %w", domainauth.ErrRejected)
		s.obs.observe(ctx, authOutcome{
			sid: sid, login: login, operation: "login",
			outcome: OutcomeLoginRejected, result: metrics.ResultError, err: err,
		})
		return domainauth.Session{}, fmt.Errorf("login: %w", err)
	}

	c := s.cell(sid)
	c.mu.Lock()
	if err = s.creds.Save(ctx, sid, cred, credentialTTL(cred, s.cfg.CredentialTTL, s.obs.now())); err != nil {
		c.mu.Unlock()
		return domainauth.Session{}, fmt.Errorf("persist credential: %w", err)
	}
	c.gen++
	gen := c.gen
	c.hydrated = true
	c.lastSeen = s.obs.now()
	c.sess = domainauth.Session{Credential: cred, Phase: domainauth.PhaseResolving}
	c.mu.Unlock()

	snap, err := s.resolveAndApply(ctx, resolution{sid: sid, cell: c, gen: gen, cred: cred, operation: "login", login: login})
	if err != nil {
		return snap, fmt.Errorf("login: %w", err)
	}
	s.obs.observe(ctx, authOutcome{
		sid: sid, login: login, operation: "login",
		outcome: OutcomeLoginSucceeded, result: metrics.ResultSuccess,
	})
	return snap, nil
}

func (s *SessionService) installDemo(ctx context.Context, sid, login string, cause error) (domainauth.Session, error) {
	c := s.cell(sid)
	c.mu.Lock()
	if err := s.creds.Save(ctx, sid, domainauth.DemoCredential, s.cfg.CredentialTTL); err != nil {
		c.mu.Unlock()
		return domainauth.Session{}, fmt.Errorf("persist demo credential: %w", err)
	}
	c.gen++
	c.hydrated = true
	c.lastSeen = s.obs.now()
	c.sess = domainauth.DemoSession()
	snap := c.sess
	c.mu.Unlock()

	s.obs.logger.WarnContext(ctx, "staff backend unavailable, using demo identity",
		"sid", shortSID(sid), "cause", cause)
	s.obs.observe(ctx, authOutcome{
		sid: sid, login: login, operation: "login",
		outcome: OutcomeDemoFallback, result: metrics.ResultDemoFallback,
	})
	s.obs.alert(ctx, notify.SecurityAlert{
		Kind:       notify.KindDemoFallback,
		Summary:    fmt.Sprintf("Demo superuser granted to %q while the staff backend is unavailable", login),
		Login:      login,
		SessionID:  shortSID(sid),
		Cause:      fmt.Sprint(cause),
		ErrorClass: ErrorClass(cause),
		Severity:   notify.SeverityCritical,
	})
	return snap, nil
}

// Logout clears the persisted credential and resets the session. It never
// calls the staff backend and is idempotent. Any in-flight resolution for the
// session is discarded when it completes.
func (s *SessionService) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil // Nothing to logout
	}

	c := s.cell(sid)
	c.mu.Lock()
	c.gen++
	c.hydrated = true
	c.sess = domainauth.EmptySession()
	err := s.creds.Clear(ctx, sid)
	c.mu.Unlock()

	s.mu.Lock()
	delete(s.cells, sid)
	s.mu.Unlock()

	result := metrics.ResultSuccess
	if err != nil {
		err = fmt.Errorf("clear credential: %w", err)
		result = metrics.ResultError
	}
	s.obs.observe(ctx, authOutcome{
		sid: sid, operation: "logout", outcome: OutcomeLogout, result: result, err: err,
	})
	return err
}

// Refresh re-resolves the current credential, picking up role or permission
// changes. It is a no-op for the demo sentinel and for empty sessions.
func (s *SessionService) Refresh(ctx context.Context, sid string) (domainauth.Session, error) {
	if sid == "" {
		return domainauth.EmptySession(), nil
	}

	c := s.cell(sid)
	c.mu.Lock()
	cred := c.sess.Credential
	if cred == "" || cred.IsDemo() {
		snap := c.sess
		c.mu.Unlock()
		metrics.EmitAuth(s.obs.metrics, metrics.AuthMetric{Operation: "refresh", Result: metrics.ResultNoop})
		return snap, nil
	}
	c.gen++
	gen := c.gen
	c.lastSeen = s.obs.now()
	c.sess = domainauth.Session{Credential: cred, Phase: domainauth.PhaseResolving}
	c.mu.Unlock()

	snap, err := s.resolveAndApply(ctx, resolution{sid: sid, cell: c, gen: gen, cred: cred, operation: "refresh", fresh: true})
	if err != nil {
		return snap, fmt.Errorf("refresh: %w", err)
	}
	login := ""
	if snap.Identity != nil {
		login = snap.Identity.Login
	}
	s.obs.observe(ctx, authOutcome{
		sid: sid, login: login, operation: "refresh",
		outcome: OutcomeRefreshed, result: metrics.ResultSuccess,
	})
	return snap, nil
}

// ChangePassword changes the password of the current identity. The demo
// identity is refused outright.
func (s *SessionService) ChangePassword(ctx context.Context, sid string, in ports.ChangePasswordInput) error {
	sess := s.Current(ctx, sid)
	switch {
	case sess.Identity == nil:
		return domainauth.ErrNoSession
	case sess.IsDemo():
		return domainauth.ErrDemoCredential
	}
	if in.NewPassword == "" {
		return errors.New("new password is required")
	}

	err := s.backend.ChangePassword(ctx, sess.Credential, in)
	result := metrics.ResultSuccess
	outcome := OutcomePasswordChanged
	if err != nil {
		result = metrics.ResultError
		outcome = ""
	}
	s.obs.observe(ctx, authOutcome{
		sid: sid, login: sess.Identity.Login, operation: "change_password",
		outcome: outcome, result: result, err: err,
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

type resolution struct {
	sid       string
	cell      *sessionCell
	gen       uint64
	cred      domainauth.Credential
	operation string
	login     string
	fresh     bool
}

// resolveAndApply resolves r.cred and applies the outcome only if the session
// still carries the generation and credential captured when r started. A
// failed resolution resets the session and clears the persisted credential.
func (s *SessionService) resolveAndApply(ctx context.Context, r resolution) (domainauth.Session, error) {
	// A client disconnect must not collapse a session mid-resolution.
	start := s.obs.now()
	resolve := s.resolver.Resolve
	if r.fresh {
		resolve = s.resolver.ResolveFresh
	}
	id, err := resolve(context.WithoutCancel(ctx), r.cred)
	metrics.EmitResolve(s.obs.metrics, r.operation, s.obs.now().Sub(start), err != nil)

	c := r.cell
	c.mu.Lock()
	if c.gen != r.gen || c.sess.Credential != r.cred {
		snap := c.sess
		c.mu.Unlock()
		s.obs.logger.DebugContext(ctx, "discarding superseded resolution", "sid", shortSID(r.sid), "operation", r.operation)
		metrics.EmitAuth(s.obs.metrics, metrics.AuthMetric{Operation: r.operation, Result: metrics.ResultSuperseded})
		return snap, ErrSuperseded
	}
	if err != nil {
		c.gen++
		c.sess = domainauth.EmptySession()
		clearErr := s.creds.Clear(ctx, r.sid)
		c.mu.Unlock()

		if clearErr != nil {
			err = errors.Join(err, fmt.Errorf("clear credential: %w", clearErr))
		}
		s.obs.observe(ctx, authOutcome{
			sid: r.sid, login: r.login, operation: r.operation,
			outcome: OutcomeResolveFailed, result: metrics.ResultError, err: err,
		})
		return domainauth.EmptySession(), err
	}
	c.sess = domainauth.Session{Credential: r.cred, Identity: &id, Phase: domainauth.PhaseReady}
	snap := c.sess
	c.mu.Unlock()
	return snap, nil
}

// Sweep forgets in-memory sessions idle for longer than maxIdle. The persisted
// credential is kept, so a returning browser is hydrated again. It returns the
// number of sessions dropped.
func (s *SessionService) Sweep(maxIdle time.Duration) int {
	cutoff := s.obs.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for sid, c := range s.cells {
		c.mu.Lock()
		idle := c.sess.Phase != domainauth.PhaseResolving && c.lastSeen.Before(cutoff)
		c.mu.Unlock()
		if idle {
			delete(s.cells, sid)
			dropped++
		}
	}
	metrics.EmitSessionCache(s.obs.metrics, len(s.cells), dropped)
	return dropped
}

func loginFailureOutcome(err error) string {
	switch {
	case errors.Is(err, domainauth.ErrRejected):
		return OutcomeLoginRejected
	case domainauth.FallbackEligible(err):
		return OutcomeLoginUnreachable
	default:
		return OutcomeLoginFailed
	}
}
