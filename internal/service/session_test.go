package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/mocks"
	mockauth "github.com/garagebay/staffgate/internal/mocks/auth"
	"github.com/garagebay/staffgate/internal/observability/metrics"
	"github.com/garagebay/staffgate/internal/observability/notify"
	"github.com/garagebay/staffgate/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSID = "5d0c2f5e-3c4b-4a8e-9f3e-2a7d1c9b0e11"

type recordingSink struct {
	mu      sync.Mutex
	counts  []map[string]string
	gauges  map[string]float64
	timings []string
}

func (s *recordingSink) Count(_ string, _ int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, metrics.CloneTags(tags))
}

func (s *recordingSink) Gauge(name string, v float64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gauges == nil {
		s.gauges = make(map[string]float64)
	}
	s.gauges[name] = v
}

func (s *recordingSink) Timing(_ string, _ time.Duration, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings = append(s.timings, tags["operation"]+":"+tags["result"])
}

func (s *recordingSink) results(operation string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, tags := range s.counts {
		if tags["operation"] == operation {
			out = append(out, tags["result"])
		}
	}
	return out
}

type sessionFixture struct {
	svc     *SessionService
	backend *mocks.MockAuthBackend
	store   *mockauth.MemoryCredentialStore
	audit   *mockauth.MemoryAuthEventRecorder
	sink    *recordingSink
}

func newSessionFixture(t *testing.T, fallback DemoFallback) sessionFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := sessionFixture{
		backend: mocks.NewMockAuthBackend(ctrl),
		store:   mockauth.NewMemoryCredentialStore(),
		audit:   &mockauth.MemoryAuthEventRecorder{},
		sink:    &recordingSink{},
	}
	svc, err := NewSessionService(SessionServiceOptions{
		Deps:      SessionDeps{Backend: f.backend, Credentials: f.store},
		Config:    SessionConfig{Fallback: fallback, CredentialTTL: time.Hour},
		Observers: SessionObservers{Metrics: f.sink, Audit: f.audit},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func demoFallback() DemoFallback {
	return DemoFallback{Enabled: true, Login: "admin", Password: "admin"}
}

func supportIdentity() domainauth.Identity {
	return domainauth.Identity{
		ID:          7,
		Login:       "olga",
		DisplayName: "Ольга",
		IsActive:    true,
		Role: domainauth.NewRole(3, "Поддержка", "support", false, []domainauth.Permission{
			domainauth.PermFeedbackView,
		}),
	}
}

func TestNewSessionService_RequiresDeps(t *testing.T) {
	_, err := NewSessionService(SessionServiceOptions{})
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	_, err = NewSessionService(SessionServiceOptions{Deps: SessionDeps{Backend: mocks.NewMockAuthBackend(ctrl)}})
	require.Error(t, err)
}

func TestSessionService_Login_Success(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	id := supportIdentity()

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok-olga"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok-olga")).Return(id, nil)

	sess, err := f.svc.Login(ctx, testSID, "olga", "secret")
	require.NoError(t, err)
	assert.Equal(t, domainauth.PhaseReady, sess.Phase)
	assert.Equal(t, domainauth.Credential("tok-olga"), sess.Credential)
	require.NotNil(t, sess.Identity)
	assert.Equal(t, "olga", sess.Identity.Login)
	require.NoError(t, sess.Validate())

	cred, err := f.store.Load(ctx, testSID)
	require.NoError(t, err)
	assert.Equal(t, []string{"login:success"}, f.sink.timings)
	assert.Equal(t, domainauth.Credential("tok-olga"), cred)

	// Current serves the in-memory session without another resolution.
	cur := f.svc.Current(ctx, testSID)
	assert.Equal(t, sess, cur)

	assert.Equal(t, []string{OutcomeLoginSucceeded}, f.audit.Outcomes())
	assert.Equal(t, []string{metrics.ResultSuccess}, f.sink.results("login"))
}

func TestSessionService_Login_DemoFallbackWhenUnreachable(t *testing.T) {
	for _, cause := range []error{domainauth.ErrUnreachable, domainauth.ErrNotFound} {
		t.Run(cause.Error(), func(t *testing.T) {
			f := newSessionFixture(t, demoFallback())
			ctx := context.Background()

			f.backend.EXPECT().Login(gomock.Any(), "admin", "admin").
				Return(domainauth.Credential(""), fmt.Errorf("dial: %w", cause))
			// No Me expectation: the demo identity is installed without resolution.

			sess, err := f.svc.Login(ctx, testSID, "admin", "admin")
			require.NoError(t, err)
			assert.True(t, sess.IsDemo())
			assert.Equal(t, domainauth.PhaseReady, sess.Phase)
			require.NotNil(t, sess.Identity)
			assert.True(t, sess.Identity.Role.IsSuperuser())
			for _, p := range domainauth.Catalog() {
				assert.True(t, domainauth.Has(sess.Identity, p), p)
			}

			cred, err := f.store.Load(ctx, testSID)
			require.NoError(t, err)
			assert.Equal(t, domainauth.DemoCredential, cred)

			tok, ok := NewTokenDelegate(mockauth.StaticStorefront{Token: "sf-token"}).TokenForSharedAPI(ctx, sess)
			assert.True(t, ok)
			assert.Equal(t, "sf-token", tok)

			assert.Equal(t, []string{OutcomeDemoFallback}, f.audit.Outcomes())
		})
	}
}

func TestSessionService_Login_DemoFallbackRaisesAlert(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockAuthBackend(ctrl)
	audit := &mockauth.MemoryAuthEventRecorder{}
	alerts := make(chan notify.SecurityAlert, 1)
	svc, err := NewSessionService(SessionServiceOptions{
		Deps:   SessionDeps{Backend: backend, Credentials: mockauth.NewMemoryCredentialStore()},
		Config: SessionConfig{Fallback: demoFallback()},
		Observers: SessionObservers{
			Audit: audit,
			Alerts: notify.SinkFunc(func(_ context.Context, a notify.SecurityAlert) error {
				alerts <- a
				return nil
			}),
		},
	})
	require.NoError(t, err)

	backend.EXPECT().Login(gomock.Any(), "admin", "admin").
		Return(domainauth.Credential(""), domainauth.ErrUnreachable)

	_, err = svc.Login(context.Background(), testSID, "admin", "admin")
	require.NoError(t, err)

	select {
	case a := <-alerts:
		assert.Equal(t, notify.KindDemoFallback, a.Kind)
		assert.Equal(t, "admin", a.Login)
		assert.Equal(t, "5d0c2f5e", a.SessionID)
		assert.Equal(t, "unreachable", a.ErrorClass)
		assert.Equal(t, notify.SeverityCritical, a.Severity)
		assert.False(t, a.OccurredAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("expected demo fallback alert")
	}

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "5d0c2f5e", events[0].SessionID, "audit trail stores only the sid prefix")
}

func TestSessionService_Login_NoFallback(t *testing.T) {
	tests := []struct {
		name     string
		fallback DemoFallback
		login    string
		password string
		err      error
		want     error
		outcome  string
	}{
		{
			name:     "rejected credentials never fall back",
			fallback: demoFallback(),
			login:    "admin", password: "admin",
			err:     domainauth.ErrRejected,
			want:    domainauth.ErrRejected,
			outcome: OutcomeLoginRejected,
		},
		{
			name:     "unreachable with a different pair",
			fallback: demoFallback(),
			login:    "admin", password: "hunter2",
			err:     domainauth.ErrUnreachable,
			want:    domainauth.ErrUnreachable,
			outcome: OutcomeLoginUnreachable,
		},
		{
			name:     "fallback disabled",
			fallback: DemoFallback{Login: "admin", Password: "admin"},
			login:    "admin", password: "admin",
			err:     domainauth.ErrUnreachable,
			want:    domainauth.ErrUnreachable,
			outcome: OutcomeLoginUnreachable,
		},
		{
			name:     "forbidden",
			fallback: demoFallback(),
			login:    "admin", password: "admin",
			err:     domainauth.ErrForbidden,
			want:    domainauth.ErrForbidden,
			outcome: OutcomeLoginFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t, tt.fallback)
			ctx := context.Background()

			f.backend.EXPECT().Login(gomock.Any(), tt.login, tt.password).Return(domainauth.Credential(""), tt.err)

			_, err := f.svc.Login(ctx, testSID, tt.login, tt.password)
			require.ErrorIs(t, err, tt.want)

			sess := f.svc.Current(ctx, testSID)
			assert.Equal(t, domainauth.PhaseUnauthenticated, sess.Phase)
			assert.Nil(t, sess.Identity)
			assert.Zero(t, f.store.Len())
			assert.Equal(t, []string{tt.outcome}, f.audit.Outcomes())
		})
	}
}

func TestSessionService_Login_FailureKeepsPriorSession(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok-olga"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok-olga")).Return(supportIdentity(), nil)
	f.backend.EXPECT().Login(gomock.Any(), "olga", "typo").Return(domainauth.Credential(""), domainauth.ErrRejected)

	before, err := f.svc.Login(ctx, testSID, "olga", "secret")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, testSID, "olga", "typo")
	require.ErrorIs(t, err, domainauth.ErrRejected)
	assert.Equal(t, before, f.svc.Current(ctx, testSID))
}

func TestSessionService_Login_BackendIssuedSentinelIsRejected(t *testing.T) {
	f := newSessionFixture(t, demoFallback())

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.DemoCredential, nil)

	_, err := f.svc.Login(context.Background(), testSID, "olga", "secret")
	require.ErrorIs(t, err, domainauth.ErrRejected)
	assert.Zero(t, f.store.Len())
}

func TestSessionService_Login_ResolutionFailureCollapsesSession(t *testing.T) {
	inactive := supportIdentity()
	inactive.IsActive = false

	tests := []struct {
		name string
		me   func() (domainauth.Identity, error)
		want error
	}{
		{name: "me rejected", me: func() (domainauth.Identity, error) { return domainauth.Identity{}, domainauth.ErrRejected }, want: domainauth.ErrRejected},
		{name: "me unreachable", me: func() (domainauth.Identity, error) { return domainauth.Identity{}, domainauth.ErrUnreachable }, want: domainauth.ErrUnreachable},
		{name: "deactivated", me: func() (domainauth.Identity, error) { return inactive, nil }, want: domainauth.ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t, demoFallback())
			ctx := context.Background()

			f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil)
			f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(tt.me())

			sess, err := f.svc.Login(ctx, testSID, "olga", "secret")
			require.ErrorIs(t, err, tt.want)
			assert.True(t, sess.Empty())
			assert.Zero(t, f.store.Len())
			assert.Equal(t, []string{OutcomeResolveFailed}, f.audit.Outcomes())
		})
	}
}

func TestSessionService_Login_PersistFailure(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	f.store.SaveErr = errors.New("redis down")

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil)

	_, err := f.svc.Login(context.Background(), testSID, "olga", "secret")
	require.ErrorContains(t, err, "persist credential")
	assert.True(t, f.svc.Current(context.Background(), testSID).Empty())
}

func TestSessionService_Login_CredentialTTLFollowsExpiry(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	now := time.Now().Truncate(time.Second)
	f.svc.obs.now = func() time.Time { return now }

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Minute)),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential(tok), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential(tok)).Return(supportIdentity(), nil)

	_, err = f.svc.Login(context.Background(), testSID, "olga", "secret")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, f.store.TTL(testSID))
}

func TestSessionService_Current_HydratesFromStore(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, testSID, "tok-olga", time.Hour))

	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok-olga")).Return(supportIdentity(), nil).Times(1)

	sess := f.svc.Current(ctx, testSID)
	assert.Equal(t, domainauth.PhaseReady, sess.Phase)
	require.NotNil(t, sess.Identity)
	assert.Equal(t, "olga", sess.Identity.Login)

	again := f.svc.Current(ctx, testSID)
	assert.Equal(t, sess, again)
}

func TestSessionService_Current_HydratesDemoWithoutBackend(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, testSID, domainauth.DemoCredential, time.Hour))

	sess := f.svc.Current(ctx, testSID)
	assert.True(t, sess.IsDemo())
	assert.Equal(t, domainauth.PhaseReady, sess.Phase)
	assert.Equal(t, domainauth.DemoIdentity(), *sess.Identity)
}

func TestSessionService_Current_ExpiredCredentialIsCleared(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, testSID, "stale", time.Hour))

	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("stale")).Return(domainauth.Identity{}, domainauth.ErrRejected)

	sess := f.svc.Current(ctx, testSID)
	assert.True(t, sess.Empty())
	assert.Zero(t, f.store.Len())
}

func TestSessionService_Current_EmptySID(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	assert.True(t, f.svc.Current(context.Background(), "").Empty())
}

func TestSessionService_Refresh(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()

	promoted := supportIdentity()
	promoted.Role = domainauth.NewRole(4, "Старший", "senior_support", false, []domainauth.Permission{
		domainauth.PermFeedbackView, domainauth.PermFeedbackEdit,
	})

	gomock.InOrder(
		f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil),
		f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(supportIdentity(), nil),
		f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(promoted, nil),
	)

	sess, err := f.svc.Login(ctx, testSID, "olga", "secret")
	require.NoError(t, err)
	assert.False(t, domainauth.Has(sess.Identity, domainauth.PermFeedbackEdit))

	sess, err = f.svc.Refresh(ctx, testSID)
	require.NoError(t, err)
	assert.True(t, domainauth.Has(sess.Identity, domainauth.PermFeedbackEdit))
	assert.Equal(t, "senior_support", sess.Identity.Role.Slug)
	assert.Equal(t, []string{OutcomeLoginSucceeded, OutcomeRefreshed}, f.audit.Outcomes())
}

func TestSessionService_Refresh_RejectedResetsSession(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()

	gomock.InOrder(
		f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil),
		f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(supportIdentity(), nil),
		f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(domainauth.Identity{}, domainauth.ErrRejected),
	)

	_, err := f.svc.Login(ctx, testSID, "olga", "secret")
	require.NoError(t, err)

	sess, err := f.svc.Refresh(ctx, testSID)
	require.ErrorIs(t, err, domainauth.ErrRejected)
	assert.True(t, sess.Empty())
	assert.True(t, f.svc.Current(ctx, testSID).Empty())
	assert.Zero(t, f.store.Len())
}

func TestSessionService_Refresh_NoopForDemoAndEmpty(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()

	sess, err := f.svc.Refresh(ctx, testSID)
	require.NoError(t, err)
	assert.True(t, sess.Empty())

	f.backend.EXPECT().Login(gomock.Any(), "admin", "admin").Return(domainauth.Credential(""), domainauth.ErrUnreachable)
	_, err = f.svc.Login(ctx, testSID, "admin", "admin")
	require.NoError(t, err)

	sess, err = f.svc.Refresh(ctx, testSID)
	require.NoError(t, err)
	assert.True(t, sess.IsDemo())
	assert.Equal(t, domainauth.PhaseReady, sess.Phase)
	assert.Equal(t, []string{metrics.ResultNoop, metrics.ResultNoop}, f.sink.results("refresh"))
}

func TestSessionService_Logout(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(supportIdentity(), nil)

	_, err := f.svc.Login(ctx, testSID, "olga", "secret")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, testSID))
	require.NoError(t, f.svc.Logout(ctx, testSID))
	require.NoError(t, f.svc.Logout(ctx, ""))

	assert.True(t, f.svc.Current(ctx, testSID).Empty())
	assert.Zero(t, f.store.Len())
	assert.Equal(t, []string{OutcomeLoginSucceeded, OutcomeLogout, OutcomeLogout}, f.audit.Outcomes())
}

func TestSessionService_Logout_ClearFailure(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	f.store.ClearErr = errors.New("redis down")

	err := f.svc.Logout(context.Background(), testSID)
	require.ErrorContains(t, err, "clear credential")
	assert.Equal(t, []string{metrics.ResultError}, f.sink.results("logout"))
}

// blockingMe makes Me block until release is closed, signalling started first.
func blockingMe(id domainauth.Identity, started chan<- struct{}, release <-chan struct{}) func(context.Context, domainauth.Credential) (domainauth.Identity, error) {
	return func(context.Context, domainauth.Credential) (domainauth.Identity, error) {
		close(started)
		<-release
		return id, nil
	}
}

func TestSessionService_LogoutSupersedesInflightResolution(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).DoAndReturn(blockingMe(supportIdentity(), started, release))

	errCh := make(chan error, 1)
	go func() {
		_, err := f.svc.Login(ctx, testSID, "olga", "secret")
		errCh <- err
	}()

	<-started
	require.NoError(t, f.svc.Logout(ctx, testSID))
	close(release)

	err := <-errCh
	require.ErrorIs(t, err, ErrSuperseded)
	assert.True(t, f.svc.Current(ctx, testSID).Empty())
	assert.Zero(t, f.store.Len())
	assert.Equal(t, []string{metrics.ResultSuperseded}, f.sink.results("login"))
}

func TestSessionService_LastLoginWins(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	boss := domainauth.Identity{
		ID: 1, Login: "boss", DisplayName: "Босс", IsActive: true,
		Role: domainauth.NewRole(1, "Суперадминистратор", domainauth.SuperAdminSlug, true, nil),
	}

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok-olga"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok-olga")).DoAndReturn(blockingMe(supportIdentity(), started, release))
	f.backend.EXPECT().Login(gomock.Any(), "boss", "secret").Return(domainauth.Credential("tok-boss"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok-boss")).Return(boss, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.svc.Login(ctx, testSID, "olga", "secret")
		errCh <- err
	}()

	<-started
	sess, err := f.svc.Login(ctx, testSID, "boss", "secret")
	require.NoError(t, err)
	assert.Equal(t, "boss", sess.Identity.Login)

	close(release)
	require.ErrorIs(t, <-errCh, ErrSuperseded)

	cur := f.svc.Current(ctx, testSID)
	assert.Equal(t, domainauth.Credential("tok-boss"), cur.Credential)
	assert.Equal(t, "boss", cur.Identity.Login)
	stored, err := f.store.Load(ctx, testSID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.Credential("tok-boss"), stored)
}

func TestSessionService_CurrentDuringResolutionReportsResolving(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).DoAndReturn(blockingMe(supportIdentity(), started, release))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.svc.Login(ctx, testSID, "olga", "secret")
	}()

	<-started
	mid := f.svc.Current(ctx, testSID)
	assert.Equal(t, domainauth.PhaseResolving, mid.Phase)
	assert.Nil(t, mid.Identity)
	require.NoError(t, mid.Validate())

	close(release)
	<-done
	assert.Equal(t, domainauth.PhaseReady, f.svc.Current(ctx, testSID).Phase)
}

func TestSessionService_ChangePassword(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	in := ports.ChangePasswordInput{OldPassword: "secret", NewPassword: "better"}

	require.ErrorIs(t, f.svc.ChangePassword(ctx, testSID, in), domainauth.ErrNoSession)

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(supportIdentity(), nil)
	f.backend.EXPECT().ChangePassword(gomock.Any(), domainauth.Credential("tok"), in).Return(nil)

	_, err := f.svc.Login(ctx, testSID, "olga", "secret")
	require.NoError(t, err)

	require.Error(t, f.svc.ChangePassword(ctx, testSID, ports.ChangePasswordInput{OldPassword: "secret"}))
	require.NoError(t, f.svc.ChangePassword(ctx, testSID, in))
	assert.Contains(t, f.audit.Outcomes(), OutcomePasswordChanged)
}

func TestSessionService_ChangePassword_RefusesDemo(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()

	f.backend.EXPECT().Login(gomock.Any(), "admin", "admin").Return(domainauth.Credential(""), domainauth.ErrUnreachable)
	_, err := f.svc.Login(ctx, testSID, "admin", "admin")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, testSID, ports.ChangePasswordInput{OldPassword: "admin", NewPassword: "x"})
	require.ErrorIs(t, err, domainauth.ErrDemoCredential)
}

func TestSessionService_AuditFailureDoesNotSurface(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	f.audit.Err = errors.New("audit table missing")

	f.backend.EXPECT().Login(gomock.Any(), "olga", "secret").Return(domainauth.Credential("tok"), nil)
	f.backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(supportIdentity(), nil)

	_, err := f.svc.Login(context.Background(), testSID, "olga", "secret")
	require.NoError(t, err)
}

func TestSessionService_Sweep(t *testing.T) {
	f := newSessionFixture(t, demoFallback())
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.svc.obs.now = func() time.Time { return now }

	require.NoError(t, f.store.Save(ctx, "sid-a", domainauth.DemoCredential, time.Hour))
	require.NoError(t, f.store.Save(ctx, "sid-b", domainauth.DemoCredential, time.Hour))
	f.svc.Current(ctx, "sid-a")

	now = now.Add(20 * time.Minute)
	f.svc.Current(ctx, "sid-b")

	assert.Equal(t, 1, f.svc.Sweep(10*time.Minute))
	assert.InDelta(t, 1, f.sink.gauges["auth.sessions.cached"], 0)
	assert.Equal(t, 0, f.svc.Sweep(10*time.Minute))

	// A swept session is hydrated again from the persisted credential.
	assert.True(t, f.svc.Current(ctx, "sid-a").IsDemo())
}
