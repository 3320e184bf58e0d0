package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/garagebay/staffgate"
	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	mockauth "github.com/garagebay/staffgate/internal/mocks/auth"
	"github.com/garagebay/staffgate/internal/service"
	"github.com/stretchr/testify/require"
)

const (
	supportPassword = "support-pass"
	supportToken    = domainauth.Credential("tok-olga")
	adminPassword   = "admin-pass"
	adminToken      = domainauth.Credential("tok-root")
	storefrontToken = "sf-token"
)

func supportIdentity(perms ...domainauth.Permission) domainauth.Identity {
	if len(perms) == 0 {
		perms = []domainauth.Permission{domainauth.PermFeedbackView}
	}
	return domainauth.Identity{
		ID:          7,
		Login:       "olga",
		DisplayName: "Ольга Поддержка",
		IsActive:    true,
		Role:        domainauth.NewRole(3, "Поддержка", "support", false, perms),
	}
}

func adminIdentity() domainauth.Identity {
	return domainauth.Identity{
		ID:          1,
		Login:       "root",
		DisplayName: "Главный администратор",
		IsActive:    true,
		Role:        domainauth.NewRole(1, "Суперадминистратор", domainauth.SuperAdminSlug, true, nil),
	}
}

// forwardCall is one request seen by a recordingForwarder.
type forwardCall struct {
	Cred   domainauth.Credential
	Method string
	Path   string
	Query  string
	Body   string
}

// recordingForwarder stands in for the shared administrative API.
type recordingForwarder struct {
	mu    sync.Mutex
	calls []forwardCall

	// Respond, when set, builds the upstream response.
	Respond func(req *http.Request) (*http.Response, error)
}

func (f *recordingForwarder) Do(_ context.Context, cred domainauth.Credential, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, forwardCall{
		Cred:   cred,
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.RawQuery,
		Body:   string(body),
	})
	f.mu.Unlock()
	if f.Respond != nil {
		return f.Respond(req)
	}
	return jsonResponse(http.StatusOK, `{"items":[]}`), nil
}

func (f *recordingForwarder) Calls() []forwardCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forwardCall(nil), f.calls...)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type testServer struct {
	handler    http.Handler
	backend    *mockauth.FakeAuthBackend
	store      *mockauth.MemoryCredentialStore
	sessions   *service.SessionService
	shared     *recordingForwarder
	storefront *mockauth.StaticStorefront
}

type serverOption func(*RouterServices)

func withAuthEvents(l AuthEventLister) serverOption {
	return func(s *RouterServices) { s.AuthEvents = l }
}

func withSharedAPI(f Forwarder) serverOption {
	return func(s *RouterServices) { s.SharedAPI = f }
}

// newTestServer wires the real router and session service against in-memory
// fakes. Two accounts exist: olga (support role) and root (super_admin).
func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	backend := mockauth.NewFakeAuthBackend()
	backend.AddAccount(supportPassword, supportIdentity(), supportToken)
	backend.AddAccount(adminPassword, adminIdentity(), adminToken)
	store := mockauth.NewMemoryCredentialStore()

	svc, err := service.NewSessionService(service.SessionServiceOptions{
		Deps: service.SessionDeps{Backend: backend, Credentials: store},
		Config: service.SessionConfig{
			Fallback:      service.DemoFallback{Enabled: true, Login: "admin", Password: "admin"},
			CredentialTTL: time.Hour,
		},
	})
	require.NoError(t, err)

	ts := &testServer{
		backend:    backend,
		store:      store,
		sessions:   svc,
		shared:     &recordingForwarder{},
		storefront: &mockauth.StaticStorefront{},
	}
	services := RouterServices{
		Sessions:  svc,
		Tokens:    service.NewTokenDelegate(storefrontFunc(func() (string, bool) { return ts.storefront.Credential(context.Background()) })),
		SharedAPI: ts.shared,
		StaffAPI:  backend,
	}
	for _, opt := range opts {
		opt(&services)
	}
	ts.handler, err = NewRouter(services)
	require.NoError(t, err)
	return ts
}

// storefrontFunc lets a test change the storefront token after wiring.
type storefrontFunc func() (string, bool)

func (f storefrontFunc) Credential(context.Context) (string, bool) { return f() }

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// login signs in over the JSON API and returns the portal session cookie.
func (ts *testServer) login(t *testing.T, login, password string) *http.Cookie {
	t.Helper()
	rec := ts.do(jsonRequest(http.MethodPost, "/staff/api/login", map[string]string{
		"login":    login,
		"password": password,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := sessionCookie(rec)
	require.NotNil(t, c, "login must set the session cookie")
	return c
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	return req
}

func browserRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func withCookie(req *http.Request, c *http.Cookie) *http.Request {
	if c != nil {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	decodeInto(t, rec, &out)
	return out
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

// embeddedRenderer parses the templates shipped in the binary.
func embeddedRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	sub, err := fs.Sub(staffgate.TemplateFS, TemplatePathFromRoot)
	require.NoError(t, err)
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: sub})
	require.NoError(t, err)
	return tr
}
