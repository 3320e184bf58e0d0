package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthBackend       = (*FakeAuthBackend)(nil)
	_ ports.CredentialStore   = (*MemoryCredentialStore)(nil)
	_ ports.StorefrontSession = StaticStorefront{}
	_ ports.AuthEventRecorder = (*MemoryAuthEventRecorder)(nil)
)

// FakeAuthBackend simulates the staff backend with a fixed account table.
// Func fields override the table-driven behaviour when set.
type FakeAuthBackend struct {
	LoginFunc          func(ctx context.Context, login, password string) (domainauth.Credential, error)
	MeFunc             func(ctx context.Context, cred domainauth.Credential) (domainauth.Identity, error)
	ChangePasswordFunc func(ctx context.Context, cred domainauth.Credential, in ports.ChangePasswordInput) error
	DoFunc             func(ctx context.Context, cred domainauth.Credential, req *http.Request) (*http.Response, error)

	mu       sync.Mutex
	accounts map[string]fakeAccount
	tokens   map[domainauth.Credential]string
	calls    []string
}

type fakeAccount struct {
	password string
	identity domainauth.Identity
}

// NewFakeAuthBackend creates an empty FakeAuthBackend.
func NewFakeAuthBackend() *FakeAuthBackend {
	return &FakeAuthBackend{
		accounts: make(map[string]fakeAccount),
		tokens:   make(map[domainauth.Credential]string),
	}
}

// AddAccount registers a login/password pair and issues cred for it on login.
func (f *FakeAuthBackend) AddAccount(password string, id domainauth.Identity, cred domainauth.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[id.Login] = fakeAccount{password: password, identity: id}
	f.tokens[cred] = id.Login
}

// Revoke makes cred unknown to the backend.
func (f *FakeAuthBackend) Revoke(cred domainauth.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, cred)
}

// Calls returns the names of the methods invoked so far.
func (f *FakeAuthBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeAuthBackend) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *FakeAuthBackend) Login(ctx context.Context, login, password string) (domainauth.Credential, error) {
	f.record("Login")
	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, login, password)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[login]
	if !ok || acct.password != password {
		return "", domainauth.ErrRejected
	}
	for cred, owner := range f.tokens {
		if owner == login {
			return cred, nil
		}
	}
	return "", domainauth.ErrRejected
}

func (f *FakeAuthBackend) Me(ctx context.Context, cred domainauth.Credential) (domainauth.Identity, error) {
	if cred.IsDemo() {
		return domainauth.Identity{}, domainauth.ErrDemoCredential
	}
	f.record("Me")
	if f.MeFunc != nil {
		return f.MeFunc(ctx, cred)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	login, ok := f.tokens[cred]
	if !ok {
		return domainauth.Identity{}, domainauth.ErrRejected
	}
	return f.accounts[login].identity, nil
}

func (f *FakeAuthBackend) ChangePassword(ctx context.Context, cred domainauth.Credential, in ports.ChangePasswordInput) error {
	if cred.IsDemo() {
		return domainauth.ErrDemoCredential
	}
	f.record("ChangePassword")
	if f.ChangePasswordFunc != nil {
		return f.ChangePasswordFunc(ctx, cred, in)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	login, ok := f.tokens[cred]
	if !ok {
		return domainauth.ErrRejected
	}
	acct := f.accounts[login]
	if acct.password != in.OldPassword {
		return errors.New("old password mismatch")
	}
	acct.password = in.NewPassword
	f.accounts[login] = acct
	return nil
}

func (f *FakeAuthBackend) Do(ctx context.Context, cred domainauth.Credential, req *http.Request) (*http.Response, error) {
	if cred.IsDemo() {
		return nil, domainauth.ErrDemoCredential
	}
	f.record("Do")
	if f.DoFunc != nil {
		return f.DoFunc(ctx, cred, req)
	}
	return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Header: make(http.Header)}, nil
}

// MemoryCredentialStore is an in-memory credential store for unit tests.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds map[string]domainauth.Credential
	ttls  map[string]time.Duration

	// SaveErr and ClearErr, when set, are returned by Save and Clear.
	SaveErr  error
	ClearErr error
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		creds: make(map[string]domainauth.Credential),
		ttls:  make(map[string]time.Duration),
	}
}

func (m *MemoryCredentialStore) Load(_ context.Context, sid string) (domainauth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[sid]
	if !ok {
		return "", ports.ErrCredentialNotFound
	}
	return cred, nil
}

func (m *MemoryCredentialStore) Save(_ context.Context, sid string, cred domainauth.Credential, ttl time.Duration) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if sid == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[sid] = cred
	m.ttls[sid] = ttl
	return nil
}

func (m *MemoryCredentialStore) Clear(_ context.Context, sid string) error {
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, sid)
	delete(m.ttls, sid)
	return nil
}

// TTL returns the ttl used by the last Save for sid.
func (m *MemoryCredentialStore) TTL(sid string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[sid]
}

// Len returns the number of stored credentials.
func (m *MemoryCredentialStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creds)
}

// StaticStorefront reports a fixed storefront token.
type StaticStorefront struct {
	Token string
}

func (s StaticStorefront) Credential(context.Context) (string, bool) {
	return s.Token, s.Token != ""
}

// MemoryAuthEventRecorder collects audit events in memory.
type MemoryAuthEventRecorder struct {
	mu     sync.Mutex
	events []ports.AuthEvent
	Err    error
}

func (m *MemoryAuthEventRecorder) Record(_ context.Context, ev ports.AuthEvent) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryAuthEventRecorder) Events() []ports.AuthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.AuthEvent(nil), m.events...)
}

// Outcomes returns the outcome of every recorded event in order.
func (m *MemoryAuthEventRecorder) Outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Outcome)
	}
	return out
}
