package ports

// Package ports defines interfaces (hexagonal ports) for back-office authorization.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"net/http"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
)

// AuthBackend is the staff authorization backend.
// Implementations must map failures onto the domainauth error taxonomy and must
// refuse to send domainauth.DemoCredential over the network.
type AuthBackend interface {
	// Login exchanges a login/password pair for a bearer credential.
	Login(ctx context.Context, login, password string) (domainauth.Credential, error)

	// Me resolves the identity behind a bearer credential.
	Me(ctx context.Context, cred domainauth.Credential) (domainauth.Identity, error)

	// ChangePassword changes the password of the identity behind cred.
	ChangePassword(ctx context.Context, cred domainauth.Credential, in ChangePasswordInput) error

	// Do forwards a staff/role management request authorized by cred.
	Do(ctx context.Context, cred domainauth.Credential, req *http.Request) (*http.Response, error)
}

// ChangePasswordInput groups the old and new password.
type ChangePasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ErrCredentialNotFound is returned by CredentialStore.Load when nothing is stored.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore persists the back-office bearer credential per portal session id.
// It owns exactly one key per portal session and never touches storefront state.
type CredentialStore interface {
	Load(ctx context.Context, sid string) (domainauth.Credential, error)
	Save(ctx context.Context, sid string, cred domainauth.Credential, ttl time.Duration) error
	Clear(ctx context.Context, sid string) error
}

// StorefrontSession is a read-only view of the storefront's own session credential.
type StorefrontSession interface {
	// Credential returns the storefront bearer token, or false if none is present.
	Credential(ctx context.Context) (string, bool)
}

// AuthEvent is one recorded authorization outcome.
type AuthEvent struct {
	SessionID  string
	Login      string
	Outcome    string
	ErrorClass string
	CreatedAt  time.Time
}

// AuthEventRecorder records authorization outcomes for the security audit trail.
type AuthEventRecorder interface {
	Record(ctx context.Context, ev AuthEvent) error
}
