package service

import (
	"context"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/ports"
)

// TokenDelegate chooses the bearer token for calls into the shared
// administrative API (orders, users, feedback, audit, vendors).
//
// The demo identity has no backend-issued token, so it borrows whatever
// storefront session is present locally. Every other session uses its own
// back-office credential. The delegate only reads; it never writes either
// session.
type TokenDelegate struct {
	storefront ports.StorefrontSession
}

// NewTokenDelegate constructs a TokenDelegate.
func NewTokenDelegate(storefront ports.StorefrontSession) *TokenDelegate {
	if storefront == nil {
		panic("storefront session reader is required")
	}
	return &TokenDelegate{storefront: storefront}
}

// TokenForSharedAPI returns the token for a shared administrative call, or
// false when there is none to use.
func (d *TokenDelegate) TokenForSharedAPI(ctx context.Context, sess domainauth.Session) (string, bool) {
	if sess.Credential.IsDemo() {
		return d.storefront.Credential(ctx)
	}
	if sess.Credential == "" {
		return "", false
	}
	return string(sess.Credential), true
}

// ManagementCredential returns the credential for staff and role management
// calls, which go to the staff backend itself and so can never carry the demo
// sentinel.
func ManagementCredential(sess domainauth.Session) (domainauth.Credential, error) {
	switch {
	case sess.Credential == "":
		return "", domainauth.ErrNoSession
	case sess.Credential.IsDemo():
		return "", domainauth.ErrDemoCredential
	default:
		return sess.Credential, nil
	}
}
