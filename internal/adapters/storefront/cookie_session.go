package storefront

// Package storefront provides a read-only view of the storefront's own session.
// The storefront owns its cookie; nothing in this package ever writes it.

import (
	"context"
	"net/http"
	"strings"

	"github.com/garagebay/staffgate/internal/ports"
)

// DefaultCookieName is the cookie the storefront keeps its bearer token in.
const DefaultCookieName = "access_token"

type credentialKey struct{}

// CookieSession reads the storefront bearer token captured from the request cookie.
type CookieSession struct {
	cookieName string
}

var _ ports.StorefrontSession = (*CookieSession)(nil)

// NewCookieSession creates a reader for the named storefront cookie.
func NewCookieSession(cookieName string) *CookieSession {
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultCookieName
	}
	return &CookieSession{cookieName: cookieName}
}

// CookieName returns the storefront cookie name.
func (s *CookieSession) CookieName() string { return s.cookieName }

// Capture returns a middleware that copies the storefront cookie value into the
// request context. The cookie is left untouched on the response.
func (s *CookieSession) Capture() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(s.cookieName); err == nil {
				if v := strings.TrimSpace(c.Value); v != "" {
					r = r.WithContext(context.WithValue(r.Context(), credentialKey{}, v))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Credential returns the captured storefront token, if any.
func (s *CookieSession) Credential(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(credentialKey{}).(string)
	return v, ok && v != ""
}

// WithCredential returns a context carrying a storefront token, for callers
// that obtain it outside an HTTP request.
func WithCredential(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, credentialKey{}, token)
}
