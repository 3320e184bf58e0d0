package httpx

import (
	"context"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/http/staffnav"
)

// sessionKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type sessionKey struct{}

// requestSession is what the guard stores for downstream handlers.
type requestSession struct {
	sid    string
	sess   domainauth.Session
	access staffnav.Access
}

// SetSessionInContext returns a child context that carries the portal session
// id, its session snapshot and the Access derived from it.
func SetSessionInContext(ctx context.Context, sid string, sess domainauth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, &requestSession{
		sid:    sid,
		sess:   sess,
		access: staffnav.NewAccess(sess),
	})
}

// GetSessionFromContext returns the session snapshot stored by the guard.
func GetSessionFromContext(ctx context.Context) (domainauth.Session, bool) {
	if rs, ok := ctx.Value(sessionKey{}).(*requestSession); ok && rs != nil {
		return rs.sess, true
	}
	return domainauth.EmptySession(), false
}

// GetAccessFromContext returns the Access for the guarded session. Without a
// guarded session nothing is granted.
func GetAccessFromContext(ctx context.Context) staffnav.Access {
	if rs, ok := ctx.Value(sessionKey{}).(*requestSession); ok && rs != nil {
		return rs.access
	}
	return staffnav.NewAccess(domainauth.EmptySession())
}

// GetSessionIDFromContext returns the portal session id stored by the guard.
func GetSessionIDFromContext(ctx context.Context) string {
	if rs, ok := ctx.Value(sessionKey{}).(*requestSession); ok && rs != nil {
		return rs.sid
	}
	return ""
}
