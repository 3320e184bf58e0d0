package staffnav

import (
	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
)

// GuardState is the outcome of guarding one route for one session snapshot.
type GuardState string

const (
	// GuardLoading means the identity is still being resolved; nothing is decided yet.
	GuardLoading GuardState = "loading"
	// GuardDeniedNoSession means there is no identity; send the caller to login.
	GuardDeniedNoSession GuardState = "denied_no_session"
	// GuardDeniedNoPermission means the identity lacks the route permission.
	GuardDeniedNoPermission GuardState = "denied_no_permission"
	// GuardAllowed means the route may render.
	GuardAllowed GuardState = "allowed"
)

// GuardDecision carries the state and, for denials, where to send the caller.
type GuardDecision struct {
	State    GuardState
	Redirect string
}

// EvaluateGuard decides whether sess may open a route gated by required. A nil
// required permission only demands a resolved identity.
//
// The decision never redirects while the session is resolving, so a slow
// identity call can't bounce a permitted user away from a deep link.
func EvaluateGuard(sess domainauth.Session, required *domainauth.Permission) GuardDecision {
	switch {
	case sess.Phase == domainauth.PhaseResolving:
		return GuardDecision{State: GuardLoading}
	case sess.Identity == nil:
		return GuardDecision{State: GuardDeniedNoSession, Redirect: LoginPath}
	}
	acc := NewAccess(sess)
	if required != nil && !acc.Can(*required) {
		return GuardDecision{State: GuardDeniedNoPermission, Redirect: acc.Fallback()}
	}
	return GuardDecision{State: GuardAllowed}
}
