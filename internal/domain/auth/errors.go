package auth

import "errors"

// Authorization error taxonomy shared by adapters, services and handlers.
var (
	// ErrUnreachable means the staff backend could not be reached or failed server-side.
	ErrUnreachable = errors.New("staff backend unreachable")
	// ErrNotFound means the staff backend answered 404 for the requested endpoint.
	ErrNotFound = errors.New("staff backend endpoint not found")
	// ErrRejected means the credentials or bearer token were refused.
	ErrRejected = errors.New("credentials rejected")
	// ErrForbidden means the identity is valid but lacks the permission.
	ErrForbidden = errors.New("forbidden")
	// ErrDemoCredential is returned when a call would send the demo sentinel to the staff backend.
	ErrDemoCredential = errors.New("demo credential cannot be sent to the staff backend")
	// ErrNoSession means no credential is installed.
	ErrNoSession = errors.New("no staff session")
)

// FallbackEligible reports whether err allows the demo login fallback.
// Only an unreachable backend or a missing endpoint qualify; a confirmed
// rejection never does.
func FallbackEligible(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrNotFound)
}
