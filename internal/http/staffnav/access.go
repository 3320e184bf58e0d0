package staffnav

import (
	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
)

// Access answers permission questions for one session snapshot. The
// navigation filter, the route guard and page action flags all go through it.
type Access struct {
	identity *domainauth.Identity
}

// NewAccess binds an Access to sess. Sessions without an identity hold nothing.
func NewAccess(sess domainauth.Session) Access {
	return Access{identity: sess.Identity}
}

// Can reports whether the session holds p.
func (a Access) Can(p domainauth.Permission) bool {
	return domainauth.Has(a.identity, p)
}

// Navigation returns the manifest entries visible to the session.
func (a Access) Navigation() []Entry {
	return Filter(Manifest(), a.Can)
}

// Fallback returns the landing path for the session.
func (a Access) Fallback() string {
	return FallbackPath(a.Can)
}

// Granted lists the catalog permissions the session holds.
func (a Access) Granted() []domainauth.Permission {
	return domainauth.Granted(a.identity)
}
