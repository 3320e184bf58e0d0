package auth

// Package auth contains domain-level types for back-office authorization.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"slices"
)

// Permission is a capability code drawn from a closed catalog.
// Keep string form so codes round-trip through the staff backend unchanged.
type Permission string

const (
	PermOrdersView     Permission = "orders.view"
	PermOrdersEdit     Permission = "orders.edit"
	PermUsersView      Permission = "users.view"
	PermUsersEdit      Permission = "users.edit"
	PermFeedbackView   Permission = "feedback.view"
	PermFeedbackEdit   Permission = "feedback.edit"
	PermVendorsView    Permission = "vendors.view"
	PermVendorsApprove Permission = "vendors.approve"
	PermAuditView      Permission = "audit.view"
	PermStaffManage    Permission = "staff.manage"
	PermRolesManage    Permission = "roles.manage"
)

var catalog = []Permission{
	PermOrdersView,
	PermOrdersEdit,
	PermUsersView,
	PermUsersEdit,
	PermFeedbackView,
	PermFeedbackEdit,
	PermVendorsView,
	PermVendorsApprove,
	PermAuditView,
	PermStaffManage,
	PermRolesManage,
}

// Catalog returns every known permission in declaration order.
func Catalog() []Permission { return slices.Clone(catalog) }

// Valid reports whether p belongs to the catalog.
func (p Permission) Valid() bool { return slices.Contains(catalog, p) }

// ParsePermission maps a wire code onto the catalog.
func ParsePermission(code string) (Permission, bool) {
	p := Permission(code)
	return p, p.Valid()
}

// SuperAdminSlug is the reserved role slug that implicitly holds every permission.
const SuperAdminSlug = "super_admin"

// Grant is the closed set of ways a role can hold permissions.
// Implemented by SuperuserGrant and BundleGrant only.
type Grant interface {
	grant()
}

// SuperuserGrant holds every permission regardless of any explicit bundle.
type SuperuserGrant struct{}

// BundleGrant holds exactly the listed permissions.
type BundleGrant struct {
	set map[Permission]struct{}
}

func (SuperuserGrant) grant() {}
func (BundleGrant) grant()    {}

// NewBundle builds a BundleGrant, dropping codes outside the catalog.
func NewBundle(perms ...Permission) BundleGrant {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if p.Valid() {
			set[p] = struct{}{}
		}
	}
	return BundleGrant{set: set}
}

// Contains reports whether the bundle explicitly lists p.
func (b BundleGrant) Contains(p Permission) bool {
	_, ok := b.set[p]
	return ok
}

// Role is a named bundle of permissions assignable to a staff identity.
type Role struct {
	ID       int64
	Name     string
	Slug     string
	IsSystem bool
	Grant    Grant
}

// NewRole builds a Role, selecting the superuser grant for the reserved slug
// even when the supplied bundle is empty or stale.
func NewRole(id int64, name, slug string, isSystem bool, perms []Permission) Role {
	r := Role{ID: id, Name: name, Slug: slug, IsSystem: isSystem}
	if slug == SuperAdminSlug {
		r.Grant = SuperuserGrant{}
	} else {
		r.Grant = NewBundle(perms...)
	}
	return r
}

// IsSuperuser reports whether the role carries the superuser grant.
func (r Role) IsSuperuser() bool {
	_, ok := r.Grant.(SuperuserGrant)
	return ok
}

// Permissions lists the permissions the role holds, in catalog order.
func (r Role) Permissions() []Permission {
	switch g := r.Grant.(type) {
	case SuperuserGrant:
		return Catalog()
	case BundleGrant:
		out := make([]Permission, 0, len(g.set))
		for _, p := range catalog {
			if g.Contains(p) {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// Identity is the resolved staff member. Never mutated in place; any change
// replaces the whole value.
type Identity struct {
	ID          int64
	Login       string
	DisplayName string
	Role        Role
	IsActive    bool
}

// Credential is an opaque bearer value issued by the staff backend.
type Credential string

// DemoCredential is the reserved sentinel installed for the demo identity.
// It must never be sent to the staff backend.
const DemoCredential Credential = "demo"

// IsDemo reports whether c is the demo sentinel.
func (c Credential) IsDemo() bool { return c == DemoCredential }

// Phase describes where a Session is in its lifecycle.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseResolving       Phase = "resolving"
	PhaseReady           Phase = "ready"
)

// Session is a value snapshot of one browser's back-office authorization state.
type Session struct {
	Credential Credential
	Identity   *Identity
	Phase      Phase
}

// EmptySession returns the unauthenticated session.
func EmptySession() Session { return Session{Phase: PhaseUnauthenticated} }

// Empty reports whether the session carries neither credential nor identity.
func (s Session) Empty() bool { return s.Credential == "" && s.Identity == nil }

// IsDemo reports whether the session is running under the demo identity.
func (s Session) IsDemo() bool { return s.Credential.IsDemo() }

var (
	errIdentityWithoutCredential = errors.New("identity present without credential")
	errReadyWithoutIdentity      = errors.New("ready session has no identity")
)

// Validate checks the structural invariants of a session.
func (s Session) Validate() error {
	if s.Identity != nil && s.Credential == "" {
		return errIdentityWithoutCredential
	}
	if s.Phase == PhaseReady && s.Identity == nil {
		return errReadyWithoutIdentity
	}
	return nil
}
