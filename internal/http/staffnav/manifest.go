// Package staffnav holds the back-office navigation manifest and the
// permission-driven navigation filter built on top of it.
package staffnav

import (
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
)

const (
	// ProfilePath is the permission-free landing page for any signed-in identity.
	ProfilePath = "/staff/profile"
	// LoginPath is the back-office login page.
	LoginPath = "/staff/login"
	// Root is the back-office entry point; it redirects to the fallback path.
	Root = "/staff"
)

// Entry is one navigation target gated by a single permission.
type Entry struct {
	Path       string                `json:"path"`
	Label      string                `json:"label"`
	Icon       string                `json:"icon"`
	Permission domainauth.Permission `json:"permission"`
}

//nolint:gochecknoglobals // static read-only manifest; copied on every access
var manifest = []Entry{
	{Path: "/staff/orders", Label: "Заказы", Icon: "package", Permission: domainauth.PermOrdersView},
	{Path: "/staff/users", Label: "Пользователи", Icon: "users", Permission: domainauth.PermUsersView},
	{Path: "/staff/feedback", Label: "Обращения", Icon: "message-square", Permission: domainauth.PermFeedbackView},
	{Path: "/staff/search", Label: "Поиск", Icon: "search", Permission: domainauth.PermFeedbackView},
	{Path: "/staff/vendors", Label: "Продавцы", Icon: "store", Permission: domainauth.PermVendorsView},
	{Path: "/staff/audit", Label: "Журнал действий", Icon: "history", Permission: domainauth.PermAuditView},
	{Path: "/staff/employees", Label: "Сотрудники", Icon: "id-card", Permission: domainauth.PermStaffManage},
	{Path: "/staff/roles", Label: "Роли", Icon: "shield", Permission: domainauth.PermRolesManage},
}

// Manifest returns the navigation entries in display order.
func Manifest() []Entry {
	out := make([]Entry, len(manifest))
	copy(out, manifest)
	return out
}

// Lookup returns the manifest entry for path.
func Lookup(path string) (Entry, bool) {
	for _, e := range manifest {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

// Filter returns the entries whose permission is granted, preserving order.
func Filter(entries []Entry, can func(domainauth.Permission) bool) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if can(e.Permission) {
			out = append(out, e)
		}
	}
	return out
}

// FallbackPath is the first manifest path the holder of can may open, or the
// profile page when none is granted. The result is always reachable.
func FallbackPath(can func(domainauth.Permission) bool) string {
	for _, e := range manifest {
		if can(e.Permission) {
			return e.Path
		}
	}
	return ProfilePath
}

// Validate reports manifest entries that could never be shown or would shadow
// a built-in page.
func Validate(entries []Entry) error {
	var errs []error
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		switch {
		case !strings.HasPrefix(e.Path, Root+"/"):
			errs = append(errs, fmt.Errorf("entry %d: path %q outside %s", i, e.Path, Root))
		case e.Path == ProfilePath || e.Path == LoginPath:
			errs = append(errs, fmt.Errorf("entry %d: path %q is reserved", i, e.Path))
		}
		if _, dup := seen[e.Path]; dup {
			errs = append(errs, fmt.Errorf("entry %d: duplicate path %q", i, e.Path))
		}
		seen[e.Path] = struct{}{}
		if !e.Permission.Valid() {
			errs = append(errs, fmt.Errorf("entry %d: permission %q not in catalog", i, e.Permission))
		}
		if strings.TrimSpace(e.Label) == "" {
			errs = append(errs, fmt.Errorf("entry %d: empty label", i))
		}
	}
	return errors.Join(errs...)
}
