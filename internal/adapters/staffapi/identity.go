package staffapi

import (
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	jmespath "github.com/jmespath-community/go-jmespath"
)

// IdentityMapping holds JMESPath expressions locating identity fields in a
// GET /staff/me payload. Empty fields fall back to DefaultIdentityMapping.
type IdentityMapping struct {
	ID          string
	Login       string
	DisplayName string
	Role        string
	IsActive    string
}

// DefaultIdentityMapping matches the flat payload served by the staff backend.
func DefaultIdentityMapping() IdentityMapping {
	return IdentityMapping{
		ID:          "id",
		Login:       "login",
		DisplayName: "full_name",
		Role:        "role",
		IsActive:    "is_active",
	}
}

func (m IdentityMapping) withDefaults() IdentityMapping {
	d := DefaultIdentityMapping()
	if strings.TrimSpace(m.ID) == "" {
		m.ID = d.ID
	}
	if strings.TrimSpace(m.Login) == "" {
		m.Login = d.Login
	}
	if strings.TrimSpace(m.DisplayName) == "" {
		m.DisplayName = d.DisplayName
	}
	if strings.TrimSpace(m.Role) == "" {
		m.Role = d.Role
	}
	if strings.TrimSpace(m.IsActive) == "" {
		m.IsActive = d.IsActive
	}
	return m
}

// Validate compiles every expression.
func (m IdentityMapping) Validate() error {
	m = m.withDefaults()
	for name, expr := range map[string]string{
		"id":           m.ID,
		"login":        m.Login,
		"display_name": m.DisplayName,
		"role":         m.Role,
		"is_active":    m.IsActive,
	} {
		if _, err := jmespath.Compile(expr); err != nil {
			return fmt.Errorf("identity mapping %s: %w", name, err)
		}
	}
	return nil
}

var errMissingIdentityField = errors.New("identity payload missing field")

// decodedIdentity carries the mapped identity and any permission codes that
// were dropped because they are not in the catalog.
type decodedIdentity struct {
	Identity domainauth.Identity
	Unknown  []string
}

func (m IdentityMapping) decode(payload any) (decodedIdentity, error) {
	m = m.withDefaults()

	id, err := searchInt(m.ID, payload)
	if err != nil {
		return decodedIdentity{}, fmt.Errorf("id: %w", err)
	}
	login, err := searchString(m.Login, payload)
	if err != nil {
		return decodedIdentity{}, fmt.Errorf("login: %w", err)
	}
	display, err := searchString(m.DisplayName, payload)
	if err != nil && !errors.Is(err, errMissingIdentityField) {
		return decodedIdentity{}, fmt.Errorf("display name: %w", err)
	}
	if display == "" {
		display = login
	}
	active := true
	if v, searchErr := jmespath.Search(m.IsActive, payload); searchErr == nil && v != nil {
		b, ok := v.(bool)
		if !ok {
			return decodedIdentity{}, fmt.Errorf("is_active: unexpected type %T", v)
		}
		active = b
	}
	rawRole, err := jmespath.Search(m.Role, payload)
	if err != nil {
		return decodedIdentity{}, fmt.Errorf("role: %w", err)
	}
	role, unknown, err := decodeRole(rawRole)
	if err != nil {
		return decodedIdentity{}, fmt.Errorf("role: %w", err)
	}

	return decodedIdentity{
		Identity: domainauth.Identity{
			ID:          id,
			Login:       login,
			DisplayName: display,
			Role:        role,
			IsActive:    active,
		},
		Unknown: unknown,
	}, nil
}

func decodeRole(raw any) (domainauth.Role, []string, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return domainauth.Role{}, nil, errMissingIdentityField
	}
	slug, _ := obj["slug"].(string)
	if slug == "" {
		return domainauth.Role{}, nil, fmt.Errorf("slug: %w", errMissingIdentityField)
	}
	name, _ := obj["name"].(string)
	isSystem, _ := obj["is_system"].(bool)
	var id int64
	if f, isNum := obj["id"].(float64); isNum {
		id = int64(f)
	}

	var (
		perms   []domainauth.Permission
		unknown []string
	)
	list, _ := obj["permissions"].([]any)
	for _, item := range list {
		code := permissionCode(item)
		if code == "" {
			continue
		}
		if p, valid := domainauth.ParsePermission(code); valid {
			perms = append(perms, p)
		} else {
			unknown = append(unknown, code)
		}
	}
	return domainauth.NewRole(id, name, slug, isSystem, perms), unknown, nil
}

// permissionCode accepts both "orders.view" and {"code":"orders.view"} entries.
func permissionCode(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["code"].(string)
		return s
	default:
		return ""
	}
}

func searchString(expr string, data any) (string, error) {
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", errMissingIdentityField
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type %T", v)
	}
	return s, nil
}

func searchInt(expr string, data any) (int64, error) {
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		if v == nil {
			return 0, errMissingIdentityField
		}
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return int64(f), nil
}
