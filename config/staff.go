package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultCredentialPrefix = "staff_token:"
	defaultStorefrontCookie = "access_token"
)

// IdentityExprConfig holds the JMESPath expressions that pick identity fields
// out of the staff backend /staff/me payload. Empty values use the flat
// defaults (id, login, full_name, role, is_active).
type IdentityExprConfig struct {
	ID          string `env:"ID"`
	Login       string `env:"LOGIN"`
	DisplayName string `env:"DISPLAY_NAME"`
	Role        string `env:"ROLE"`
	IsActive    string `env:"IS_ACTIVE"`
}

// StaffConfig configures the back-office authorization core.
type StaffConfig struct {
	// BackendURL is the staff backend serving /staff/login, /staff/me and management APIs.
	BackendURL string `env:"BACKEND_URL,required"`

	// SharedAPIURL is the administrative API shared with the storefront.
	SharedAPIURL string `env:"SHARED_API_URL,required"`

	// Timeout bounds every call to either upstream.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// DemoEnabled grants the demo superuser to the fallback login when the
	// staff backend is unreachable. Disable in production.
	DemoEnabled      bool   `env:"DEMO_ENABLED"      envDefault:"true"`
	FallbackLogin    string `env:"FALLBACK_LOGIN"    envDefault:"admin"`
	FallbackPassword string `env:"FALLBACK_PASSWORD" envDefault:"admin"`

	// StorefrontCookie is the storefront session cookie read for demo sessions.
	StorefrontCookie string `env:"STOREFRONT_COOKIE" envDefault:"access_token"`

	// CredentialPrefix namespaces persisted back-office credentials in Redis.
	CredentialPrefix string        `env:"CREDENTIAL_PREFIX" envDefault:"staff_token:"`
	CredentialTTL    time.Duration `env:"CREDENTIAL_TTL"    envDefault:"12h"`

	Identity IdentityExprConfig `envPrefix:"IDENTITY_EXPR_"`

	// SessionSweepInterval controls how often idle in-memory sessions are
	// dropped; SessionMaxIdle is the idle threshold.
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`
	SessionMaxIdle       time.Duration `env:"SESSION_MAX_IDLE"       envDefault:"30m"`
}

// Sanitize normalises staff configuration values.
func (c *StaffConfig) Sanitize() {
	c.BackendURL = strings.TrimSuffix(strings.TrimSpace(c.BackendURL), "/")
	c.SharedAPIURL = strings.TrimSuffix(strings.TrimSpace(c.SharedAPIURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.FallbackLogin = strings.TrimSpace(c.FallbackLogin)
	if c.StorefrontCookie = strings.TrimSpace(c.StorefrontCookie); c.StorefrontCookie == "" {
		c.StorefrontCookie = defaultStorefrontCookie
	}
	if c.CredentialPrefix = strings.TrimSpace(c.CredentialPrefix); c.CredentialPrefix == "" {
		c.CredentialPrefix = defaultCredentialPrefix
	}
	if c.CredentialTTL <= 0 {
		c.CredentialTTL = 12 * time.Hour
	}
	if c.SessionSweepInterval <= 0 {
		c.SessionSweepInterval = 5 * time.Minute
	}
	if c.SessionMaxIdle <= 0 {
		c.SessionMaxIdle = 30 * time.Minute
	}
}

// Validate checks upstream URLs, the demo fallback and store separation.
func (c *StaffConfig) Validate() error {
	var errs []error
	for name, raw := range map[string]string{
		"STAFF_BACKEND_URL":    c.BackendURL,
		"STAFF_SHARED_API_URL": c.SharedAPIURL,
	} {
		if err := validateUpstreamURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.DemoEnabled && (c.FallbackLogin == "" || c.FallbackPassword == "") {
		errs = append(errs, errors.New("demo fallback requires STAFF_FALLBACK_LOGIN and STAFF_FALLBACK_PASSWORD"))
	}
	// The back-office credential must never share a name with the storefront one.
	if strings.EqualFold(strings.TrimRight(c.CredentialPrefix, ":"), c.StorefrontCookie) {
		errs = append(errs, fmt.Errorf("STAFF_CREDENTIAL_PREFIX %q collides with the storefront cookie", c.CredentialPrefix))
	}
	return errors.Join(errs...)
}

func validateUpstreamURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
