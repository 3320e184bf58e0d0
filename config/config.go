package config

import (
	"errors"
	"os"
	"strings"
)

// AppConfig is everything staffgate reads from the environment, grouped by
// concern. Each group lives in its own file and owns its Sanitize/Validate:
//   - staff.go: staff backend, shared API, demo fallback and session lifetime
//   - database.go: Postgres audit store and Redis credential store
//   - http.go: listener and portal cookie
//   - observability.go: statsd metrics and security alert sinks
//   - log.go: slog level and handler format
type AppConfig struct {
	// IsDev marks a local development run. DEV=true, or NODE_ENV=development
	// from the frontend tooling, turns it on.
	IsDev bool `env:"DEV" envDefault:"false"`

	Staff         StaffConfig `envPrefix:"STAFF_"`
	Postgres      DBConfig    `envPrefix:"DB_"`
	Redis         RedisConfig `envPrefix:"REDIS_"`
	HTTP          HTTPConfig
	Observability ObservabilityConfig
	Log           LogConfig `envPrefix:"LOG_"`
}

// Sanitize normalises every group after env parsing.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Staff.Sanitize()
	c.Postgres.Sanitize()
	c.Observability.Sanitize()
	c.Log.Sanitize()

	c.detectDevMode()
}

// Validate reports every invalid setting at once.
func (c *AppConfig) Validate() error {
	return errors.Join(
		c.HTTP.Validate(),
		c.Staff.Validate(),
		c.Redis.Validate(),
		c.Observability.Validate(),
		c.Log.Validate(),
	)
}

// detectDevMode falls back to NODE_ENV when DEV is unset.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
