package config

import (
	"errors"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration. Postgres only backs the
// sign-in audit trail; with Enabled=false audit events are dropped.
type DBConfig struct {
	Enabled  bool   `env:"ENABLED"                 envDefault:"true"`
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"staffgate"`
	Password string `env:"PASSWORD"                envDefault:"staffgate"`
	Name     string `env:"NAME"                    envDefault:"staffgate"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT"   envDefault:"5s"`
}

// Sanitize trims connection settings.
func (c *DBConfig) Sanitize() {
	c.Host = strings.TrimSpace(c.Host)
	if c.SSLMode = strings.TrimSpace(c.SSLMode); c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	c.MaxOpenConns = max(c.MaxOpenConns, 1)
	c.MaxIdleConns = min(max(c.MaxIdleConns, 0), c.MaxOpenConns)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string        `env:"URI"                  envDefault:"localhost:6379"`
	Password           string        `env:"PASSWORD"             envDefault:""`
	DB                 int           `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string      `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string        `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string        `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool          `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string      `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool          `env:"USE_CLUSTER"          envDefault:"false"`
	DialTimeout        time.Duration `env:"DIAL_TIMEOUT"         envDefault:"5s"`
}

// RedisMode names the client topology picked from the USE_* flags.
type RedisMode string

const (
	RedisDirect   RedisMode = "direct"
	RedisSentinel RedisMode = "sentinel"
	RedisCluster  RedisMode = "cluster"
)

// Mode reports the configured topology. Cluster wins over sentinel; Validate
// rejects having both.
func (c *RedisConfig) Mode() RedisMode {
	switch {
	case c.UseCluster:
		return RedisCluster
	case c.UseSentinel:
		return RedisSentinel
	default:
		return RedisDirect
	}
}

// Validate rejects conflicting topology flags.
func (c *RedisConfig) Validate() error {
	if c.UseCluster && c.UseSentinel {
		return errors.New("REDIS_USE_CLUSTER and REDIS_USE_SENTINEL are mutually exclusive")
	}
	if c.UseCluster && c.DB != 0 {
		return errors.New("REDIS_DB must be 0 in cluster mode")
	}
	return nil
}
