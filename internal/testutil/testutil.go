// Package testutil wires integration tests to real Postgres and Redis
// instances. Tests skip when the backing service is absent unless
// TEST_REQUIRE_INFRA (or the per-service TEST_REQUIRE_DB / TEST_REQUIRE_REDIS)
// is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/garagebay/staffgate/internal/migrate"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"
)

// TestDBConfig is read from TEST_DB_* variables. The default port targets the
// docker-compose test profile; CI sets TEST_DB_PORT=5432.
type TestDBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     string `env:"PORT"     envDefault:"55432"`
	User     string `env:"USER"     envDefault:"staffgate"`
	Password string `env:"PASSWORD" envDefault:"staffgate"`
	DBName   string `env:"NAME"     envDefault:"staffgate"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
}

// DSN renders the connection URL, optionally pinned to a schema.
func (c TestDBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if schema != "" {
		q.Set("search_path", schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type requirements struct {
	Infra bool `env:"TEST_REQUIRE_INFRA"`
	DB    bool `env:"TEST_REQUIRE_DB"`
	Redis bool `env:"TEST_REQUIRE_REDIS"`
}

type testRedisConfig struct {
	Addr string `env:"REDIS_ADDR"`
	DB   *int   `env:"TEST_REDIS_DB"`
}

// DefaultTestDBConfig parses TEST_DB_*. Malformed values keep the defaults.
func DefaultTestDBConfig() TestDBConfig {
	var cfg TestDBConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TEST_DB_"}); err != nil {
		return TestDBConfig{Host: "localhost", Port: "55432", User: "staffgate", Password: "staffgate", DBName: "staffgate", SSLMode: "disable"}
	}
	return cfg
}

func loadRequirements() requirements {
	var r requirements
	_ = env.Parse(&r)
	return r
}

// TestingTB covers *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

func unavailable(t TestingTB, required bool, what string, err error) {
	t.Helper()
	if required {
		t.Fatalf("%s required but unavailable: %v", what, err)
	}
	t.Skip(what+" not available:", err)
}

// WithAutoDB runs fn against a freshly migrated schema private to the test.
// The schema is dropped on cleanup.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	fn(SchemaDB(t))
}

// SchemaDB creates a throwaway schema, migrates it and returns a pool whose
// search_path points at it.
func SchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	req := loadRequirements()
	cfg := DefaultTestDBConfig()

	admin, err := openAndPing(cfg.DSN(""))
	if err != nil {
		unavailable(t, req.Infra || req.DB, "postgres", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	schema := schemaName()
	if _, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := sql.Open("pgx", cfg.DSN(schema))
	if err != nil {
		_ = admin.Close()
		t.Fatalf("open schema db: %v", err)
	}
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		logClose(t, "schema db", db)
		if _, dropErr := admin.ExecContext(cctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); dropErr != nil {
			t.Logf("drop schema %s: %v", schema, dropErr)
		}
		logClose(t, "admin db", admin)
	})

	if err = migrate.Run(ctx, db, nil); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	return db
}

func openAndPing(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return "t_" + hex.EncodeToString(b)
}

func logClose(t TestingTB, name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", name, err)
	}
}

var redisCandidates = []string{"redis:6379", "localhost:6379", "localhost:56379"}

// SetupTestRedis returns a client on an emptied logical DB reserved for the
// calling test. REDIS_ADDR and TEST_REDIS_DB pin the address and DB.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()
	req := loadRequirements()

	var rc testRedisConfig
	_ = env.Parse(&rc)
	candidates := redisCandidates
	if rc.Addr != "" {
		candidates = []string{rc.Addr}
	}

	addr, err := firstReachable(candidates)
	if err != nil {
		unavailable(t, req.Infra || req.Redis, "redis", err)
		return nil
	}

	var db int
	if rc.DB != nil && *rc.DB >= 0 {
		db = *rc.DB
	} else {
		db = reserveRedisDB(t, addr)
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err = client.FlushDB(ctx).Err(); err != nil {
		logClose(t, "redis client", client)
		t.Fatalf("flush redis db %d: %v", db, err)
	}
	t.Cleanup(func() { logClose(t, "redis client", client) })
	return client
}

func firstReachable(addrs []string) (string, error) {
	var lastErr error
	for _, addr := range addrs {
		c := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = c.Ping(ctx).Err()
		cancel()
		_ = c.Close()
		if lastErr == nil {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no redis at %v: %w", addrs, lastErr)
}

// reserveRedisDB claims one of DBs 1..15 with a lock key kept in DB 0, so a
// FlushDB in the claimed DB cannot drop the claim. Falls back to DB 1.
func reserveRedisDB(t TestingTB, addr string) int {
	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer logClose(t, "redis meta client", meta)

	owner := schemaName()
	for i := 1; i <= 15; i++ {
		key := "staffgate:testutil:db:" + strconv.Itoa(i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			c := redis.NewClient(&redis.Options{Addr: addr})
			defer logClose(t, "redis release client", c)
			cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer ccancel()
			if delErr := c.Del(cctx, key).Err(); delErr != nil {
				t.Logf("release %s: %v", key, delErr)
			}
		})
		return i
	}
	t.Logf("no free redis db at %s, sharing DB 1", addr)
	return 1
}
