package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garagebay/staffgate/config"
	"github.com/redis/go-redis/v9"
)

// Infrastructure holds the long-lived connections the server needs. DB is nil
// when the audit store is disabled.
type Infrastructure struct {
	Redis redis.UniversalClient
	DB    *sql.DB

	closers []func() error
}

// OpenInfrastructure connects the credential store and, when enabled, the
// audit database, applying migrations unless DB_RUN_MIGRATIONS_ON_START is
// off. Anything opened before a failure is closed again.
func OpenInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	if logger == nil {
		logger = slog.Default()
	}
	infra := &Infrastructure{}

	client, err := ConnectRedis(DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	infra.Redis = client
	infra.closers = append(infra.closers, client.Close)

	if !cfg.Postgres.Enabled {
		logger.InfoContext(ctx, "audit database disabled; auth events are not persisted")
		return infra, nil
	}

	db, err := ConnectDB(DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect db: %w", err), infra.Close())
	}
	infra.DB = db
	infra.closers = append(infra.closers, db.Close)

	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "skipping database migrations on startup")
		return infra, nil
	}
	if err = RunMigrations(ctx, db, logger); err != nil {
		return nil, errors.Join(err, infra.Close())
	}
	return infra, nil
}

// Close releases connections in reverse order of opening.
func (i *Infrastructure) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	for j := len(i.closers) - 1; j >= 0; j-- {
		if err := i.closers[j](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}
