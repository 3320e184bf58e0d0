// Package migrate applies the embedded audit-store schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/garagebay/staffgate/internal/data/pgxutil"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serializes runners across replicas booting together.
const lockKey int64 = 7_316_204_118

const createLedger = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// VersionStatus reports one embedded migration.
type VersionStatus struct {
	Version   string
	AppliedAt time.Time // zero while pending
}

// Pending reports whether the version has not been applied yet.
func (s VersionStatus) Pending() bool { return s.AppliedAt.IsZero() }

// Run applies every pending migration, each in its own transaction. Safe to
// call repeatedly and from several processes at once.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	versions, err := Versions()
	if err != nil {
		return err
	}

	applied := 0
	for _, v := range versions {
		ran, applyErr := apply(ctx, db, v)
		if applyErr != nil {
			return applyErr
		}
		if ran {
			applied++
			logger.InfoContext(ctx, "migration applied", "version", v)
		}
	}
	logger.DebugContext(ctx, "migrations up to date", "applied", applied, "known", len(versions))
	return nil
}

// Status lists every embedded migration with its apply time.
func Status(ctx context.Context, db *sql.DB) ([]VersionStatus, error) {
	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	versions, err := Versions()
	if err != nil {
		return nil, err
	}

	appliedAt := make(map[string]time.Time, len(versions))
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v  string
			at time.Time
		)
		if err = rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		appliedAt[v] = at
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}

	out := make([]VersionStatus, 0, len(versions))
	for _, v := range versions {
		out = append(out, VersionStatus{Version: v, AppliedAt: appliedAt[v]})
	}
	return out, nil
}

// Versions lists the embedded migration versions in apply order.
func Versions() ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(n, "migrations/"), ".sql"))
	}
	slices.Sort(out)
	return out, nil
}

// apply runs one version under the advisory lock. The lock is taken before the
// applied check so a concurrent runner waits and then sees the version done.
func apply(ctx context.Context, db *sql.DB, version string) (bool, error) {
	body, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", version, err)
	}

	ran := false
	err = pgxutil.WithPgxTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); lockErr != nil {
			return fmt.Errorf("lock migrations: %w", lockErr)
		}
		var done bool
		if scanErr := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&done); scanErr != nil {
			return fmt.Errorf("check migration %s: %w", version, scanErr)
		}
		if done {
			return nil
		}
		if _, execErr := tx.Exec(ctx, string(body)); execErr != nil {
			return fmt.Errorf("exec migration %s: %w", version, execErr)
		}
		if _, recErr := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); recErr != nil {
			return fmt.Errorf("record migration %s: %w", version, recErr)
		}
		ran = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ran, nil
}
