package migrate_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/garagebay/staffgate/internal/migrate"
	"github.com/garagebay/staffgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIsIdempotent_Integration(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()

		// WithAutoDB already migrated the schema; a second run is a no-op.
		require.NoError(t, migrate.Run(ctx, db, nil))

		status, err := migrate.Status(ctx, db)
		require.NoError(t, err)
		versions, err := migrate.Versions()
		require.NoError(t, err)
		require.Len(t, status, len(versions))
		for _, s := range status {
			assert.False(t, s.Pending(), s.Version)
		}

		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n))
		assert.Equal(t, len(versions), n)
	})
}
