package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garagebay/staffgate/internal/ports"
	"github.com/garagebay/staffgate/internal/testutil"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildListAuthEventsQuery(t *testing.T) {
	before := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		opts      ListAuthEventsOptions
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "defaults",
			wantQuery: "SELECT \"id\", \"session_id\", \"login\", \"outcome\", \"error_class\", \"created_at\" FROM \"staff_auth_events\" ORDER BY \"created_at\" DESC, \"id\" DESC LIMIT $1",
			wantArgs:  []any{defaultAuthEventLimit},
		},
		{
			name:      "all filters",
			opts:      ListAuthEventsOptions{Limit: 10, Login: " olga ", Outcome: "logout", Before: before},
			wantQuery: "SELECT \"id\", \"session_id\", \"login\", \"outcome\", \"error_class\", \"created_at\" FROM \"staff_auth_events\" WHERE \"login\" = $1 AND \"outcome\" = $2 AND \"created_at\" < $3 ORDER BY \"created_at\" DESC, \"id\" DESC LIMIT $4",
			wantArgs:  []any{"olga", "logout", before, 10},
		},
		{
			name:      "limit capped",
			opts:      ListAuthEventsOptions{Limit: 10_000, Outcome: "demo_fallback"},
			wantQuery: "SELECT \"id\", \"session_id\", \"login\", \"outcome\", \"error_class\", \"created_at\" FROM \"staff_auth_events\" WHERE \"outcome\" = $1 ORDER BY \"created_at\" DESC, \"id\" DESC LIMIT $2",
			wantArgs:  []any{"demo_fallback", maxAuthEventLimit},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := buildListAuthEventsQuery(tt.opts)
			assert.Equal(t, tt.wantQuery, q)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestMapAuditErr(t *testing.T) {
	missing := fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "staff_auth_events" does not exist`})
	err := mapAuditErr(missing)
	require.ErrorIs(t, err, ErrAuditNotMigrated)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr, "original error stays reachable")

	other := &pgconn.PgError{Code: pgerrcode.CheckViolation}
	assert.Same(t, other, mapAuditErr(other))

	plain := errors.New("boom")
	assert.Equal(t, plain, mapAuditErr(plain))
}

func TestAuthEventRepo_RequiresOutcome(t *testing.T) {
	repo := NewAuthEventRepo(nil)
	require.ErrorIs(t, repo.Record(context.Background(), ports.AuthEvent{Login: "olga"}), ErrOutcomeRequired)
}

func TestAuthEventRepo_PruneRequiresCutoff(t *testing.T) {
	_, err := NewAuthEventRepo(nil).Prune(context.Background(), time.Time{}, 10)
	require.Error(t, err)
}

func TestNoopAuthEventRecorder(t *testing.T) {
	require.NoError(t, NoopAuthEventRecorder{}.Record(context.Background(), ports.AuthEvent{}))
}

func TestAuthEventRepo_Integration(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
		clock := NewManualClock(start)
		repo := NewAuthEventRepo(db, WithClock(clock))

		require.NoError(t, repo.Record(ctx, ports.AuthEvent{SessionID: "5d0c2f5e", Login: "olga", Outcome: "login_succeeded"}))
		clock.Advance(time.Minute)
		require.NoError(t, repo.Record(ctx, ports.AuthEvent{SessionID: "5d0c2f5e", Login: "olga", Outcome: "logout"}))
		clock.Advance(time.Minute)
		require.NoError(t, repo.Record(ctx, ports.AuthEvent{
			SessionID: "9a1b", Login: "admin", Outcome: "demo_fallback", ErrorClass: "unreachable",
		}))

		all, err := repo.ListRecent(ctx, ListAuthEventsOptions{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "demo_fallback", all[0].Outcome)
		assert.Equal(t, "unreachable", all[0].ErrorClass)
		assert.True(t, all[0].CreatedAt.Equal(start.Add(2*time.Minute)))
		assert.Equal(t, "login_succeeded", all[2].Outcome)

		olga, err := repo.ListRecent(ctx, ListAuthEventsOptions{Login: "olga", Limit: 1})
		require.NoError(t, err)
		require.Len(t, olga, 1)
		assert.Equal(t, "logout", olga[0].Outcome)

		older, err := repo.ListRecent(ctx, ListAuthEventsOptions{Before: start.Add(30 * time.Second)})
		require.NoError(t, err)
		require.Len(t, older, 1)
		assert.Equal(t, "login_succeeded", older[0].Outcome)

		none, err := repo.ListRecent(ctx, ListAuthEventsOptions{Outcome: "password_changed"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		err = repo.Record(ctx, ports.AuthEvent{Outcome: "made_up"})
		require.Error(t, err, "outcome check constraint")
	})
}

func TestAuthEventRepo_Prune_Integration(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
		clock := NewManualClock(start)
		repo := NewAuthEventRepo(db, WithClock(clock))

		for range 5 {
			require.NoError(t, repo.Record(ctx, ports.AuthEvent{Login: "olga", Outcome: "logout"}))
			clock.Advance(24 * time.Hour)
		}

		removed, err := repo.Prune(ctx, start.Add(3*24*time.Hour), 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)

		left, err := repo.ListRecent(ctx, ListAuthEventsOptions{})
		require.NoError(t, err)
		require.Len(t, left, 2)
		assert.True(t, left[1].CreatedAt.Equal(start.Add(3*24*time.Hour)))

		removed, err = repo.Prune(ctx, start, 0)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}
