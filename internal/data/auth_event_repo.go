package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagebay/staffgate/internal/data/database"
	"github.com/garagebay/staffgate/internal/data/pgxutil"
	"github.com/garagebay/staffgate/internal/ports"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultAuthEventLimit = 50
	maxAuthEventLimit     = 500

	defaultPruneBatch = 1000
	// pruneStatementTimeout bounds each delete batch.
	pruneStatementTimeout = "30s"
)

// AuthEventRecord is a stored sign-in audit event.
type AuthEventRecord struct {
	ID         int64     `db:"id"          json:"id"`
	SessionID  string    `db:"session_id"  json:"session_id"`
	Login      string    `db:"login"       json:"login"`
	Outcome    string    `db:"outcome"     json:"outcome"`
	ErrorClass string    `db:"error_class" json:"error_class,omitempty"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// ListAuthEventsOptions filters ListRecent. Zero values mean no filter.
type ListAuthEventsOptions struct {
	Limit   int
	Login   string
	Outcome string
	Before  time.Time // only events strictly older than this
}

// AuthEventRepo stores the back-office sign-in audit trail in Postgres.
type AuthEventRepo struct {
	DB    *sql.DB
	clock Clock
}

var _ ports.AuthEventRecorder = (*AuthEventRepo)(nil)

// AuthEventRepoOption customises an AuthEventRepo.
type AuthEventRepoOption func(*AuthEventRepo)

// WithClock replaces the wall clock used for rows without CreatedAt.
func WithClock(c Clock) AuthEventRepoOption {
	return func(r *AuthEventRepo) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewAuthEventRepo creates an AuthEventRepo over db.
func NewAuthEventRepo(db *sql.DB, opts ...AuthEventRepoOption) *AuthEventRepo {
	r := &AuthEventRepo{DB: db, clock: SystemClock{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record inserts one event. A zero CreatedAt is stamped with the current time.
func (r *AuthEventRepo) Record(ctx context.Context, ev ports.AuthEvent) error {
	if strings.TrimSpace(ev.Outcome) == "" {
		return ErrOutcomeRequired
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.clock.Now()
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO staff_auth_events (session_id, login, outcome, error_class, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.SessionID, ev.Login, ev.Outcome, ev.ErrorClass, stamp(createdAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record auth event: %w", mapAuditErr(err))
	}
	return nil
}

// ListRecent returns the newest events first.
func (r *AuthEventRepo) ListRecent(ctx context.Context, opts ListAuthEventsOptions) ([]AuthEventRecord, error) {
	query, args := buildListAuthEventsQuery(opts)

	var out []AuthEventRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[AuthEventRecord])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", mapAuditErr(err))
	}
	if out == nil {
		out = []AuthEventRecord{}
	}
	return out, nil
}

// Prune deletes events created before cutoff in batches of batchSize (a
// non-positive size uses the default) and returns the number removed. Each
// batch commits on its own, so a cancelled prune keeps the work already done.
func (r *AuthEventRepo) Prune(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if cutoff.IsZero() {
		return 0, errors.New("prune cutoff is required")
	}
	if batchSize <= 0 {
		batchSize = defaultPruneBatch
	}

	var total int64
	for {
		var n int64
		err := pgxutil.WithPgxTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = '"+pruneStatementTimeout+"'"); err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
				DELETE FROM staff_auth_events
				WHERE id IN (
					SELECT id FROM staff_auth_events
					WHERE created_at < $1
					ORDER BY id
					LIMIT $2
				)`, cutoff.UTC(), batchSize)
			if err != nil {
				return err
			}
			n = tag.RowsAffected()
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("prune auth events: %w", mapAuditErr(err))
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func buildListAuthEventsQuery(opts ListAuthEventsOptions) (string, []any) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultAuthEventLimit
	}

	q := &database.ListQuery{
		Table:   "staff_auth_events",
		Columns: []string{"id", "session_id", "login", "outcome", "error_class", "created_at"},
		OrderBy: []database.OrderTerm{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}},
		Limit:   min(limit, maxAuthEventLimit),
	}
	if login := strings.TrimSpace(opts.Login); login != "" {
		q.Where("login", database.Equal, login)
	}
	if outcome := strings.TrimSpace(opts.Outcome); outcome != "" {
		q.Where("outcome", database.Equal, outcome)
	}
	if !opts.Before.IsZero() {
		q.Where("created_at", database.LessThan, opts.Before.UTC())
	}
	return q.Build()
}

func mapAuditErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return errors.Join(ErrAuditNotMigrated, err)
	}
	return err
}

// NoopAuthEventRecorder discards events. It is used when no database is configured.
type NoopAuthEventRecorder struct{}

func (NoopAuthEventRecorder) Record(context.Context, ports.AuthEvent) error { return nil }
