package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrAuditNotMigrated is returned when the staff_auth_events table does not exist.
	ErrAuditNotMigrated = errors.New("audit table missing; run migrations")
	// ErrOutcomeRequired is returned when recording an event without an outcome.
	ErrOutcomeRequired = errors.New("auth event outcome is required")
)
