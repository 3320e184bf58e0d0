package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/garagebay/staffgate/internal/data"
)

// AuthEventLister reads the sign-in audit trail.
type AuthEventLister interface {
	ListRecent(ctx context.Context, opts data.ListAuthEventsOptions) ([]data.AuthEventRecord, error)
}

// AuthEventHandlers serves the sign-in audit trail to auditors.
type AuthEventHandlers struct {
	Events AuthEventLister
	Logger *slog.Logger
}

// List handles GET /staff/api/auth-events?limit=&login=&outcome=&before=.
func (h *AuthEventHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseAuthEventsFilter(r.URL.Query())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_filter", Err: err})
		return
	}

	events, err := h.Events.ListRecent(r.Context(), opts)
	if err != nil {
		if errors.Is(err, data.ErrAuditNotMigrated) {
			WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "audit_unavailable", Err: err})
			return
		}
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "list auth events failed", "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal_error",
			Err:     errors.New("failed to list auth events"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func parseAuthEventsFilter(q url.Values) (data.ListAuthEventsOptions, error) {
	opts := data.ListAuthEventsOptions{
		Login:   q.Get("login"),
		Outcome: q.Get("outcome"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		opts.Limit = n
	}
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, fmt.Errorf("before must be an RFC 3339 timestamp: %w", err)
		}
		opts.Before = t
	}
	return opts, nil
}
