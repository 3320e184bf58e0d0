package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/garagebay/staffgate/internal/data"
	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthEvents struct {
	got  data.ListAuthEventsOptions
	rows []data.AuthEventRecord
	err  error
}

func (f *fakeAuthEvents) ListRecent(_ context.Context, opts data.ListAuthEventsOptions) ([]data.AuthEventRecord, error) {
	f.got = opts
	return f.rows, f.err
}

func TestParseAuthEventsFilter(t *testing.T) {
	opts, err := parseAuthEventsFilter(url.Values{
		"limit":   {"20"},
		"login":   {"olga"},
		"outcome": {"login_rejected"},
		"before":  {"2026-10-18T09:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, opts.Limit)
	assert.Equal(t, "olga", opts.Login)
	assert.Equal(t, "login_rejected", opts.Outcome)
	assert.True(t, opts.Before.Equal(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)))

	for _, bad := range []url.Values{{"limit": {"0"}}, {"limit": {"ten"}}, {"before": {"yesterday"}}} {
		_, err := parseAuthEventsFilter(bad)
		require.Error(t, err, bad)
	}
}

func TestAuthEvents_RequiresAuditPermission(t *testing.T) {
	events := &fakeAuthEvents{rows: []data.AuthEventRecord{{ID: 1, Login: "olga", Outcome: "login_succeeded"}}}
	ts := newTestServer(t, withAuthEvents(events))

	support := ts.login(t, "olga", supportPassword)
	rec := ts.do(withCookie(jsonRequest(http.MethodGet, "/staff/api/auth-events", nil), support))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.backend.AddAccount(supportPassword, supportIdentity(domainauth.PermAuditView), supportToken)
	auditor := ts.login(t, "olga", supportPassword)
	rec = ts.do(withCookie(jsonRequest(http.MethodGet, "/staff/api/auth-events?login=olga&limit=5", nil), auditor))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, events.got.Limit)
	assert.Equal(t, "olga", events.got.Login)

	var body struct {
		Events []data.AuthEventRecord `json:"events"`
	}
	decodeInto(t, rec, &body)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "login_succeeded", body.Events[0].Outcome)
}

func TestAuthEvents_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "bad filter", path: "/staff/api/auth-events?limit=-1", wantCode: http.StatusBadRequest, wantErr: "invalid_filter"},
		{name: "not migrated", path: "/staff/api/auth-events", err: data.ErrAuditNotMigrated, wantCode: http.StatusServiceUnavailable, wantErr: "audit_unavailable"},
		{name: "db error", path: "/staff/api/auth-events", err: errors.New("conn reset"), wantCode: http.StatusInternalServerError, wantErr: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, withAuthEvents(&fakeAuthEvents{err: tt.err}))
			cookie := ts.login(t, "root", adminPassword)

			rec := ts.do(withCookie(jsonRequest(http.MethodGet, tt.path, nil), cookie))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeBody(t, rec)["error"])
		})
	}
}

func TestAuthEvents_NotRegisteredWithoutLister(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.login(t, "root", adminPassword)
	rec := ts.do(withCookie(jsonRequest(http.MethodGet, "/staff/api/auth-events", nil), cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
