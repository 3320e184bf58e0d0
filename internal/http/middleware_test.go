package httpx

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeRedirectPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "/staff"},
		{in: "/staff", want: "/staff"},
		{in: "/staff/orders?page=2", want: "/staff/orders?page=2"},
		{in: "/staffx", want: "/staff"},
		{in: "/", want: "/staff"},
		{in: "//evil.example/staff", want: "/staff"},
		{in: "https://evil.example/staff/orders", want: "/staff"},
		{in: `/staff/\evil`, want: "/staff"},
		{in: "javascript:alert(1)", want: "/staff"},
		{in: "staff/orders", want: "/staff"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeRedirectPath(tt.in), tt.in)
	}
}

func TestRecover(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff/orders", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "boom")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestRecover_APIGetsJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RequestID(Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff/api/auth-events", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "internal_error", body["error"])
	assert.Equal(t, true, body["retryable"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set(requestIDHeader, "edge-42")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "edge-42", seen)
	assert.Equal(t, "edge-42", rec.Header().Get(requestIDHeader))

	for _, bad := range []string{"", "has space", strings.Repeat("x", 65), "line\nbreak"} {
		rec = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/staff", nil)
		req.Header.Set(requestIDHeader, bad)
		h.ServeHTTP(rec, req)
		_, err := uuid.Parse(seen)
		require.NoError(t, err, "replacement for %q", bad)
	}
}

func TestLogging_RecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/staff/orders", nil))

	assert.Contains(t, logs.String(), "status=418")
	assert.Contains(t, logs.String(), "path=/staff/orders")
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/staff/orders", http.StatusOK, "level=INFO"},
		{"/staff/orders", http.StatusBadGateway, "level=ERROR"},
		{"/healthz", http.StatusOK, "level=DEBUG"},
		{"/static/app.css", http.StatusOK, "level=DEBUG"},
	}
	for _, tt := range tests {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("abc"))
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Contains(t, logs.String(), tt.want, tt.path)
		assert.Contains(t, logs.String(), "bytes=3", tt.path)
	}
}
