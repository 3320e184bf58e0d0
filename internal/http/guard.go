package httpx

import (
	"context"
	"errors"
	"net/http"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/http/staffnav"
	"github.com/garagebay/staffgate/internal/observability/metrics"
	"github.com/garagebay/staffgate/internal/observability/statsd"
)

// SessionReader returns the current session snapshot for a portal session id.
type SessionReader interface {
	Current(ctx context.Context, sid string) domainauth.Session
}

// GuardOptions configures RequirePermission.
type GuardOptions struct {
	Sessions SessionReader     // Required
	Renderer *TemplateRenderer // Optional: loading page for browsers
	Metrics  statsd.Sink       // Optional
}

// RequirePermission returns a middleware that guards a route with required.
// A nil permission only demands a resolved identity.
//
// For API requests: 202 while resolving, 401 without a session, 403 without the permission.
// For browser requests: a self-refreshing loading page, a redirect to the login
// page, or a redirect to the session's fallback page.
func RequirePermission(opts GuardOptions, required *domainauth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := readSessionID(r)
			sess := domainauth.EmptySession()
			if sid != "" {
				sess = opts.Sessions.Current(r.Context(), sid)
			}

			decision := staffnav.EvaluateGuard(sess, required)
			metrics.EmitGuard(opts.Metrics, string(decision.State), r.Pattern)

			switch decision.State {
			case staffnav.GuardLoading:
				writeLoading(w, r, opts.Renderer)
			case staffnav.GuardDeniedNoSession:
				if IsBrowserRequest(r) {
					redirectBrowser(w, r, loginURL(r))
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
			case staffnav.GuardDeniedNoPermission:
				if IsBrowserRequest(r) {
					redirectBrowser(w, r, decision.Redirect)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
			default:
				ctx := SetSessionInContext(r.Context(), sid, sess)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// RequireSession guards a route that any signed-in identity may open.
func RequireSession(opts GuardOptions) func(http.Handler) http.Handler {
	return RequirePermission(opts, nil)
}

const loadingFallbackHTML = `<!doctype html><html lang="ru"><head><meta charset="utf-8"><title>Загрузка</title></head><body><p>Загрузка…</p></body></html>`

// writeLoading answers while the identity is still resolving. Nothing is
// decided yet, so the caller is asked to come back rather than redirected.
func writeLoading(w http.ResponseWriter, r *http.Request, renderer *TemplateRenderer) {
	if !IsBrowserRequest(r) {
		w.Header().Set("Retry-After", "1")
		WriteJSON(w, http.StatusAccepted, map[string]string{"state": string(staffnav.GuardLoading)})
		return
	}
	w.Header().Set("Refresh", "1")
	w.Header().Set("Cache-Control", "no-store")
	if renderer != nil {
		if err := renderer.Render(w, "loading", nil); err == nil {
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loadingFallbackHTML))
}
