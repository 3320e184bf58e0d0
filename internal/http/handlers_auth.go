package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/http/staffnav"
	"github.com/garagebay/staffgate/internal/ports"
	"github.com/garagebay/staffgate/internal/service"
)

// SessionService defines the session operations the HTTP layer needs.
type SessionService interface {
	SessionReader
	Login(ctx context.Context, sid, login, password string) (domainauth.Session, error)
	Logout(ctx context.Context, sid string) error
	Refresh(ctx context.Context, sid string) (domainauth.Session, error)
	ChangePassword(ctx context.Context, sid string, in ports.ChangePasswordInput) error
}

// AuthHandlers provides HTTP handlers for back-office session operations.
type AuthHandlers struct {
	Svc      SessionService
	Cookies  CookieConfig
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginRequest struct {
	Login       string `json:"login"`
	Password    string `json:"password"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// Login authenticates against the staff backend.
// POST /staff/api/login with JSON or form fields login, password, redirect_uri.
//
// Every successful login gets a fresh portal session id; the previous one, if
// any, is logged out afterwards. A failed login leaves the previous session alone.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	asJSON := wantsJSON(r)
	in, ok := h.readLogin(w, r, asJSON)
	if !ok {
		return
	}

	oldSID := readSessionID(r)
	sid := newSessionID()
	sess, err := h.Svc.Login(r.Context(), sid, in.Login, in.Password)
	if err != nil {
		h.loginFailed(w, r, loginFailure{err: err, in: in, asJSON: asJSON})
		return
	}

	h.Cookies.setSession(w, r, sid)
	if oldSID != "" {
		if logoutErr := h.Svc.Logout(r.Context(), oldSID); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout of replaced session failed", "error", logoutErr)
		}
	}

	if asJSON {
		WriteJSON(w, http.StatusOK, newSessionView(sess))
		return
	}
	target := staffnav.NewAccess(sess).Fallback()
	if in.RedirectURI != "" {
		target = safeRedirectPath(in.RedirectURI)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *AuthHandlers) readLogin(w http.ResponseWriter, r *http.Request, asJSON bool) (loginRequest, bool) {
	var in loginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !DecodeJSON(w, r, &in) {
			return in, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
			return in, false
		}
		in = loginRequest{
			Login:       r.PostFormValue("login"),
			Password:    r.PostFormValue("password"),
			RedirectURI: r.PostFormValue("redirect_uri"),
		}
	}
	in.Login = strings.TrimSpace(in.Login)
	if in.Login == "" || in.Password == "" {
		err := errors.New("login and password are required")
		if asJSON {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
		} else {
			h.renderLogin(w, loginPageData{Error: "Введите логин и пароль", RedirectURI: in.RedirectURI, Login: in.Login}, http.StatusBadRequest)
		}
		return in, false
	}
	return in, true
}

type loginFailure struct {
	err    error
	in     loginRequest
	asJSON bool
}

func (h *AuthHandlers) loginFailed(w http.ResponseWriter, r *http.Request, f loginFailure) {
	code, errCode, message := classifyLoginError(f.err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		h.logger().ErrorContext(r.Context(), "login failed", "error", f.err)
	}
	if f.asJSON {
		WriteError(w, ErrorParams{
			Code:      code,
			ErrCode:   errCode,
			Err:       f.err,
			Message:   message,
			Retryable: code == http.StatusServiceUnavailable,
		})
		return
	}
	h.renderLogin(w, loginPageData{Error: message, RedirectURI: f.in.RedirectURI, Login: f.in.Login}, code)
}

func classifyLoginError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domainauth.ErrRejected):
		return http.StatusUnauthorized, "invalid_credentials", "Неверный логин или пароль"
	case domainauth.FallbackEligible(err):
		return http.StatusServiceUnavailable, "backend_unavailable", "Сервис авторизации недоступен, попробуйте позже"
	case errors.Is(err, domainauth.ErrForbidden):
		return http.StatusForbidden, "forbidden", "Вход в панель управления запрещён"
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict, "superseded", "Вход прерван более новым запросом"
	default:
		return http.StatusBadGateway, "login_failed", "Не удалось выполнить вход"
	}
}

// Logout clears the back-office session. It never contacts the staff backend.
// POST /staff/api/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := readSessionID(r); sid != "" {
		if err := h.Svc.Logout(r.Context(), sid); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.Cookies.clearSession(w, r)

	if wantsJSON(r) || IsHTMX(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": loginPagePath,
		})
		return
	}
	http.Redirect(w, r, loginPagePath, http.StatusSeeOther)
}

// Session returns the current session snapshot.
// GET /staff/api/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	sess := domainauth.EmptySession()
	if sid := readSessionID(r); sid != "" {
		sess = h.Svc.Current(r.Context(), sid)
	}
	if sess.Phase == domainauth.PhaseResolving {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, newSessionView(sess))
}

// Refresh re-resolves the identity to pick up role changes.
// POST /staff/api/profile/refresh (guarded by RequireSession).
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	sid := GetSessionIDFromContext(r.Context())
	sess, err := h.Svc.Refresh(r.Context(), sid)
	if err != nil {
		if errors.Is(err, service.ErrSuperseded) {
			WriteJSON(w, http.StatusOK, newSessionView(h.Svc.Current(r.Context(), sid)))
			return
		}
		h.Cookies.clearSession(w, r)
		code, errCode := http.StatusUnauthorized, "session_expired"
		if domainauth.FallbackEligible(err) {
			code, errCode = http.StatusServiceUnavailable, "backend_unavailable"
		}
		WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err})
		return
	}
	if formSubmission(r) {
		http.Redirect(w, r, profilePath, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, newSessionView(sess))
}

// ChangePassword changes the password of the signed-in identity.
// POST /staff/api/profile/password (guarded by RequireSession). The demo
// identity is refused without contacting the staff backend.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, _ := GetSessionFromContext(r.Context())
	if sess.IsDemo() {
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "demo_mode",
			Err:     errors.New("password change is unavailable in demo mode"),
		})
		return
	}

	var in ports.ChangePasswordInput
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !DecodeJSON(w, r, &in) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
			return
		}
		in = ports.ChangePasswordInput{
			OldPassword: r.PostFormValue("old_password"),
			NewPassword: r.PostFormValue("new_password"),
		}
	}
	if in.OldPassword == "" || in.NewPassword == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_request",
			Err:     errors.New("old_password and new_password are required"),
		})
		return
	}

	if err := h.Svc.ChangePassword(r.Context(), GetSessionIDFromContext(r.Context()), in); err != nil {
		writePasswordError(w, err)
		return
	}
	if formSubmission(r) {
		http.Redirect(w, r, profilePath+"?password=changed", http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// statusCarrier is implemented by backend errors that carry an HTTP status.
type statusCarrier interface {
	HTTPStatus() int
}

func writePasswordError(w http.ResponseWriter, err error) {
	var sc statusCarrier
	switch {
	case errors.Is(err, domainauth.ErrDemoCredential):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "demo_mode", Err: err})
	case errors.Is(err, domainauth.ErrNoSession), errors.Is(err, domainauth.ErrRejected):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "session_expired", Err: err})
	case domainauth.FallbackEligible(err):
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "backend_unavailable", Err: err, Retryable: true})
	case errors.As(err, &sc) && sc.HTTPStatus() >= 400 && sc.HTTPStatus() < 500:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "password_change_rejected", Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusBadGateway, ErrCode: "password_change_failed", Err: err})
	}
}

type loginPageData struct {
	Error       string
	Login       string
	RedirectURI string
}

// LoginPage renders the login form, or sends a signed-in identity to its fallback page.
// GET /staff/login.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	if sid := readSessionID(r); sid != "" {
		if sess := h.Svc.Current(r.Context(), sid); sess.Identity != nil {
			http.Redirect(w, r, staffnav.NewAccess(sess).Fallback(), http.StatusSeeOther)
			return
		}
	}
	h.renderLogin(w, loginPageData{RedirectURI: r.URL.Query().Get("redirect_uri")}, http.StatusOK)
}

func (h *AuthHandlers) renderLogin(w http.ResponseWriter, data loginPageData, status int) {
	if data.RedirectURI != "" {
		data.RedirectURI = safeRedirectPath(data.RedirectURI)
	}
	if h.Renderer == nil {
		http.Error(w, data.Error, status)
		return
	}
	if err := h.Renderer.RenderStatus(w, renderParams{Name: "login", Status: status, Data: data}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Root sends the caller to the landing page for its session.
// GET /staff.
func (h *AuthHandlers) Root(w http.ResponseWriter, r *http.Request) {
	sess, _ := GetSessionFromContext(r.Context())
	http.Redirect(w, r, staffnav.NewAccess(sess).Fallback(), http.StatusSeeOther)
}
