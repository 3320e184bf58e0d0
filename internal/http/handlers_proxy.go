package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/service"
)

// Forwarder sends a request to an upstream API with the given bearer credential.
type Forwarder interface {
	Do(ctx context.Context, cred domainauth.Credential, req *http.Request) (*http.Response, error)
}

// SharedTokenSource picks the bearer token for the shared administrative API.
type SharedTokenSource interface {
	TokenForSharedAPI(ctx context.Context, sess domainauth.Session) (string, bool)
}

// sharedResource is a shared administrative API collection and the permissions
// gating reads and writes. A nil write permission makes it read-only.
type sharedResource struct {
	name  string
	read  domainauth.Permission
	write *domainauth.Permission
}

func permPtr(p domainauth.Permission) *domainauth.Permission { return &p }

//nolint:gochecknoglobals // static read-only routing table
var sharedResources = []sharedResource{
	{name: "orders", read: domainauth.PermOrdersView, write: permPtr(domainauth.PermOrdersEdit)},
	{name: "users", read: domainauth.PermUsersView, write: permPtr(domainauth.PermUsersEdit)},
	{name: "feedback", read: domainauth.PermFeedbackView, write: permPtr(domainauth.PermFeedbackEdit)},
	{name: "vendors", read: domainauth.PermVendorsView, write: permPtr(domainauth.PermVendorsApprove)},
	{name: "audit", read: domainauth.PermAuditView},
}

// managementResource is a staff backend collection gated by one permission.
type managementResource struct {
	name     string
	upstream string
	perm     domainauth.Permission
}

//nolint:gochecknoglobals // static read-only routing table
var managementResources = []managementResource{
	{name: "employees", upstream: "/staff/employees", perm: domainauth.PermStaffManage},
	{name: "roles", upstream: "/staff/roles", perm: domainauth.PermRolesManage},
}

//nolint:gochecknoglobals // static read-only list
var writeMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// ProxyHandlers forwards back-office API calls upstream with the right credential.
type ProxyHandlers struct {
	Shared   Forwarder         // shared administrative API
	Staff    Forwarder         // staff backend
	Tokens   SharedTokenSource // token choice for Shared
	Sessions SessionService    // refreshed after management writes
	Logger   *slog.Logger
}

func (h *ProxyHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// SharedAPI forwards /staff/api/<resource>/... to the shared administrative API.
// Demo sessions borrow the storefront token; without one the caller must sign
// in to the storefront first.
func (h *ProxyHandlers) SharedAPI(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := GetSessionFromContext(r.Context())
		token, ok := h.Tokens.TokenForSharedAPI(r.Context(), sess)
		if !ok {
			WriteError(w, ErrorParams{
				Code:    http.StatusUnauthorized,
				ErrCode: "storefront_login_required",
				Err:     errors.New("sign in to the storefront to use the shared administrative API in demo mode"),
			})
			return
		}
		h.forward(w, r, forwardSpec{
			via:  h.Shared,
			cred: domainauth.Credential(token),
			path: "/" + resource + subPath(r),
		})
	}
}

// Management forwards /staff/api/<resource>/... to the staff backend with the
// back-office credential. A successful write re-resolves the session so role
// changes that affect the caller show up at once.
func (h *ProxyHandlers) Management(res managementResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := GetSessionFromContext(r.Context())
		cred, err := service.ManagementCredential(sess)
		if err != nil {
			writeManagementCredentialError(w, err)
			return
		}
		status, ok := h.forward(w, r, forwardSpec{
			via:  h.Staff,
			cred: cred,
			path: res.upstream + subPath(r),
		})
		if !ok || !isWrite(r.Method) || status < 200 || status > 299 {
			return
		}
		if _, err = h.Sessions.Refresh(r.Context(), GetSessionIDFromContext(r.Context())); err != nil {
			h.logger().WarnContext(r.Context(), "refresh after management write failed",
				"resource", res.name, "error", err)
		}
	}
}

func writeManagementCredentialError(w http.ResponseWriter, err error) {
	if errors.Is(err, domainauth.ErrDemoCredential) {
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "demo_mode",
			Err:     errors.New("staff management is unavailable in demo mode"),
		})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: err})
}

type forwardSpec struct {
	via  Forwarder
	cred domainauth.Credential
	path string
}

// forward relays r upstream and copies the response back. It reports the
// upstream status and whether a response was relayed.
func (h *ProxyHandlers) forward(w http.ResponseWriter, r *http.Request, spec forwardSpec) (int, bool) {
	out := r.Clone(r.Context())
	out.URL.Path = spec.path
	out.URL.RawPath = ""

	resp, err := spec.via.Do(r.Context(), spec.cred, out)
	if err != nil {
		h.logger().WarnContext(r.Context(), "upstream call failed", "path", spec.path, "error", err)
		code, errCode := http.StatusBadGateway, "upstream_failed"
		if errors.Is(err, domainauth.ErrDemoCredential) {
			code, errCode = http.StatusConflict, "demo_mode"
		}
		WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: errors.New("upstream request failed")})
		return 0, false
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err = io.Copy(w, resp.Body); err != nil {
		h.logger().WarnContext(r.Context(), "relaying upstream body failed", "path", spec.path, "error", err)
	}
	return resp.StatusCode, true
}

// subPath returns the part of the request path after the resource, with a
// leading slash, or "" for the collection itself.
func subPath(r *http.Request) string {
	rest := r.PathValue("path")
	if rest == "" {
		return ""
	}
	return "/" + strings.TrimPrefix(rest, "/")
}

func isWrite(method string) bool { return slices.Contains(writeMethods, method) }

//nolint:gochecknoglobals // static read-only set
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Set-Cookie":          {}, // upstreams never write browser cookies
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		if _, skip := hopHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
