package httpx

import (
	"net/http"
	"strings"
)

// htmx request and response headers.
const (
	hxRequest  = "Hx-Request"
	hxRedirect = "Hx-Redirect"
)

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(hxRequest), "true")
}

// IsBrowserRequest reports whether r should get HTML and redirects rather than
// JSON status codes. Everything under /staff/api/ and /static/ is treated as
// an API call; htmx and requests without an Accept header count as browsers.
func IsBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, apiPrefix) || strings.HasPrefix(r.URL.Path, "/static/") {
		return false
	}
	if IsHTMX(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html")
}

// wantsJSON reports whether a form-capable endpoint should answer with JSON.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

// formSubmission reports whether r is a plain HTML form post that expects a
// redirect rather than JSON.
func formSubmission(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	isForm := strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
	return isForm && !wantsJSON(r)
}

// redirectBrowser sends a browser to target. htmx swaps cannot follow a 303,
// so they get Hx-Redirect with a 200 instead.
func redirectBrowser(w http.ResponseWriter, r *http.Request, target string) {
	if IsHTMX(r) {
		w.Header().Set(hxRedirect, target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
