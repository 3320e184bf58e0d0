package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/garagebay/staffgate"
	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/http/staffnav"
	"github.com/garagebay/staffgate/internal/observability/statsd"
)

// StorefrontCapture copies the storefront session into the request context.
type StorefrontCapture interface {
	Capture() func(http.Handler) http.Handler
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions     SessionService    // Required
	Tokens       SharedTokenSource // Required
	SharedAPI    Forwarder         // Required: shared administrative API
	StaffAPI     Forwarder         // Required: staff backend
	Storefront   StorefrontCapture // Optional: without it demo sessions have no shared API token
	AuthEvents   AuthEventLister   // Optional: enables GET /staff/api/auth-events
	Renderer     *TemplateRenderer // Optional: defaults to the embedded templates
	StaticFS     fs.FS             // Optional: defaults to the embedded static assets
	Cookies      CookieConfig
	HealthChecks map[string]HealthCheck // Optional: readiness probes for /healthz
	Metrics      statsd.Sink            // Optional
	Logger       *slog.Logger           // Optional
}

// NewRouter creates and configures the HTTP router. The chain is
// RequestID → Recover → Logging → storefront capture → mux.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := services.Renderer
	if renderer == nil {
		templateFS, err := fs.Sub(staffgate.TemplateFS, TemplatePathFromRoot)
		if err != nil {
			return nil, err
		}
		if renderer, err = NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger}); err != nil {
			return nil, err
		}
	}
	staticFS := services.StaticFS
	if staticFS == nil {
		sub, err := fs.Sub(staffgate.StaticFS, staticPathFromRoot)
		if err != nil {
			return nil, err
		}
		staticFS = sub
	}

	guard := GuardOptions{Sessions: services.Sessions, Renderer: renderer, Metrics: services.Metrics}
	auth := &AuthHandlers{Svc: services.Sessions, Cookies: services.Cookies, Renderer: renderer, Logger: logger}
	proxy := &ProxyHandlers{
		Shared:   services.SharedAPI,
		Staff:    services.StaffAPI,
		Tokens:   services.Tokens,
		Sessions: services.Sessions,
		Logger:   logger,
	}
	pages := &PageHandlers{Renderer: renderer, Logger: logger}

	mux := http.NewServeMux()
	health := healthHandler(services.HealthChecks)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	registerAuthRoutes(mux, auth, guard)
	registerProxyRoutes(mux, proxy, guard)
	registerPageRoutes(mux, pages, guard)
	if services.AuthEvents != nil {
		events := &AuthEventHandlers{Events: services.AuthEvents, Logger: logger}
		mux.Handle("GET "+apiPrefix+"auth-events", RequirePermission(guard, permPtr(domainauth.PermAuditView))(http.HandlerFunc(events.List)))
	}

	var handler http.Handler = mux
	if services.Storefront != nil {
		handler = services.Storefront.Capture()(handler)
	}
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	handler = RequestID(handler)
	return handler, nil
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, guard GuardOptions) {
	requireSession := RequireSession(guard)

	mux.Handle("POST /staff/api/login", http.HandlerFunc(h.Login))
	mux.Handle("POST /staff/api/logout", http.HandlerFunc(h.Logout))
	mux.Handle("GET /staff/api/session", http.HandlerFunc(h.Session))
	mux.Handle("POST /staff/api/profile/password", requireSession(http.HandlerFunc(h.ChangePassword)))
	mux.Handle("POST /staff/api/profile/refresh", requireSession(http.HandlerFunc(h.Refresh)))

	mux.Handle("GET "+loginPagePath, http.HandlerFunc(h.LoginPage))
	mux.Handle("GET "+rootPath+"/{$}", requireSession(http.HandlerFunc(h.Root)))
	mux.Handle("GET "+rootPath, requireSession(http.HandlerFunc(h.Root)))
}

func registerProxyRoutes(mux *http.ServeMux, h *ProxyHandlers, guard GuardOptions) {
	for _, res := range sharedResources {
		read := RequirePermission(guard, &res.read)(h.SharedAPI(res.name))
		handleCollection(mux, []string{http.MethodGet}, res.name, read)
		if res.write != nil {
			write := RequirePermission(guard, res.write)(h.SharedAPI(res.name))
			handleCollection(mux, writeMethods, res.name, write)
		}
	}
	for _, res := range managementResources {
		handler := RequirePermission(guard, &res.perm)(h.Management(res))
		handleCollection(mux, append([]string{http.MethodGet}, writeMethods...), res.name, handler)
	}
}

// handleCollection registers h for the collection and everything below it.
func handleCollection(mux *http.ServeMux, methods []string, name string, h http.Handler) {
	base := apiPrefix + name
	for _, m := range methods {
		mux.Handle(m+" "+base, h)
		mux.Handle(m+" "+base+"/{path...}", h)
	}
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers, guard GuardOptions) {
	for _, entry := range staffnav.Manifest() {
		mux.Handle("GET "+entry.Path, RequirePermission(guard, &entry.Permission)(h.Section(entry)))
	}
	mux.Handle("GET "+profilePath, RequireSession(guard)(http.HandlerFunc(h.Profile)))
}
