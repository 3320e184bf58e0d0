package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/http/staffnav"
)

// PageAction is a page-level control shown only to holders of its permission.
type PageAction struct {
	Name       string
	Label      string
	Permission domainauth.Permission
}

//nolint:gochecknoglobals // static read-only lookup
var pageActions = map[string][]PageAction{
	"/staff/orders":   {{Name: "edit", Label: "Изменить заказ", Permission: domainauth.PermOrdersEdit}},
	"/staff/users":    {{Name: "edit", Label: "Изменить пользователя", Permission: domainauth.PermUsersEdit}},
	"/staff/feedback": {{Name: "reply", Label: "Ответить", Permission: domainauth.PermFeedbackEdit}},
	"/staff/vendors":  {{Name: "approve", Label: "Одобрить продавца", Permission: domainauth.PermVendorsApprove}},
	"/staff/employees": {
		{Name: "create", Label: "Добавить сотрудника", Permission: domainauth.PermStaffManage},
		{Name: "assign_role", Label: "Назначить роль", Permission: domainauth.PermRolesManage},
	},
	"/staff/roles": {{Name: "create", Label: "Создать роль", Permission: domainauth.PermRolesManage}},
}

// PageData is passed to the layout template.
type PageData struct {
	Title       string
	CurrentPath string
	Content     string // "section" or "profile"
	APIPath     string
	Identity    *domainauth.Identity
	Demo        bool
	Nav         []staffnav.Entry
	Actions     []PageAction
	Can         map[string]bool
	Permissions []domainauth.Permission
	Notice      string
}

// PageHandlers renders the back-office HTML shell.
type PageHandlers struct {
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

func (h *PageHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Section renders a manifest page. Actions the session does not hold are left
// out of the page entirely.
func (h *PageHandlers) Section(entry staffnav.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := h.basePage(r, entry.Label, entry.Path)
		data.Content = "section"
		data.APIPath = apiPrefix + apiResourceFor(entry.Path)
		acc := GetAccessFromContext(r.Context())
		for _, a := range pageActions[entry.Path] {
			if acc.Can(a.Permission) {
				data.Actions = append(data.Actions, a)
				data.Can[a.Name] = true
			}
		}
		h.render(w, r, data)
	}
}

// Profile renders the profile page, available to every signed-in identity.
func (h *PageHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	data := h.basePage(r, "Профиль", profilePath)
	data.Content = "profile"
	data.Permissions = GetAccessFromContext(r.Context()).Granted()
	if r.URL.Query().Get("password") == "changed" {
		data.Notice = "Пароль изменён"
	}
	h.render(w, r, data)
}

func (h *PageHandlers) basePage(r *http.Request, title, path string) PageData {
	sess, _ := GetSessionFromContext(r.Context())
	return PageData{
		Title:       title,
		CurrentPath: path,
		Identity:    sess.Identity,
		Demo:        sess.IsDemo(),
		Nav:         GetAccessFromContext(r.Context()).Navigation(),
		Can:         make(map[string]bool),
	}
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, data PageData) {
	w.Header().Set("Cache-Control", "no-store")
	if err := h.Renderer.Render(w, "layout", data); err != nil {
		h.logger().ErrorContext(r.Context(), "render page failed", "page", data.CurrentPath, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// apiResourceFor maps a page path to the API collection that backs it.
// Search runs against the feedback collection.
func apiResourceFor(pagePath string) string {
	switch pagePath {
	case "/staff/search":
		return "feedback"
	default:
		return pagePath[len(rootPath)+1:]
	}
}
