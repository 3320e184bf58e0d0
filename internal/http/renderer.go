package httpx

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
)

// TemplateRenderer renders HTML templates for back-office pages.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem containing templates (required)
	Logger     *slog.Logger // Logger for template errors (optional)
}

// NewTemplateRenderer constructs a renderer by parsing templates from the provided config.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t, err := template.New("root").Funcs(templateFuncs()).ParseFS(cfg.TemplateFS, "*.tmpl", "pages/*.tmpl")
	if err != nil {
		logger.Error("template parsing failed",
			slog.Any("error", err),
			slog.String("phase", "initialization"),
		)
		return nil, err
	}
	return &TemplateRenderer{t: t, logger: logger}, nil
}

// Render executes the named template into a buffer and writes it with status 200.
// Nothing is written when execution fails.
func (r *TemplateRenderer) Render(w http.ResponseWriter, name string, data any) error {
	return r.RenderStatus(w, renderParams{Name: name, Status: http.StatusOK, Data: data})
}

type renderParams struct {
	Name   string
	Status int
	Data   any
}

// RenderStatus is Render with an explicit status code.
func (r *TemplateRenderer) RenderStatus(w http.ResponseWriter, p renderParams) error {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, p.Name, p.Data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("template", p.Name),
			slog.Any("error", err),
		)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(p.Status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template",
			slog.String("template", p.Name),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"isActive": func(current, path string) bool {
			return current == path || strings.HasPrefix(current, path+"/")
		},
		"permLabel": func(p domainauth.Permission) string { return permissionLabels[p] },
	}
}

//nolint:gochecknoglobals // static read-only lookup for templates
var permissionLabels = map[domainauth.Permission]string{
	domainauth.PermOrdersView:     "Просмотр заказов",
	domainauth.PermOrdersEdit:     "Изменение заказов",
	domainauth.PermUsersView:      "Просмотр пользователей",
	domainauth.PermUsersEdit:      "Изменение пользователей",
	domainauth.PermFeedbackView:   "Просмотр обращений",
	domainauth.PermFeedbackEdit:   "Ответ на обращения",
	domainauth.PermVendorsView:    "Просмотр продавцов",
	domainauth.PermVendorsApprove: "Одобрение продавцов",
	domainauth.PermAuditView:      "Журнал действий",
	domainauth.PermStaffManage:    "Управление сотрудниками",
	domainauth.PermRolesManage:    "Управление ролями",
}
