package httpx

import "github.com/garagebay/staffgate/internal/http/staffnav"

const (
	rootPath      = staffnav.Root
	loginPagePath = staffnav.LoginPath
	profilePath   = staffnav.ProfilePath
	apiPrefix     = "/staff/api/"

	// maxFormBytes bounds login and password form bodies.
	maxFormBytes = 64 << 10
)

// Embedded asset roots, relative to the module root.
const (
	TemplatePathFromRoot = "frontend/templates"
	staticPathFromRoot   = "frontend/static"
)
