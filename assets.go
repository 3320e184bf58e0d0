// Package staffgate provides embedded assets for production builds.
package staffgate

import "embed"

// Embedded assets for the back-office HTML shell.

//go:embed all:frontend/static
var StaticFS embed.FS

//go:embed all:frontend/templates
var TemplateFS embed.FS
