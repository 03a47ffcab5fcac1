// Package static embeds the supervisor HTML views.
package static

import "embed"

//go:embed *.html
var Views embed.FS
