// Package appfs embeds the repository assets needed at runtime:
// goose migrations and email templates.
package appfs

import "embed"

//go:embed migrations assets/templates/email
var FS embed.FS
