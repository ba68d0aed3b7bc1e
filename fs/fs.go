package appfs

import "embed"

// FS holds the files shipped inside the binaries: SQL migrations and email templates.
//go:embed migrations all:templates
var FS embed.FS
