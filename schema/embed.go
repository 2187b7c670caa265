package schema

import "embed"

// Migration files, grouped by database driver.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
