package appfs

import "embed"

// FS holds the SQL migrations and the assets (email templates, common passwords list).
//
//go:embed migrations/*.sql assets
var FS embed.FS
