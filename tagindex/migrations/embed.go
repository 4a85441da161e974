package migrations

import "embed"

// FS contains the embedded SQLite migrations for the tag mapping table.
// Statements use the {{table}} placeholder for the configured table name.
//
//go:embed *.sql
var FS embed.FS
