// Package migrations embeds the journal schema into the binary.
package migrations

import "embed"

// FS holds the SQL migration files, named
// YYYYMMDD_HHMMSS_description.{up,down}.sql, at its root.
//
//go:embed *.sql
var FS embed.FS
