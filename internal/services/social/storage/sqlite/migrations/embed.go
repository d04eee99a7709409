package migrations

import "embed"

// FS contains embedded SQLite migrations for the people directory.
//
//go:embed *.sql
var FS embed.FS
