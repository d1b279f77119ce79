// Package migrations embeds the SQL schema files for the SQLite item store.
package migrations

import "embed"

// FS contains all SQL migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
