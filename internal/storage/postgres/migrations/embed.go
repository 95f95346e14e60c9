package migrations

import "embed"

// FS contains embedded Postgres migrations for message storage.
//
//go:embed *.sql
var FS embed.FS
