// Package migrations embeds the versioned SQL schema, one directory per goose dialect.
package migrations

import "embed"

//go:embed postgres/*.sql mysql/*.sql sqlite3/*.sql
var Migrations embed.FS
