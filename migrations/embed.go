// Package migrations embeds the schema migrations applied by platform/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
