// Package migrations embeds the schema of the device-local SQLite store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
