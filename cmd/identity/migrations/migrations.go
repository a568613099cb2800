// Package migrations embeds the account schema history, one directory per
// SQL dialect. Files follow goose's annotated SQL format.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

// Directory names inside Migrations.
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
