// Package migrations embeds the schema of every SQL backend.
package migrations

import "embed"

// Postgres holds postgres/*.sql, applied in name order.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// PostgresDir is the directory inside Postgres.
const PostgresDir = "postgres"
