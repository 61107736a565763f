package db

import "embed"

// EmbedMigrations contains the embedded SQL migration files for the
// search-history sidecar.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
