package sqlite

import "embed"

// schemaFS contains all SQLite schema files under schema/
//
//go:embed schema/*.sql
var schemaFS embed.FS
