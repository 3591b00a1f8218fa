// Package migrations содержит SQL-миграции схемы PostgreSQL в формате goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
