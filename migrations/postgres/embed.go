// Package postgres embebe las migraciones SQL.
package postgres

import "embed"

//go:embed *.sql
var FS embed.FS
