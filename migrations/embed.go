// Package migrations carries the schema files compiled into the server binary.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
