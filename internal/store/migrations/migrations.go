// Package migrations holds the embedded SQL schema migrations for the
// local cache database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
