// Package migrations carries the SQL schema files compiled into the binary,
// so a deployed fleet-core needs no migration files on disk.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// Files returns the embedded migration set for database.Migrate.
func Files() fs.FS {
	return files
}
