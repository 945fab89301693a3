// Package migrations embeds the SQL schema files into the binary.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS that contains the files.
const Dir = "."
