// Package migrations embeds the SQL schema into the binary.
//
// Importing it for side effects registers the files with the database package:
//
//	import _ "github.com/nerrad567/facility-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/facility-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
