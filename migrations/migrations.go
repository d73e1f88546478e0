// Package migrations embeds the SQL applied by database.RunMigrations.
package migrations

import "embed"

// FS holds every *.up.sql file in apply order by name.
//
//go:embed *.up.sql
var FS embed.FS
