// Package migrations embeds the goose SQL migrations applied by every
// service's AutoMigrate step.
package migrations

import "embed"

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
