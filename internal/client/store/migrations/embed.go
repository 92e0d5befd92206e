// Package migrations embeds the goose migrations for the local partitions.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
