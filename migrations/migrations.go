// Package migrations embeds the SQL schema for the patient store.
package migrations

import "embed"

// Files holds the numbered *.sql migrations, applied in version order by
// db.Migrator.
//
//go:embed *.sql
var Files embed.FS
