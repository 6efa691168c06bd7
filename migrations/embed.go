// Package migrations embeds the ledger schema migrations so the service and
// the migrate CLI can apply them without a migrations directory on disk.
package migrations

import "embed"

// FS holds every *.sql migration in golang-migrate naming
//
//go:embed *.sql
var FS embed.FS
