package migrations

import "embed"

// FS embeds the Authenticator's own SQL migrations (users, credentials), applied via
// golang-migrate's iofs source at service startup.
//
//go:embed *.sql
var FS embed.FS
