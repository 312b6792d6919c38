package migrations

import "embed"

// FS embeds the Risk Scorer's own SQL migrations (login_attempts).
//
//go:embed *.sql
var FS embed.FS
