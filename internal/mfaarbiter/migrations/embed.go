package migrations

import "embed"

// FS embeds the MFA Arbiter's own SQL migrations (trusted_devices, otp_logs).
//
//go:embed *.sql
var FS embed.FS
