// Package email dispatches one-time passcodes over email. Sender is implemented by an
// SES-backed transport for production and a local transport for development, mirroring
// the teacher's pluggable OTP-transport shape (internal/mfa/sms.SMSLocalClient).
package email

import (
	"context"
	"fmt"
)

// Sender dispatches a six-digit OTP to an email address.
type Sender interface {
	SendOTP(ctx context.Context, to, otp string) error
}

// otpSubject and otpBody are shared between transports so message content stays
// consistent regardless of which Sender is wired in.
const otpSubject = "Your verification code"

func otpBody(otp string) string {
	return fmt.Sprintf("Your one-time verification code is %s. It expires in 5 minutes.", otp)
}
