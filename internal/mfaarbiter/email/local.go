package email

import (
	"context"
	"log"
)

// LocalSender logs the OTP instead of dispatching it, for local development and tests
// where no SES credentials are configured.
type LocalSender struct{}

// NewLocalSender returns a Sender that logs instead of sending.
func NewLocalSender() *LocalSender {
	return &LocalSender{}
}

// SendOTP logs otp for to. DEV MODE ONLY: never wire this into a production deployment.
func (s *LocalSender) SendOTP(ctx context.Context, to, otp string) error {
	log.Printf("email: DEV MODE ONLY otp for %s: %s", to, otp)
	return nil
}
