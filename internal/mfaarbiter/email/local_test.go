package email

import (
	"context"
	"testing"
)

func TestLocalSender_SendOTP_NeverErrors(t *testing.T) {
	s := NewLocalSender()
	if err := s.SendOTP(context.Background(), "alice@example.com", "123456"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
}

func TestLocalSender_ImplementsSender(t *testing.T) {
	var _ Sender = NewLocalSender()
}
