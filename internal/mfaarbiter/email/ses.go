package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESSender dispatches OTP email through AWS SES.
type SESSender struct {
	client *ses.Client
	from   string
}

// NewSESSender returns a Sender backed by client, sending From fromAddress.
func NewSESSender(client *ses.Client, fromAddress string) *SESSender {
	return &SESSender{client: client, from: fromAddress}
}

// SendOTP sends otp to the address in to via SES.
func (s *SESSender) SendOTP(ctx context.Context, to, otp string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(otpSubject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(otpBody(otp)), Charset: aws.String("UTF-8")},
			},
		},
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("email: ses send to %s: %w", to, err)
	}
	return nil
}
