// Package verifyclient implements engine.Verifier over the MFA Arbiter's
// GET /otp-logs/{event_id} endpoint.
package verifyclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// otpLogsResponse mirrors the MFA Arbiter's non-204 /otp-logs/{event_id} body.
type otpLogsResponse struct {
	SentLogsCount     int `json:"sent_logs_count"`
	VerifiedLogsCount int `json:"verified_logs_count"`
}

// Client calls the MFA Arbiter's /otp-logs/{event_id} endpoint to classify historical
// login attempts as verified or unverified.
type Client struct {
	http *resty.Client
}

// New returns a Client that calls the MFA Arbiter at baseURL, bounding every request
// to timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
	}
}

// Verified implements engine.Verifier: a 204 response means no challenge was issued for
// event_id (trusted device or low score), which counts as verified; otherwise the row is
// verified only if the Arbiter recorded exactly one sent log and one verified log.
func (c *Client) Verified(ctx context.Context, eventID string) (bool, error) {
	var body otpLogsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/otp-logs/" + eventID)
	if err != nil {
		return false, fmt.Errorf("otp-logs %s: %w", eventID, err)
	}

	switch resp.StatusCode() {
	case http.StatusNoContent:
		return true, nil
	case http.StatusOK:
		return body.SentLogsCount == 1 && body.VerifiedLogsCount == 1, nil
	default:
		return false, fmt.Errorf("otp-logs %s: unexpected status %d", eventID, resp.StatusCode())
	}
}
