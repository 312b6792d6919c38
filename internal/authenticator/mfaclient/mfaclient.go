// Package mfaclient calls the MFA Arbiter's POST /check and POST /verify on the
// Authenticator's behalf.
package mfaclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"adaptivemfa/internal/apierr"
)

// CheckRequest is the /check envelope.
type CheckRequest struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	DeviceID  string `json:"device_id"`
	RiskScore int    `json:"risk_score"`
}

// CheckResult is the /check data envelope.
type CheckResult struct {
	EventID     string `json:"event_id"`
	MFARequired bool   `json:"mfa_required"`
}

type checkResponse struct {
	Message string      `json:"message"`
	Data    CheckResult `json:"data"`
}

// VerifyRequest is the /verify envelope.
type VerifyRequest struct {
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	DeviceID  string `json:"device_id"`
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
	OTP       string `json:"otp"`
}

// VerifyResult is the /verify response.
type VerifyResult struct {
	DeviceSaved bool `json:"device_saved"`
}

type verifyResponse struct {
	Message     string `json:"message"`
	DeviceSaved bool   `json:"device_saved"`
}

// Client calls the MFA Arbiter over HTTP.
type Client struct {
	http *resty.Client
}

// New returns a Client calling the MFA Arbiter at baseURL, bounding every request to timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
	}
}

// Check submits req and reports whether the Arbiter requires an MFA challenge. A 200
// means not-required, a 202 means a challenge was issued and dispatched.
func (c *Client) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	var body checkResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post("/check")
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", req.EventID, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted:
		return &body.Data, nil
	default:
		return nil, fmt.Errorf("check %s: unexpected status %d", req.EventID, resp.StatusCode())
	}
}

// Verify submits an OTP for classification. The Arbiter's /verify renders errors as
// {detail} rather than the {error, message} shape every other route uses, so mismatches
// are recovered by comparing detail text against the sentinels' own messages rather than
// a Kind field.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var body verifyResponse
	var errBody apierr.Detail
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		SetError(&errBody).
		Post("/verify")
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", req.EventID, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &VerifyResult{DeviceSaved: body.DeviceSaved}, nil
	case http.StatusBadRequest:
		return nil, apierr.ErrNoPendingChallenge
	case http.StatusUnauthorized:
		switch errBody.Detail {
		case apierr.ErrDeviceMismatch.Error():
			return nil, apierr.ErrDeviceMismatch
		default:
			return nil, apierr.ErrOTPInvalid
		}
	default:
		return nil, fmt.Errorf("verify %s: unexpected status %d", req.EventID, resp.StatusCode())
	}
}

// DeleteTrustedDevices asks the Arbiter to drop every trusted device for userID, the
// first leg of the Authenticator's account-deletion cascade.
func (c *Client) DeleteTrustedDevices(ctx context.Context, userID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/trusted/" + userID)
	if err != nil {
		return fmt.Errorf("delete trusted devices for %s: %w", userID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete trusted devices for %s: status %d", userID, resp.StatusCode())
	}
	return nil
}

// DeleteOTPLogs asks the Arbiter to drop every OTP log row for email, the second leg of
// the Authenticator's account-deletion cascade.
func (c *Client) DeleteOTPLogs(ctx context.Context, email string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/otp-logs/" + email)
	if err != nil {
		return fmt.Errorf("delete otp logs for %s: %w", email, err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete otp logs for %s: status %d", email, resp.StatusCode())
	}
	return nil
}
