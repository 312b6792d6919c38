// Package riskclient calls the Risk Scorer's POST /predict on the Authenticator's
// behalf, the first leg of the synchronous login pipeline.
package riskclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// PredictRequest mirrors the LoginAttempt envelope the Risk Scorer persists.
type PredictRequest struct {
	EventID       string    `json:"event_id"`
	UserID        *string   `json:"user_id,omitempty"`
	Email         string    `json:"email"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	Country       string    `json:"country,omitempty"`
	Region        string    `json:"region,omitempty"`
	City          string    `json:"city,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	WasSuccessful bool      `json:"was_successful"`
}

// PredictResult is the Risk Scorer's /predict data envelope.
type PredictResult struct {
	EventID   string `json:"event_id"`
	RiskScore int    `json:"risk_score"`
	Persisted bool   `json:"persisted"`
}

type predictResponse struct {
	Message string        `json:"message"`
	Data    PredictResult `json:"data"`
}

// Client calls the Risk Scorer over HTTP.
type Client struct {
	http *resty.Client
}

// New returns a Client calling the Risk Scorer at baseURL, bounding every request to timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout),
	}
}

// Predict submits req and returns the Risk Scorer's score, or an error wrapping the
// upstream failure so the Authenticator can map it to UpstreamUnavailable.
func (c *Client) Predict(ctx context.Context, req PredictRequest) (*PredictResult, error) {
	var body predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post("/predict")
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", req.EventID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("predict %s: unexpected status %d", req.EventID, resp.StatusCode())
	}
	return &body.Data, nil
}
