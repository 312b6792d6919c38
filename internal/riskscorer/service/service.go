// Package service orchestrates the Risk Scorer's /predict and /history operations:
// idempotent scoring, persistence, and best-effort audit publication.
package service

import (
	"context"
	"time"

	"adaptivemfa/internal/eventbus"
	"adaptivemfa/internal/riskscorer/engine"
	"adaptivemfa/internal/riskscorer/loginattempt"
)

// historyWindow bounds the number of prior attempts joined against the current one.
// Unbounded history scans are not practical at scale; 200 rows covers the "three
// consecutive" and "last known IP/device/geo" rules with a comfortable safety margin
// over any realistic login cadence.
const historyWindow = 200

// Repository is the subset of loginattempt.Repository the service depends on.
type Repository interface {
	Insert(ctx context.Context, a *loginattempt.LoginAttempt) (bool, error)
	GetByEventID(ctx context.Context, eventID string) (*loginattempt.LoginAttempt, error)
	RecentByEmail(ctx context.Context, email string, limit int) ([]*loginattempt.LoginAttempt, error)
}

// Publisher is the subset of eventbus.Producer the service depends on.
type Publisher interface {
	PublishAsync(routingKey string, event interface{})
}

// PredictRequest is the login-attempt envelope scored by Predict.
type PredictRequest struct {
	EventID       string
	UserID        *string
	Email         string
	IPAddress     string
	UserAgent     string
	Country       string
	Region        string
	City          string
	Timestamp     time.Time
	WasSuccessful bool
}

// PredictResult is returned to the Authenticator by the /predict handler.
type PredictResult struct {
	EventID   string `json:"event_id"`
	RiskScore int    `json:"risk_score"`
	Persisted bool   `json:"persisted"`
}

// Service implements the Risk Scorer's operations.
type Service struct {
	repo      Repository
	scorer    engine.Scorer
	publisher Publisher
}

// New returns a Service backed by repo, scorer, and publisher. publisher may be nil.
func New(repo Repository, scorer engine.Scorer, publisher Publisher) *Service {
	return &Service{repo: repo, scorer: scorer, publisher: publisher}
}

// Predict scores req against req.Email's history and persists the result, idempotent by
// event_id: a repeat call returns the already-stored score with persisted=false.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (*PredictResult, error) {
	if existing, err := s.repo.GetByEventID(ctx, req.EventID); err != nil {
		return nil, err
	} else if existing != nil {
		return &PredictResult{EventID: req.EventID, RiskScore: existing.RiskScore, Persisted: false}, nil
	}

	history, err := s.repo.RecentByEmail(ctx, req.Email, historyWindow)
	if err != nil {
		return nil, err
	}

	score, err := s.scorer.Score(ctx, engine.Input{
		EventID:       req.EventID,
		UserID:        req.UserID,
		Email:         req.Email,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Country:       req.Country,
		Region:        req.Region,
		City:          req.City,
		Timestamp:     req.Timestamp,
		WasSuccessful: req.WasSuccessful,
	}, history)
	if err != nil {
		return nil, err
	}

	attempt := &loginattempt.LoginAttempt{
		EventID:       req.EventID,
		UserID:        req.UserID,
		Email:         req.Email,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Country:       req.Country,
		Region:        req.Region,
		City:          req.City,
		Timestamp:     req.Timestamp,
		WasSuccessful: req.WasSuccessful,
		RiskScore:     score,
	}
	persisted, err := s.repo.Insert(ctx, attempt)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.PublishAsync(eventbus.RoutingKeyRiskScored, eventbus.RiskScored{
			EventID:   req.EventID,
			Email:     req.Email,
			RiskScore: score,
			Persisted: persisted,
			Timestamp: req.Timestamp,
		})
	}

	return &PredictResult{EventID: req.EventID, RiskScore: score, Persisted: persisted}, nil
}

// History returns up to limit of email's most-recent attempts, newest first, for the
// operational introspection endpoint.
func (s *Service) History(ctx context.Context, email string, limit int) ([]*loginattempt.LoginAttempt, error) {
	return s.repo.RecentByEmail(ctx, email, limit)
}

// IngestLoginAttempted persists a login.attempted event observed on auth_events. A
// failed password check never reaches Predict, so this is the only path that writes its
// row — without it the history rules 8 and 9 (failure penalty, three-consecutive) never
// see the failures they penalize. Successful attempts are ignored here: Predict already
// persists them, scored, on the synchronous path. Insert is idempotent by event_id, so a
// redelivered message is harmless.
func (s *Service) IngestLoginAttempted(ctx context.Context, evt eventbus.LoginAttempted) error {
	if evt.WasSuccessful {
		return nil
	}
	_, err := s.repo.Insert(ctx, &loginattempt.LoginAttempt{
		EventID:       evt.EventID,
		UserID:        evt.UserID,
		Email:         evt.Email,
		IPAddress:     evt.IPAddress,
		UserAgent:     evt.UserAgent,
		Country:       evt.Country,
		Region:        evt.Region,
		City:          evt.City,
		Timestamp:     evt.Timestamp,
		WasSuccessful: false,
	})
	return err
}
