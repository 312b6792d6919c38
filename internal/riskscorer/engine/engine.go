// Package engine implements the rule-based risk-scoring algorithm. It is pluggable
// behind the Scorer interface so a future learned model can replace the rule set
// without touching the service layer that calls it.
package engine

import (
	"context"
	"sync"
	"time"

	"adaptivemfa/internal/riskscorer/loginattempt"
)

// Verifier classifies whether a historical LoginAttempt with was_successful=true was
// actually completed via MFA, by reading the MFA Arbiter's OTP log for its event_id.
type Verifier interface {
	Verified(ctx context.Context, eventID string) (bool, error)
}

// Input is the login-attempt envelope scored by Score; it mirrors LoginAttempt minus
// the risk_score field, which Score computes.
type Input struct {
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

// Scorer computes a risk score in [0,100] for a login attempt given its prior history.
type Scorer interface {
	Score(ctx context.Context, in Input, history []*loginattempt.LoginAttempt) (int, error)
}

// Engine is the rule-based reference Scorer. It memoizes event_id -> verified per
// process so repeated lookups across a long history stay O(history-size) instead of
// re-querying the MFA Arbiter for the same event_id on every call.
type Engine struct {
	verifier Verifier

	mu   sync.RWMutex
	memo map[string]bool
}

// NewEngine returns an Engine that classifies historical successes via verifier.
func NewEngine(verifier Verifier) *Engine {
	return &Engine{verifier: verifier, memo: make(map[string]bool)}
}

// Score implements the nine-rule scoring algorithm, applied in order and capped at 100.
// history must be ordered newest-first (as loginattempt.Repository.RecentByEmail
// returns it).
func (e *Engine) Score(ctx context.Context, in Input, history []*loginattempt.LoginAttempt) (int, error) {
	// Rule 1: terminal-risk carry-forward.
	if len(history) > 0 {
		mostRecent := history[0]
		if mostRecent.RiskScore == 100 {
			verified, err := e.isVerified(ctx, mostRecent)
			if err != nil {
				return 0, err
			}
			if !verified {
				return 100, nil
			}
		}
	}

	// Rule 2: first-ever login for a known user.
	if in.UserID != nil && len(history) == 0 {
		return 50, nil
	}

	score := 0

	// Rule 3: new IP.
	verifiedMatch, err := e.hasVerifiedMatch(ctx, history, func(a *loginattempt.LoginAttempt) bool {
		return a.IPAddress == in.IPAddress
	})
	if err != nil {
		return 0, err
	}
	if !verifiedMatch {
		score += 30
	}

	// Rule 4: odd hour.
	hour := in.Timestamp.Hour()
	if hour < 5 || hour > 23 {
		score += 20
	}

	// Rule 5: new device.
	verifiedMatch, err = e.hasVerifiedMatch(ctx, history, func(a *loginattempt.LoginAttempt) bool {
		return a.UserAgent == in.UserAgent
	})
	if err != nil {
		return 0, err
	}
	if !verifiedMatch {
		score += 20
	}

	// Rule 6: new country.
	add, err := e.geoRuleScore(ctx, history, in.Country, 15, func(a *loginattempt.LoginAttempt) bool {
		return a.Country == in.Country
	})
	if err != nil {
		return 0, err
	}
	score += add

	// Rule 7: new region (analogous to country, weight 10).
	add, err = e.geoRuleScore(ctx, history, in.Region, 10, func(a *loginattempt.LoginAttempt) bool {
		return a.Region == in.Region
	})
	if err != nil {
		return 0, err
	}
	score += add

	// Rule 8: failure penalty.
	if !in.WasSuccessful {
		score += 15
	}

	// Rule 9: three-in-a-row bad.
	if len(history) >= 3 {
		allBad := true
		for i := 0; i < 3; i++ {
			a := history[i]
			if a.WasSuccessful {
				verified, err := e.isVerified(ctx, a)
				if err != nil {
					return 0, err
				}
				if verified {
					allBad = false
					break
				}
			}
		}
		if allBad {
			score += 100
		}
	}

	if score > 100 {
		score = 100
	}
	return score, nil
}

// geoRuleScore implements the "new country"/"new region" rule shape: no addition for an
// empty or "Local" value, an unconditional addition for "Unknown", and otherwise an
// addition only when no verified prior row matches.
func (e *Engine) geoRuleScore(ctx context.Context, history []*loginattempt.LoginAttempt, value string, weight int, match func(*loginattempt.LoginAttempt) bool) (int, error) {
	switch value {
	case "", "Local":
		return 0, nil
	case "Unknown":
		return weight, nil
	default:
		verifiedMatch, err := e.hasVerifiedMatch(ctx, history, match)
		if err != nil {
			return 0, err
		}
		if verifiedMatch {
			return 0, nil
		}
		return weight, nil
	}
}

// hasVerifiedMatch reports whether any successful, verified row in history satisfies match.
func (e *Engine) hasVerifiedMatch(ctx context.Context, history []*loginattempt.LoginAttempt, match func(*loginattempt.LoginAttempt) bool) (bool, error) {
	for _, a := range history {
		if !a.WasSuccessful || !match(a) {
			continue
		}
		verified, err := e.isVerified(ctx, a)
		if err != nil {
			return false, err
		}
		if verified {
			return true, nil
		}
	}
	return false, nil
}

// isVerified classifies a as verified, consulting (and populating) the per-process memo
// before calling the Verifier. A failed attempt is never verified.
func (e *Engine) isVerified(ctx context.Context, a *loginattempt.LoginAttempt) (bool, error) {
	if a == nil || !a.WasSuccessful {
		return false, nil
	}
	e.mu.RLock()
	v, ok := e.memo[a.EventID]
	e.mu.RUnlock()
	if ok {
		return v, nil
	}
	verified, err := e.verifier.Verified(ctx, a.EventID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	e.memo[a.EventID] = verified
	e.mu.Unlock()
	return verified, nil
}
