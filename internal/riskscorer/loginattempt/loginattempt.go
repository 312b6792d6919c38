// Package loginattempt is the Risk Scorer's repository for the LoginAttempt table: one
// immutable row per login, keyed by the Authenticator-assigned event_id.
package loginattempt

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LoginAttempt mirrors one row of the login-history table, immutable once inserted.
type LoginAttempt struct {
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
	RiskScore     int
}

// Repository persists LoginAttempt rows in the Risk Scorer's Postgres database.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a Repository backed by db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert persists a, returning (true, nil) on success. If event_id already exists, the
// insert is skipped and (false, nil) is returned — scoring is idempotent by event_id.
func (r *Repository) Insert(ctx context.Context, a *LoginAttempt) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO login_attempts
			(event_id, user_id, email, ip_address, user_agent, country, region, city, timestamp, was_successful, risk_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (event_id) DO NOTHING`,
		a.EventID, a.UserID, a.Email, a.IPAddress, a.UserAgent, a.Country, a.Region, a.City,
		a.Timestamp, a.WasSuccessful, a.RiskScore,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByEventID returns the attempt for event_id, or nil if not found.
func (r *Repository) GetByEventID(ctx context.Context, eventID string) (*LoginAttempt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT event_id, user_id, email, ip_address, user_agent, country, region, city, timestamp, was_successful, risk_score
		 FROM login_attempts WHERE event_id = $1`, eventID)
	return scanAttempt(row)
}

// RecentByEmail returns up to limit most-recent attempts for email, newest first —
// the history window the scoring algorithm and operational introspection both read.
func (r *Repository) RecentByEmail(ctx context.Context, email string, limit int) ([]*LoginAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, user_id, email, ip_address, user_agent, country, region, city, timestamp, was_successful, risk_score
		 FROM login_attempts WHERE email = $1 ORDER BY timestamp DESC LIMIT $2`, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LoginAttempt
	for rows.Next() {
		var a LoginAttempt
		if err := rows.Scan(&a.EventID, &a.UserID, &a.Email, &a.IPAddress, &a.UserAgent,
			&a.Country, &a.Region, &a.City, &a.Timestamp, &a.WasSuccessful, &a.RiskScore); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func scanAttempt(row *sql.Row) (*LoginAttempt, error) {
	var a LoginAttempt
	err := row.Scan(&a.EventID, &a.UserID, &a.Email, &a.IPAddress, &a.UserAgent,
		&a.Country, &a.Region, &a.City, &a.Timestamp, &a.WasSuccessful, &a.RiskScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
