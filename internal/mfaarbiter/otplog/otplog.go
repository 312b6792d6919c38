// Package otplog is the MFA Arbiter's repository for the OTPLog table: one row per
// state transition of a challenge, retained to let the Risk Scorer reconstruct whether
// a historical login was actually completed via MFA.
package otplog

import (
	"context"
	"database/sql"
	"time"
)

// Status is the outcome recorded for one OTPLog row.
type Status string

const (
	StatusSent        Status = "sent"
	StatusFailedSend  Status = "failed-send"
	StatusNotFound    Status = "not-found"
	StatusInvalid     Status = "invalid"
	StatusVerified    Status = "verified"
	StatusDeviceMismatch Status = "device-mismatch"
)

// Entry is one OTPLog row.
type Entry struct {
	EventID   string
	Email     string
	Status    Status
	Error     string
	Timestamp time.Time
}

// Repository persists OTPLog rows in the MFA Arbiter's Postgres database.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a Repository backed by db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append inserts a new log row for a challenge state transition.
func (r *Repository) Append(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_logs (event_id, email, status, error, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		e.EventID, e.Email, string(e.Status), e.Error, e.Timestamp,
	)
	return err
}

// ByEventID returns every log row for event_id, oldest first.
func (r *Repository) ByEventID(ctx context.Context, eventID string) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, email, status, error, timestamp FROM otp_logs
		 WHERE event_id = $1 ORDER BY timestamp ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.EventID, &e.Email, &status, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DeleteByEmail removes every log row for email, part of account deletion.
func (r *Repository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_logs WHERE email = $1`, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
