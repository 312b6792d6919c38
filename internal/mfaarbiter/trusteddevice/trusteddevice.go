// Package trusteddevice is the MFA Arbiter's repository for the TrustedDevice table:
// a (user_id, device_id) pair is trusted iff a row exists with expires_at in the future.
package trusteddevice

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TrustedDevice is one device a user completed an MFA challenge on, trusted until
// ExpiresAt.
type TrustedDevice struct {
	UserID    string
	DeviceID  string
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsTrusted reports whether d is trusted at now — exists and unexpired.
func (d *TrustedDevice) IsTrusted(now time.Time) bool {
	return d != nil && d.ExpiresAt.After(now)
}

// Repository persists TrustedDevice rows in the MFA Arbiter's Postgres database.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a Repository backed by db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert records (or refreshes) trust for the (user_id, device_id) pair, after a
// successful OTP verification.
func (r *Repository) Upsert(ctx context.Context, d *TrustedDevice) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trusted_devices (user_id, device_id, user_agent, ip_address, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, device_id) DO UPDATE
		   SET user_agent = EXCLUDED.user_agent,
		       ip_address = EXCLUDED.ip_address,
		       expires_at = EXCLUDED.expires_at`,
		d.UserID, d.DeviceID, d.UserAgent, d.IPAddress, d.CreatedAt, d.ExpiresAt,
	)
	return err
}

// Get returns the trust row for (userID, deviceID), or nil if none exists.
func (r *Repository) Get(ctx context.Context, userID, deviceID string) (*TrustedDevice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, device_id, user_agent, ip_address, created_at, expires_at
		 FROM trusted_devices WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	var d TrustedDevice
	err := row.Scan(&d.UserID, &d.DeviceID, &d.UserAgent, &d.IPAddress, &d.CreatedAt, &d.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// DeleteDevice revokes a single (user_id, device_id) trust.
func (r *Repository) DeleteDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM trusted_devices WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllForUser revokes every trusted device for userID, part of account deletion.
func (r *Repository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trusted_devices WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
