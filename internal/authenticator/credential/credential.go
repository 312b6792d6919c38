// Package credential is the Authenticator's password verifier store: one row per user,
// holding the bcrypt hash checked on /login and rewritten on /change-password.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Credential is one user's password verifier. SRPSalt/SRPVerifier are carried as
// placeholder columns for an SRP login flow the source system explored but never
// wired end-to-end; they are always empty here.
type Credential struct {
	UserID       string
	PasswordHash string
	SRPSalt      string
	SRPVerifier  string
	UpdatedAt    time.Time
}

// Repository persists Credential rows in the Authenticator's Postgres database.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a Repository backed by db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the password verifier for a newly registered user.
func (r *Repository) Create(ctx context.Context, c *Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, password_hash, srp_salt, srp_verifier, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.UserID, c.PasswordHash, c.SRPSalt, c.SRPVerifier, c.UpdatedAt,
	)
	return err
}

// GetByUserID returns the credential row for userID, or nil if not found.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, password_hash, srp_salt, srp_verifier, updated_at
		 FROM credentials WHERE user_id = $1`, userID)
	var c Credential
	err := row.Scan(&c.UserID, &c.PasswordHash, &c.SRPSalt, &c.SRPVerifier, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpdatePasswordHash rewrites the password hash for userID after a /change-password
// equality check.
func (r *Repository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET password_hash = $2, updated_at = $3 WHERE user_id = $1`,
		userID, passwordHash, updatedAt,
	)
	return err
}

// Delete removes the credential row for userID, part of account-deletion cascade.
func (r *Repository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = $1`, userID)
	return err
}
