// Package user is the Authenticator's User repository: the account record created on
// registration, never mutated by the login path, deleted on account removal.
package user

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Role is the account's privilege level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the Authenticator's account record.
type User struct {
	ID        string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Repository persists User rows in the Authenticator's Postgres database.
type Repository struct {
	db *sql.DB
}

// NewRepository returns a Repository backed by db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user row. u.ID must already be set (caller generates the UUID so
// it can be referenced before the insert commits).
func (r *Repository) Create(ctx context.Context, u *User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, role, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, string(u.Role), u.CreatedAt,
	)
	return err
}

// GetByEmail returns the user with the given email, or nil if not found. Returns an
// error only for database failures, not for missing rows.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, role, created_at FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByID returns the user with the given id, or nil if not found.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, role, created_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Delete removes the user row for email. Returns the number of rows removed (0 or 1).
func (r *Repository) Delete(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE email = $1`, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Email, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
