// Package auth provides authentication and authorization services
package auth

import (
	"context"

	"encore.dev/storage/sqldb"
)

// Database connection
var db = sqldb.Named("coredb")

// Repository handles database operations for authentication
type Repository struct{}

// NewRepository creates a new authentication repository
func NewRepository() *Repository {
	return &Repository{}
}

// CreateUser creates a new user account with the default role
func (r *Repository) CreateUser(ctx context.Context, email, passwordHash, name string) (int64, error) {
	var userID int64
	err := db.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, email, passwordHash).Scan(&userID)

	return userID, err
}

// GetUserByEmail retrieves an active user by email address
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := db.QueryRow(ctx, `
		SELECT id, name, email, password_hash, role::text, state::text
		FROM users
		WHERE email = $1 AND state = 'active'
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.State)

	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUserByID retrieves an active user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := db.QueryRow(ctx, `
		SELECT id, name, email, password_hash, role::text, state::text
		FROM users
		WHERE id = $1 AND state = 'active'
	`, userID).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.State)

	if err != nil {
		return nil, err
	}

	return &user, nil
}

// UserExists checks if a user with the given email exists
func (r *Repository) UserExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)
	`, email).Scan(&exists)

	return exists, err
}

// UserExistsByID checks if a user with the given ID exists and is active
func (r *Repository) UserExistsByID(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND state = 'active')
	`, userID).Scan(&exists)

	return exists, err
}
