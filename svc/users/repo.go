// Package users provides user profile and bidder subscription management
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"encore.dev/storage/sqldb"
)

// Repository handles database operations for users and subscriptions
type Repository struct {
	db *sqldb.Database
}

// NewRepository creates a new users repository
func NewRepository(db *sqldb.Database) *Repository {
	return &Repository{db: db}
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := r.db.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role::text, state::text, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.Role, &user.State, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// UpdateUserName updates the user's display name
func (r *Repository) UpdateUserName(ctx context.Context, userID int64, name string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET name = $2, updated_at = (CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id = $1
	`, userID, name)
	return err
}

// UpdateUserPassword replaces the user's password hash
func (r *Repository) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = (CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id = $1
	`, userID, passwordHash)
	return err
}

// GetActiveSubscription returns the user's current active, unexpired
// subscription, or nil if there is none.
func (r *Repository) GetActiveSubscription(ctx context.Context, userID int64) (*Subscription, error) {
	var sub Subscription
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, plan, status::text, expires_at, created_at
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active' AND expires_at > NOW()
		ORDER BY expires_at DESC
		LIMIT 1
	`, userID).Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.ExpiresAt, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// ExtendSubscription pushes the expiry of an active subscription forward
// by the given number of days, counted from the later of now and the
// current expiry.
func (r *Repository) ExtendSubscription(ctx context.Context, subID int64, days int) (*Subscription, error) {
	var sub Subscription
	err := r.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET expires_at = GREATEST(expires_at, NOW()) + make_interval(days => $2)
		WHERE id = $1
		RETURNING id, user_id, plan, status::text, expires_at, created_at
	`, subID, days).Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.ExpiresAt, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to extend subscription: %w", err)
	}
	return &sub, nil
}

// CreateSubscription opens a new active subscription for the user
func (r *Repository) CreateSubscription(ctx context.Context, userID int64, plan string, days int) (*Subscription, error) {
	var sub Subscription
	err := r.db.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan, status, expires_at)
		VALUES ($1, $2, 'active', NOW() + make_interval(days => $3))
		RETURNING id, user_id, plan, status::text, expires_at, created_at
	`, userID, plan, days).Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.ExpiresAt, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return &sub, nil
}

// CancelSubscription cancels the user's active subscription. Returns
// false when there was nothing to cancel.
func (r *Repository) CancelSubscription(ctx context.Context, userID int64) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled'
		WHERE user_id = $1 AND status = 'active'
	`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListUsers returns a filtered, paged user listing for admins
func (r *Repository) ListUsers(ctx context.Context, state, search string, limit, offset int) ([]AdminUserSummary, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if state != "" {
		argCount++
		conditions = append(conditions, fmt.Sprintf("state = $%d::user_state", argCount))
		args = append(args, state)
	}
	if search != "" {
		argCount++
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR name ILIKE $%d)", argCount, argCount))
		args = append(args, "%"+search+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM users " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, email, name, role::text, state::text,
		       to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM users
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argCount+1, argCount+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []AdminUserSummary
	for rows.Next() {
		var u AdminUserSummary
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.State, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// SetUserState moves a user between states. Returns false when the user
// was not in the expected state.
func (r *Repository) SetUserState(ctx context.Context, userID int64, from, to string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET state = $3::user_state, updated_at = (CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id = $1 AND state = $2::user_state
	`, userID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update user state: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
