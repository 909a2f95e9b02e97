// Package users provides user profile and bidder subscription management
package users

import "time"

// UserProfileResponse is the authenticated user's own profile view
type UserProfileResponse struct {
	ID           int64                 `json:"id"`
	Email        string                `json:"email"`
	Name         string                `json:"name"`
	Role         string                `json:"role"`
	State        string                `json:"state"`
	CreatedAt    string                `json:"created_at"`
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
}

// UpdateProfileRequest updates mutable profile fields. Password change
// requires the current password.
type UpdateProfileRequest struct {
	Name            *string `json:"name,omitempty"`
	CurrentPassword string  `json:"current_password,omitempty"`
	NewPassword     string  `json:"new_password,omitempty"`
}

// UpdateProfileResponse confirms a profile update
type UpdateProfileResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// SubscriptionResponse describes a bidder subscription
type SubscriptionResponse struct {
	ID        int64  `json:"id"`
	Plan      string `json:"plan"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
}

// ActivateSubscriptionResponse is returned after activating or renewing
type ActivateSubscriptionResponse struct {
	Message      string               `json:"message"`
	Subscription SubscriptionResponse `json:"subscription"`
}

// CancelSubscriptionResponse confirms a cancellation
type CancelSubscriptionResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// AdminUsersListRequest filters the admin user listing
type AdminUsersListRequest struct {
	State  string `query:"state" encore:"optional"`
	Search string `query:"search" encore:"optional"`
	Page   int    `query:"page" encore:"optional"`
	Limit  int    `query:"limit" encore:"optional"`
}

// AdminUserSummary is one row of the admin user listing
type AdminUserSummary struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
}

// AdminUsersListResponse is the paged admin user listing
type AdminUsersListResponse struct {
	Users []AdminUserSummary `json:"users"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// AdminUserStateResponse confirms a suspend/reactivate action
type AdminUserStateResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// User represents a user entity from the database
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         string
	State        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subscription represents a subscription entity from the database
type Subscription struct {
	ID        int64
	UserID    int64
	Plan      string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
