// Package auth provides authentication and authorization services
package auth

import "encore.app/pkg/errs"

// Authentication error values
var (
	// ErrUserAlreadyExists indicates that a user with the given email already exists
	ErrUserAlreadyExists = &errs.Error{
		Code:    errs.AuthEmailTaken,
		Message: "an account with this email already exists",
	}

	// ErrInvalidCredentials indicates invalid login credentials
	ErrInvalidCredentials = &errs.Error{
		Code:    errs.AuthInvalidCredentials,
		Message: "incorrect email or password",
	}

	// ErrUserNotFound indicates that the user was not found
	ErrUserNotFound = &errs.Error{
		Code:    errs.AuthUserNotFound,
		Message: "user not found",
	}

	// ErrUserInactive indicates that the user account is missing or inactive
	ErrUserInactive = &errs.Error{
		Code:    errs.AuthUserInactive,
		Message: "user account not found or inactive",
	}

	// ErrWeakPassword indicates that the password doesn't meet security requirements
	ErrWeakPassword = &errs.Error{
		Code:    errs.AuthWeakPassword,
		Message: "password must be at least 8 characters and contain letters and digits",
	}

	// ErrInvalidRefreshToken indicates an invalid or expired refresh token
	ErrInvalidRefreshToken = &errs.Error{
		Code:    errs.AuthInvalidRefreshToken,
		Message: "refresh token is invalid or expired",
	}
)

// NewRateLimitError creates a rate limit error with a custom message
func NewRateLimitError(message string) *errs.Error {
	return &errs.Error{
		Code:    errs.AuthRateLimitExceeded,
		Message: message,
	}
}

// NewInternalError creates an internal error with a custom message
func NewInternalError(message string) *errs.Error {
	return &errs.Error{
		Code:    errs.Internal,
		Message: message,
	}
}

// NewValidationError creates a validation error with a custom message
func NewValidationError(message string) *errs.Error {
	return &errs.Error{
		Code:    errs.ValidationFailed,
		Message: message,
	}
}
