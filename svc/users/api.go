// Package users provides user profile and bidder subscription management
package users

import (
	"context"
	"strconv"

	"encore.dev/beta/auth"

	"encore.app/pkg/errs"
	authsvc "encore.app/svc/auth"
)

func currentUserID() (int64, error) {
	uidStr, ok := auth.UserID()
	if !ok {
		return 0, errs.New(errs.AuthUnauthenticated, "authentication required")
	}
	uid, err := strconv.ParseInt(string(uidStr), 10, 64)
	if err != nil {
		return 0, errs.New(errs.Internal, "invalid user ID format")
	}
	return uid, nil
}

func isAdmin() bool {
	if d := auth.Data(); d != nil {
		if v, ok := d.(*authsvc.AuthData); ok {
			return v.Role == "admin"
		}
	}
	return false
}

// GetProfile returns the authenticated user's profile
//
//encore:api auth method=GET path=/me
func (s *Service) GetProfile(ctx context.Context) (*UserProfileResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	return s.GetUserProfile(ctx, uid)
}

// UpdateProfile updates the authenticated user's profile
//
//encore:api auth method=PATCH path=/me
func (s *Service) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	return s.UpdateUserProfile(ctx, uid, req)
}

// GetSubscription returns the authenticated user's active bidder subscription
//
//encore:api auth method=GET path=/me/subscription
func (s *Service) GetSubscription(ctx context.Context) (*SubscriptionResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	return s.GetSubscriptionForUser(ctx, uid)
}

// ActivateSubscription activates or renews the bidder subscription
//
//encore:api auth method=POST path=/me/subscription
func (s *Service) ActivateSubscription(ctx context.Context) (*ActivateSubscriptionResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	return s.ActivateSubscriptionForUser(ctx, uid)
}

// CancelSubscription cancels the active bidder subscription
//
//encore:api auth method=POST path=/me/subscription/cancel
func (s *Service) CancelSubscription(ctx context.Context) (*CancelSubscriptionResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	return s.CancelSubscriptionForUser(ctx, uid)
}

// AdminListUsers returns a paged user listing for administrators
//
//encore:api auth method=GET path=/admin/users
func (s *Service) AdminListUsers(ctx context.Context, req *AdminUsersListRequest) (*AdminUsersListResponse, error) {
	if _, err := currentUserID(); err != nil {
		return nil, err
	}
	if !isAdmin() {
		return nil, errs.New(errs.AuthForbidden, "admin privileges required")
	}
	return s.ListUsersForAdmin(ctx, req)
}

// AdminSuspendUser suspends an active user account
//
//encore:api auth method=POST path=/admin/users/:id/suspend
func (s *Service) AdminSuspendUser(ctx context.Context, id int64) (*AdminUserStateResponse, error) {
	adminID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if !isAdmin() {
		return nil, errs.New(errs.AuthForbidden, "admin privileges required")
	}
	return s.SetUserStateByAdmin(ctx, adminID, id, "active", "suspended", "user.suspended")
}

// AdminReactivateUser restores a suspended user account
//
//encore:api auth method=POST path=/admin/users/:id/reactivate
func (s *Service) AdminReactivateUser(ctx context.Context, id int64) (*AdminUserStateResponse, error) {
	adminID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if !isAdmin() {
		return nil, errs.New(errs.AuthForbidden, "admin privileges required")
	}
	return s.SetUserStateByAdmin(ctx, adminID, id, "suspended", "active", "user.reactivated")
}
