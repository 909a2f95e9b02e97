// Package users provides user profile and bidder subscription management
package users

import (
	"context"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/audit"
	"encore.app/pkg/authn"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/svc/notifications"
)

var db = sqldb.Named("coredb")

// Service represents the users service
//
//encore:service
type Service struct {
	repo *Repository
}

func initService() (*Service, error) {
	return &Service{repo: NewRepository(db)}, nil
}

// GetUserProfile returns the user's own profile with subscription status
func (s *Service) GetUserProfile(ctx context.Context, userID int64) (*UserProfileResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load profile")
	}
	if user == nil {
		return nil, errs.New(errs.AuthUserNotFound, "user not found")
	}

	resp := &UserProfileResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		State:     user.State,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}

	sub, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load subscription")
	}
	if sub != nil {
		resp.Subscription = toSubscriptionResponse(sub)
	}
	return resp, nil
}

// UpdateUserProfile applies profile changes. A password change is only
// accepted with the correct current password.
func (s *Service) UpdateUserProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		return nil, errs.New(errs.AuthUserNotFound, "user not found")
	}

	if req.Name != nil {
		name := *req.Name
		if name == "" {
			return nil, errs.New(errs.ValidationFailed, "name cannot be empty")
		}
		if len(name) > 100 {
			return nil, errs.New(errs.ValidationFailed, "name must be 100 characters or fewer")
		}
		if err := s.repo.UpdateUserName(ctx, userID, name); err != nil {
			return nil, errs.New(errs.Internal, "failed to update name")
		}
	}

	if req.NewPassword != "" {
		if err := authn.VerifyPassword(req.CurrentPassword, user.PasswordHash); err != nil {
			return nil, errs.New(errs.AuthInvalidCredentials, "current password is incorrect")
		}
		if !authn.IsValidPassword(req.NewPassword) {
			return nil, errs.New(errs.AuthWeakPassword, "password must be at least 8 characters and contain letters and digits")
		}
		hash, err := authn.HashPassword(req.NewPassword)
		if err != nil {
			return nil, errs.New(errs.Internal, "failed to process password")
		}
		if err := s.repo.UpdateUserPassword(ctx, userID, hash); err != nil {
			return nil, errs.New(errs.Internal, "failed to update password")
		}
	}

	return &UpdateProfileResponse{Message: "Profile updated.", Success: true}, nil
}

// GetSubscriptionForUser returns the user's active subscription
func (s *Service) GetSubscriptionForUser(ctx context.Context, userID int64) (*SubscriptionResponse, error) {
	sub, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to load subscription")
	}
	if sub == nil {
		return nil, errs.New(errs.SubNotFound, "no active subscription")
	}
	return toSubscriptionResponse(sub), nil
}

// ActivateSubscriptionForUser activates the bidder plan, or renews it
// when one is already active. The duration comes from platform settings.
func (s *Service) ActivateSubscriptionForUser(ctx context.Context, userID int64) (*ActivateSubscriptionResponse, error) {
	days := config.GetSettings().SubscriptionsDurationDays
	if days <= 0 {
		days = 30
	}

	existing, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to check subscription")
	}

	var sub *Subscription
	renewed := false
	if existing != nil {
		sub, err = s.repo.ExtendSubscription(ctx, existing.ID, days)
		renewed = true
	} else {
		sub, err = s.repo.CreateSubscription(ctx, userID, "bidder", days)
	}
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to activate subscription")
	}

	_, _ = audit.LogAction(ctx, db, "subscription.activated", "subscription", fmt.Sprintf("%d", sub.ID), map[string]interface{}{
		"plan":       sub.Plan,
		"expires_at": sub.ExpiresAt.UTC().Format(time.RFC3339),
		"renewed":    renewed,
	}, audit.WithActor(userID))

	payload := map[string]any{
		"expires_at": sub.ExpiresAt.UTC().Format(time.RFC3339),
	}
	_, _ = notifications.EnqueueInternal(ctx, userID, "subscription_activated", payload)
	_, _ = notifications.EnqueueEmail(ctx, userID, "subscription_activated", payload)

	msg := "Bidder subscription activated."
	if renewed {
		msg = "Bidder subscription renewed."
	}
	return &ActivateSubscriptionResponse{
		Message:      msg,
		Subscription: *toSubscriptionResponse(sub),
	}, nil
}

// CancelSubscriptionForUser cancels the active subscription
func (s *Service) CancelSubscriptionForUser(ctx context.Context, userID int64) (*CancelSubscriptionResponse, error) {
	cancelled, err := s.repo.CancelSubscription(ctx, userID)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to cancel subscription")
	}
	if !cancelled {
		return nil, errs.New(errs.SubNotFound, "no active subscription to cancel")
	}

	_, _ = audit.LogAction(ctx, db, "subscription.cancelled", "user", fmt.Sprintf("%d", userID), nil, audit.WithActor(userID))

	return &CancelSubscriptionResponse{Message: "Subscription cancelled.", Success: true}, nil
}

// ListUsersForAdmin returns the filtered user listing
func (s *Service) ListUsersForAdmin(ctx context.Context, req *AdminUsersListRequest) (*AdminUsersListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	switch req.State {
	case "", "active", "suspended", "deleted":
	default:
		return nil, errs.New(errs.ValidationFailed, "invalid state filter")
	}

	users, total, err := s.repo.ListUsers(ctx, req.State, req.Search, limit, (page-1)*limit)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to list users")
	}

	return &AdminUsersListResponse{Users: users, Total: total, Page: page, Limit: limit}, nil
}

// SetUserStateByAdmin suspends or reactivates a user account
func (s *Service) SetUserStateByAdmin(ctx context.Context, adminID, userID int64, from, to, action string) (*AdminUserStateResponse, error) {
	if adminID == userID {
		return nil, errs.New(errs.Forbidden, "cannot change the state of your own account")
	}

	changed, err := s.repo.SetUserState(ctx, userID, from, to)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to update user state")
	}
	if !changed {
		return nil, errs.New(errs.Conflict, fmt.Sprintf("user is not in the %s state", from))
	}

	_, _ = audit.LogAction(ctx, db, action, "user", fmt.Sprintf("%d", userID), nil, audit.WithActor(adminID))

	return &AdminUserStateResponse{Message: "User state updated.", Success: true}, nil
}

func toSubscriptionResponse(sub *Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		ID:        sub.ID,
		Plan:      sub.Plan,
		Status:    sub.Status,
		ExpiresAt: sub.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt: sub.CreatedAt.UTC().Format(time.RFC3339),
	}
}
