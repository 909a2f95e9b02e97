package auctions

import (
	"context"
	"fmt"
	"time"

	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.dev/storage/sqldb"
)

// RateLimitService throttles bid placement per user. The count is taken
// from the bids table so the limit is accurate across instances.
type RateLimitService struct {
	db      *sqldb.Database
	bidRepo *BidRepository
}

// RateLimitStatus reports a user's remaining bid allowance
type RateLimitStatus struct {
	UserID        int64     `json:"user_id"`
	BidsPerMinute int       `json:"bids_per_minute"`
	CurrentCount  int       `json:"current_count"`
	Remaining     int       `json:"remaining"`
	ResetTime     time.Time `json:"reset_time"`
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db *sqldb.Database) *RateLimitService {
	return &RateLimitService{
		db:      db,
		bidRepo: NewBidRepository(db),
	}
}

// CheckBidRateLimit rejects the bid when the user has hit the per-minute cap
func (s *RateLimitService) CheckBidRateLimit(ctx context.Context, userID int64) error {
	limit := config.GetSettings().BidsRateLimitPerMinute
	if limit <= 0 {
		return nil
	}

	count, err := s.bidRepo.CountRecentBidsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count >= limit {
		return errs.New(errs.TooManyRequests, "you are bidding too quickly; please wait a moment and try again")
	}
	return nil
}

// GetRateLimitStatus returns the user's current bid allowance
func (s *RateLimitService) GetRateLimitStatus(ctx context.Context, userID int64) (*RateLimitStatus, error) {
	limit := config.GetSettings().BidsRateLimitPerMinute

	count, err := s.bidRepo.CountRecentBidsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bid count: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitStatus{
		UserID:        userID,
		BidsPerMinute: limit,
		CurrentCount:  count,
		Remaining:     remaining,
		ResetTime:     time.Now().Add(time.Minute),
	}, nil
}
