package auctions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"encore.app/pkg/audit"
	"encore.app/pkg/errs"
	"encore.app/pkg/metrics"
	"encore.app/svc/notifications"
	"encore.dev/storage/sqldb"
)

// BidService handles bid placement and bid queries
type BidService struct {
	db      *sqldb.Database
	repo    *Repository
	bidRepo *BidRepository
}

// NewBidService creates a new bid service
func NewBidService(db *sqldb.Database) *BidService {
	return &BidService{
		db:      db,
		repo:    NewRepository(db),
		bidRepo: NewBidRepository(db),
	}
}

// PlaceBid places a bid on an auction. The auction row is locked for the
// duration of the transaction so concurrent bids on the same auction
// serialize; the highest bid is read inside the same transaction and the
// admission checks run in a fixed order against that locked state.
func (s *BidService) PlaceBid(ctx context.Context, auctionID int64, bidderID int64, amount float64) (*Bid, error) {
	started := time.Now()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	auction, err := s.repo.GetAuctionForUpdate(ctx, tx, auctionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.E(ctx, errs.AucNotFound, "auction not found")
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	if err := checkAuctionOpen(auction, time.Now().UTC()); err != nil {
		return nil, rejectBid(ctx, err)
	}
	if err := checkNotSeller(auction, bidderID); err != nil {
		return nil, rejectBid(ctx, err)
	}
	if err := s.checkBidderEntitlement(ctx, bidderID); err != nil {
		return nil, rejectBid(ctx, err)
	}

	highest, err := s.bidRepo.GetHighestBidTx(ctx, tx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}

	if err := checkNotAlreadyHighest(highest, bidderID); err != nil {
		return nil, rejectBid(ctx, err)
	}
	if err := checkAmount(auction, highest, amount); err != nil {
		return nil, rejectBid(ctx, err)
	}

	bid := &Bid{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
	}
	createdBid, err := s.bidRepo.CreateBid(ctx, tx, bid)
	if err != nil {
		return nil, fmt.Errorf("failed to create bid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auctionLabel := strconv.FormatInt(auctionID, 10)
	metrics.BidsTotal.WithLabelValues(auctionLabel).Inc()
	metrics.BidLatencySeconds.WithLabelValues(auctionLabel).Observe(time.Since(started).Seconds())

	// Everything past the commit is best-effort: the bid stands regardless
	// of whether the broadcasts or notifications succeed.
	s.publishBidPlaced(ctx, auction, createdBid, highest)

	fmt.Printf("[AUDIT] BID.PLACED - Auction %d: Bid %d by User %d for %.2f\n",
		auctionID, createdBid.ID, bidderID, amount)

	return createdBid, nil
}

// rejectBid counts a domain rejection before returning it. Non-domain
// errors pass through untouched.
func rejectBid(ctx context.Context, err error) error {
	var domainErr *errs.Error
	if errors.As(err, &domainErr) {
		metrics.BidRejectionsTotal.WithLabelValues(domainErr.Code).Inc()
		if domainErr.CorrelationID == "" {
			domainErr.CorrelationID = errs.CorrelationIDFromContext(ctx)
		}
	}
	return err
}

// checkBidderEntitlement verifies the bidder holds an active, unexpired
// bidder subscription. Runs after the open/self checks so rejection order
// stays stable for callers.
func (s *BidService) checkBidderEntitlement(ctx context.Context, bidderID int64) error {
	var entitled bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND status = 'active' AND expires_at > NOW()
		)`
	if err := s.db.QueryRow(ctx, query, bidderID).Scan(&entitled); err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if !entitled {
		return errs.New(errs.BidSubscriptionRequired, "an active bidder subscription is required to place bids")
	}
	return nil
}

// publishBidPlaced fans out the post-commit side effects of an accepted
// bid: realtime broadcast, outbid notice for the displaced bidder, and
// outbid broadcasts for everyone now below the new amount.
func (s *BidService) publishBidPlaced(ctx context.Context, auction *Auction, bid *Bid, previousHighest *Bid) {
	bidsCount, err := s.bidRepo.GetBidCount(ctx, auction.ID)
	if err != nil {
		bidsCount = 0
	}

	if rt := GetRealtimeService(); rt != nil {
		if err := rt.BroadcastBidPlaced(ctx, auction.ID, &BidPlacedEventData{
			BidID:          bid.ID,
			Amount:         bid.Amount,
			BidderID:       bid.BidderID,
			CurrentHighest: bid.Amount,
			BidsCount:      bidsCount,
		}); err != nil {
			fmt.Printf("Failed to broadcast bid_placed event: %v\n", err)
		}

		outbidUsers, err := s.bidRepo.GetOutbidUsers(ctx, auction.ID, bid.Amount, bid.BidderID)
		if err == nil && len(outbidUsers) > 0 {
			if err := rt.BroadcastOutbid(ctx, auction.ID, outbidUsers, bid.Amount); err != nil {
				fmt.Printf("Failed to broadcast outbid event: %v\n", err)
			}
		}
	}

	// The seller hears about every accepted bid through their inbox.
	sellerPayload := map[string]interface{}{
		"auction_id": auction.ID,
		"listing_id": auction.ListingID,
		"amount":     fmt.Sprintf("%.2f", bid.Amount),
		"bids_count": bidsCount,
	}
	if _, err := notifications.EnqueueInternal(ctx, auction.SellerID, "new_bid", sellerPayload); err != nil {
		fmt.Printf("Failed to enqueue new_bid notification: %v\n", err)
	}

	// The displaced highest bidder also gets a queued notification so they
	// hear about it even when not connected.
	if previousHighest != nil && previousHighest.BidderID != bid.BidderID {
		payload := map[string]interface{}{
			"auction_id":      auction.ID,
			"listing_id":      auction.ListingID,
			"previous_amount": fmt.Sprintf("%.2f", previousHighest.Amount),
			"new_amount":      fmt.Sprintf("%.2f", bid.Amount),
		}
		if _, err := notifications.EnqueueInternal(ctx, previousHighest.BidderID, "outbid", payload); err != nil {
			fmt.Printf("Failed to enqueue outbid notification: %v\n", err)
		}
		if _, err := notifications.EnqueueEmail(ctx, previousHighest.BidderID, "outbid", payload); err != nil {
			fmt.Printf("Failed to enqueue outbid email: %v\n", err)
		}
	}
}

// GetAuctionBids retrieves bids for an auction with pagination
func (s *BidService) GetAuctionBids(ctx context.Context, auctionID int64, filters *BidFilters) ([]*Bid, int, error) {
	exists, err := s.repo.VerifyAuctionExists(ctx, auctionID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, errs.E(ctx, errs.AucNotFound, "auction not found")
	}

	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 || filters.Limit > 1000 {
		filters.Limit = 50
	}

	bids, total, err := s.bidRepo.GetAuctionBids(ctx, auctionID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get auction bids: %w", err)
	}

	return bids, total, nil
}

// GetUserBids retrieves the caller's bids with a winning flag per bid
func (s *BidService) GetUserBids(ctx context.Context, userID int64, filters *BidFilters) ([]*BidWithStanding, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 || filters.Limit > 1000 {
		filters.Limit = 50
	}

	bids, total, err := s.bidRepo.GetUserBids(ctx, userID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get user bids: %w", err)
	}

	// Annotate each bid with whether it is currently the highest on its
	// auction. Presentation only, never authoritative.
	highestByAuction := make(map[int64]*Bid)
	result := make([]*BidWithStanding, 0, len(bids))
	for _, b := range bids {
		highest, ok := highestByAuction[b.AuctionID]
		if !ok {
			highest, err = s.bidRepo.GetHighestBid(ctx, b.AuctionID)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to get highest bid: %w", err)
			}
			highestByAuction[b.AuctionID] = highest
		}
		result = append(result, &BidWithStanding{
			Bid:       *b,
			IsWinning: highest != nil && highest.ID == b.ID,
		})
	}

	return result, total, nil
}

// RemoveBid removes a bid (admin moderation). The removal is audited and
// the affected auction's derived price is re-broadcast.
func (s *BidService) RemoveBid(ctx context.Context, bidID int64, reason string, removedBy int64) error {
	bid, err := s.bidRepo.GetBid(ctx, bidID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.E(ctx, errs.BidNotFound, "bid not found")
		}
		return fmt.Errorf("failed to get bid: %w", err)
	}

	auction, err := s.repo.GetAuction(ctx, bid.AuctionID)
	if err != nil {
		return fmt.Errorf("failed to get auction: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(ctx, `DELETE FROM bids WHERE id = $1`, bidID); err != nil {
		return fmt.Errorf("failed to remove bid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if rt := GetRealtimeService(); rt != nil {
		newHighest, err := s.bidRepo.GetHighestBid(ctx, auction.ID)
		currentPrice := auction.StartingBid
		if err == nil && newHighest != nil {
			currentPrice = newHighest.Amount
		}
		if err := rt.BroadcastBidRemoved(ctx, auction.ID, bidID, currentPrice); err != nil {
			fmt.Printf("Failed to broadcast bid_removed event: %v\n", err)
		}
	}

	auditEntry := audit.Entry{
		EntityType: "bid",
		EntityID:   fmt.Sprintf("%d", bidID),
		Action:     "removed",
		Reason:     &reason,
		Meta: map[string]interface{}{
			"auction_id": auction.ID,
			"bid_amount": bid.Amount,
			"bidder_id":  bid.BidderID,
			"removed_by": removedBy,
		},
	}
	if _, err := audit.Log(ctx, s.db, auditEntry); err != nil {
		fmt.Printf("Failed to log audit entry for bid removal: %v\n", err)
	}

	payload := map[string]interface{}{
		"auction_id": auction.ID,
		"listing_id": auction.ListingID,
		"bid_amount": fmt.Sprintf("%.2f", bid.Amount),
		"reason":     reason,
	}
	if _, err := notifications.EnqueueInternal(ctx, bid.BidderID, "bid_removed", payload); err != nil {
		fmt.Printf("Failed to enqueue bid_removed notification: %v\n", err)
	}

	return nil
}
