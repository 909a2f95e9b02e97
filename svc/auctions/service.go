package auctions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"encore.app/pkg/audit"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/pkg/fees"
	"encore.app/svc/notifications"
	"encore.dev/storage/sqldb"
)

// Service coordinates auction lifecycle: creation, cancellation and the
// background close of due auctions.
type Service struct {
	db               *sqldb.Database
	repo             *Repository
	bidRepo          *BidRepository
	bidService       *BidService
	rateLimitService *RateLimitService
}

// NewService creates the auction service and registers it for API handlers
func NewService(db *sqldb.Database) *Service {
	s := &Service{
		db:               db,
		repo:             NewRepository(db),
		bidRepo:          NewBidRepository(db),
		bidService:       NewBidService(db),
		rateLimitService: NewRateLimitService(db),
	}
	SetService(s)
	return s
}

// CreateAuction creates an auction for an available auction-type listing.
// The listing is moved to reserved so it cannot be bought outright while
// the auction runs.
func (s *Service) CreateAuction(ctx context.Context, req *CreateAuctionRequest, sellerID int64) (*Auction, error) {
	now := time.Now().UTC()
	if err := validateAuctionTimes(req.EndAt, now); err != nil {
		return nil, err
	}
	if req.StartingBid < 0 {
		return nil, errs.New(errs.InvalidArgument, "starting bid must not be negative")
	}
	if req.ReservePrice != nil && *req.ReservePrice < req.StartingBid {
		return nil, errs.New(errs.InvalidArgument, "reserve price must be at least the starting bid")
	}

	increment := config.GetSettings().AuctionsDefaultBidIncrement
	if req.BidIncrement != nil {
		if *req.BidIncrement < 0 {
			return nil, errs.New(errs.InvalidArgument, "bid increment must not be negative")
		}
		increment = *req.BidIncrement
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the listing and validate it belongs to the seller and is an
	// available auction listing.
	var listingSellerID int64
	var listingType, listingStatus string
	err = tx.QueryRow(ctx, `
		SELECT seller_id, type, status FROM listings WHERE id = $1 FOR UPDATE`,
		req.ListingID,
	).Scan(&listingSellerID, &listingType, &listingStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.E(ctx, errs.LstNotFound, "listing not found")
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if listingSellerID != sellerID {
		return nil, errs.E(ctx, errs.Forbidden, "you can only create auctions for your own listings")
	}
	if listingType != "auction" {
		return nil, errs.E(ctx, errs.InvalidArgument, "listing is not an auction listing")
	}
	if listingStatus != "available" {
		return nil, errs.E(ctx, errs.OrdListingUnavailable, "listing is not available for auction")
	}

	auction := &Auction{
		ListingID:    req.ListingID,
		SellerID:     sellerID,
		StartingBid:  req.StartingBid,
		BidIncrement: increment,
		ReservePrice: req.ReservePrice,
		EndAt:        req.EndAt.UTC(),
	}
	if _, err := s.repo.CreateAuction(ctx, tx, auction); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE listings SET status = 'reserved', updated_at = NOW() WHERE id = $1`,
		req.ListingID,
	); err != nil {
		return nil, fmt.Errorf("failed to reserve listing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return auction, nil
}

// CancelAuction cancels an active auction (admin only). Bidders who had
// placed bids are notified; the listing goes back to available.
func (s *Service) CancelAuction(ctx context.Context, auctionID int64, reason string, cancelledBy int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	auction, err := s.repo.GetAuctionForUpdate(ctx, tx, auctionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.E(ctx, errs.AucNotFound, "auction not found")
		}
		return fmt.Errorf("failed to get auction: %w", err)
	}

	if auction.Status != AuctionStatusActive {
		return errs.E(ctx, errs.BidAuctionClosed, "only active auctions can be cancelled")
	}

	if err := s.repo.UpdateAuctionStatus(ctx, tx, auctionID, AuctionStatusCancelled); err != nil {
		return fmt.Errorf("failed to update auction status: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE listings SET status = 'available', updated_at = NOW() WHERE id = $1`,
		auction.ListingID,
	); err != nil {
		return fmt.Errorf("failed to release listing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	auditEntry := audit.Entry{
		EntityType: "auction",
		EntityID:   fmt.Sprintf("%d", auctionID),
		Action:     "cancelled",
		Reason:     &reason,
		Meta: map[string]interface{}{
			"listing_id":   auction.ListingID,
			"cancelled_by": cancelledBy,
		},
	}
	if _, err := audit.Log(ctx, s.db, auditEntry); err != nil {
		fmt.Printf("Failed to log audit entry for auction cancel: %v\n", err)
	}

	// Tell everyone who bid that the auction is gone.
	bidders, err := s.bidRepo.GetOutbidUsers(ctx, auctionID, float64(1<<62), 0)
	if err == nil {
		payload := map[string]interface{}{
			"auction_id": auctionID,
			"listing_id": auction.ListingID,
			"reason":     reason,
		}
		for _, uid := range bidders {
			if _, err := notifications.EnqueueInternal(ctx, uid, "auction_cancelled", payload); err != nil {
				fmt.Printf("Failed to enqueue auction_cancelled notification: %v\n", err)
			}
		}
	}

	if rt := GetRealtimeService(); rt != nil {
		if err := rt.BroadcastCancelled(ctx, auctionID, reason); err != nil {
			fmt.Printf("Failed to broadcast cancelled event: %v\n", err)
		}
	}

	return nil
}

// EndDueAuctions closes every active auction whose end time has passed.
// Called from the scheduler; safe to run concurrently because each auction
// row is locked while its outcome is decided.
func (s *Service) EndDueAuctions(ctx context.Context) ([]*AuctionEndResult, error) {
	ids, err := s.repo.ListDueAuctionIDs(ctx, 100)
	if err != nil {
		return nil, err
	}

	var results []*AuctionEndResult
	for _, id := range ids {
		result, err := s.EndAuction(ctx, id)
		if err != nil {
			fmt.Printf("Failed to end auction %d: %v\n", id, err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// EndAuction settles a single due auction: decides the outcome, marks the
// auction ended and, when there is a winner, creates the winner's order in
// the same transaction with the fee configuration snapshotted at creation.
func (s *Service) EndAuction(ctx context.Context, auctionID int64) (*AuctionEndResult, error) {
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

	if auction.Status != AuctionStatusActive {
		return nil, errs.E(ctx, errs.BidAuctionClosed, "auction is not active")
	}

	highest, err := s.bidRepo.GetHighestBidTx(ctx, tx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}

	result := &AuctionEndResult{
		AuctionID: auctionID,
		EndedAt:   time.Now().UTC(),
	}

	switch {
	case highest == nil:
		result.Outcome = AuctionOutcomeNoBids
	case auction.ReservePrice != nil && highest.Amount < *auction.ReservePrice:
		result.Outcome = AuctionOutcomeReserveNotMet
	default:
		result.Outcome = AuctionOutcomeWinner
		result.WinnerBid = highest
		result.FinalPrice = highest.Amount
	}

	if err := s.repo.UpdateAuctionStatus(ctx, tx, auctionID, AuctionStatusEnded); err != nil {
		return nil, fmt.Errorf("failed to update auction status: %w", err)
	}

	if result.Outcome == AuctionOutcomeWinner {
		orderID, err := s.createWinnerOrder(ctx, tx, auction, highest)
		if err != nil {
			return nil, fmt.Errorf("failed to create winner order: %w", err)
		}
		result.OrderID = &orderID
	} else {
		// No sale: the listing goes back on the market.
		if _, err := tx.Exec(ctx,
			`UPDATE listings SET status = 'available', updated_at = NOW() WHERE id = $1`,
			auction.ListingID,
		); err != nil {
			return nil, fmt.Errorf("failed to release listing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publishAuctionEnded(ctx, auction, result)

	return result, nil
}

// createWinnerOrder inserts the winner's order inside the auction-end
// transaction. The fee configuration current at this moment is computed
// once and persisted on the order; later config changes never touch it.
func (s *Service) createWinnerOrder(ctx context.Context, tx *sqldb.Tx, auction *Auction, winner *Bid) (int64, error) {
	cfg := config.GetSettings().FeeConfig()
	settlement, err := fees.ComputeSettlement(winner.Amount, cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to compute settlement: %w", err)
	}

	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal fee snapshot: %w", err)
	}

	var orderID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (listing_id, buyer_id, seller_id, gross_amount,
			buyer_fee, seller_commission, payout_amount, fee_config_snapshot, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'created')
		RETURNING id`,
		auction.ListingID,
		winner.BidderID,
		auction.SellerID,
		winner.Amount,
		settlement.BuyerFee,
		settlement.SellerCommission,
		settlement.PayoutAmount,
		snapshot,
	).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	return orderID, nil
}

// publishAuctionEnded fans out the best-effort side effects of an auction
// close: realtime broadcast, audit entry, winner and seller notifications.
func (s *Service) publishAuctionEnded(ctx context.Context, auction *Auction, result *AuctionEndResult) {
	bidsCount, err := s.bidRepo.GetBidCount(ctx, auction.ID)
	if err != nil {
		bidsCount = 0
	}

	if rt := GetRealtimeService(); rt != nil {
		data := &EndedEventData{
			Outcome:    result.Outcome,
			FinalPrice: result.FinalPrice,
			BidsCount:  bidsCount,
		}
		if result.WinnerBid != nil {
			data.WinnerBidID = &result.WinnerBid.ID
		}
		if err := rt.BroadcastEnded(ctx, auction.ID, data); err != nil {
			fmt.Printf("Failed to broadcast ended event: %v\n", err)
		}
	}

	auditEntry := audit.Entry{
		EntityType: "auction",
		EntityID:   fmt.Sprintf("%d", auction.ID),
		Action:     "ended",
		Meta: map[string]interface{}{
			"outcome":    result.Outcome,
			"listing_id": auction.ListingID,
			"bids_count": bidsCount,
		},
	}
	if result.WinnerBid != nil {
		auditEntry.Meta["winner_user_id"] = result.WinnerBid.BidderID
		auditEntry.Meta["winning_amount"] = result.WinnerBid.Amount
	}
	if result.OrderID != nil {
		auditEntry.Meta["order_id"] = *result.OrderID
	}
	if _, err := audit.Log(ctx, s.db, auditEntry); err != nil {
		fmt.Printf("Failed to log audit entry for auction end: %v\n", err)
	}

	payload := map[string]interface{}{
		"auction_id": auction.ID,
		"listing_id": auction.ListingID,
		"outcome":    string(result.Outcome),
	}
	if result.WinnerBid != nil {
		payload["amount"] = fmt.Sprintf("%.2f", result.WinnerBid.Amount)
		if result.OrderID != nil {
			payload["order_id"] = *result.OrderID
		}
		if _, err := notifications.EnqueueInternal(ctx, result.WinnerBid.BidderID, "auction_won", payload); err != nil {
			fmt.Printf("Failed to enqueue auction_won notification: %v\n", err)
		}
		if _, err := notifications.EnqueueEmail(ctx, result.WinnerBid.BidderID, "auction_won", payload); err != nil {
			fmt.Printf("Failed to enqueue auction_won email: %v\n", err)
		}
	}
	if _, err := notifications.EnqueueInternal(ctx, auction.SellerID, "auction_ended", payload); err != nil {
		fmt.Printf("Failed to enqueue auction_ended notification: %v\n", err)
	}
}
