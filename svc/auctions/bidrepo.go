package auctions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"encore.dev/storage/sqldb"
)

// BidRepository handles bid data access
type BidRepository struct {
	db *sqldb.Database
}

// NewBidRepository creates a new bid repository
func NewBidRepository(db *sqldb.Database) *BidRepository {
	return &BidRepository{db: db}
}

// CreateBid inserts a new bid. Always runs inside the bid placement
// transaction so the insert and the highest-bid read are atomic.
func (r *BidRepository) CreateBid(ctx context.Context, tx *sqldb.Tx, bid *Bid) (*Bid, error) {
	query := `
		INSERT INTO bids (auction_id, bidder_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := tx.QueryRow(ctx, query,
		bid.AuctionID,
		bid.BidderID,
		bid.Amount,
	).Scan(&bid.ID, &bid.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create bid: %w", err)
	}

	return bid, nil
}

// GetBid retrieves a bid by ID
func (r *BidRepository) GetBid(ctx context.Context, bidID int64) (*Bid, error) {
	query := `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids
		WHERE id = $1`

	bid := &Bid{}
	err := r.db.QueryRow(ctx, query, bidID).Scan(
		&bid.ID,
		&bid.AuctionID,
		&bid.BidderID,
		&bid.Amount,
		&bid.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return bid, nil
}

// GetHighestBid retrieves the current highest bid for an auction, or nil if
// there are no bids. Ties on amount resolve to the earliest bid.
func (r *BidRepository) GetHighestBid(ctx context.Context, auctionID int64) (*Bid, error) {
	return scanHighestBid(r.db.QueryRow(ctx, highestBidQuery, auctionID))
}

// GetHighestBidTx is GetHighestBid inside the caller's transaction. Used
// during bid placement where the read must see the locked auction's state.
func (r *BidRepository) GetHighestBidTx(ctx context.Context, tx *sqldb.Tx, auctionID int64) (*Bid, error) {
	return scanHighestBid(tx.QueryRow(ctx, highestBidQuery, auctionID))
}

const highestBidQuery = `
	SELECT id, auction_id, bidder_id, amount, created_at
	FROM bids
	WHERE auction_id = $1
	ORDER BY amount DESC, created_at ASC
	LIMIT 1`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHighestBid(row rowScanner) (*Bid, error) {
	bid := &Bid{}
	err := row.Scan(
		&bid.ID,
		&bid.AuctionID,
		&bid.BidderID,
		&bid.Amount,
		&bid.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return bid, nil
}

// GetAuctionBids retrieves bids for an auction, highest first
func (r *BidRepository) GetAuctionBids(ctx context.Context, auctionID int64, filters *BidFilters) ([]*Bid, int, error) {
	countQuery := `SELECT COUNT(*) FROM bids WHERE auction_id = $1`
	var total int
	if err := r.db.QueryRow(ctx, countQuery, auctionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bids: %w", err)
	}

	offset := (filters.Page - 1) * filters.Limit
	query := `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, auctionID, filters.Limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []*Bid
	for rows.Next() {
		bid := &Bid{}
		err := rows.Scan(
			&bid.ID,
			&bid.AuctionID,
			&bid.BidderID,
			&bid.Amount,
			&bid.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate bids: %w", err)
	}

	return bids, total, nil
}

// GetUserBids retrieves bids placed by a specific user, newest first
func (r *BidRepository) GetUserBids(ctx context.Context, userID int64, filters *BidFilters) ([]*Bid, int, error) {
	countQuery := `SELECT COUNT(*) FROM bids WHERE bidder_id = $1`
	var total int
	if err := r.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count user bids: %w", err)
	}

	offset := (filters.Page - 1) * filters.Limit
	query := `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids
		WHERE bidder_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, filters.Limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query user bids: %w", err)
	}
	defer rows.Close()

	var bids []*Bid
	for rows.Next() {
		bid := &Bid{}
		err := rows.Scan(
			&bid.ID,
			&bid.AuctionID,
			&bid.BidderID,
			&bid.Amount,
			&bid.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user bid: %w", err)
		}
		bids = append(bids, bid)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate user bids: %w", err)
	}

	return bids, total, nil
}

// GetBidCount retrieves the total number of bids on an auction
func (r *BidRepository) GetBidCount(ctx context.Context, auctionID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM bids WHERE auction_id = $1`
	err := r.db.QueryRow(ctx, query, auctionID).Scan(&count)
	return count, err
}

// GetOutbidUsers returns distinct bidders who were outbid by the new amount,
// excluding the new highest bidder.
func (r *BidRepository) GetOutbidUsers(ctx context.Context, auctionID int64, newAmount float64, excludeUserID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT bidder_id
		FROM bids
		WHERE auction_id = $1
		  AND amount < $2
		  AND bidder_id <> $3`

	rows, err := r.db.Query(ctx, query, auctionID, newAmount, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbid users: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, uid)
	}
	return userIDs, rows.Err()
}

// CountRecentBidsByUser counts a user's bids in the last minute, for
// rate limiting.
func (r *BidRepository) CountRecentBidsByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM bids
		WHERE bidder_id = $1 AND created_at > NOW() - INTERVAL '1 minute'`
	err := r.db.QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}
