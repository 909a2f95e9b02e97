package auctions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// Repository handles auction data access
type Repository struct {
	db *sqldb.Database
}

// NewRepository creates a new auction repository
func NewRepository(db *sqldb.Database) *Repository {
	return &Repository{db: db}
}

// CreateAuction inserts a new auction row
func (r *Repository) CreateAuction(ctx context.Context, tx *sqldb.Tx, a *Auction) (*Auction, error) {
	query := `
		INSERT INTO auctions (listing_id, seller_id, starting_bid, bid_increment, reserve_price, end_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'active')
		RETURNING id, status, created_at, updated_at`

	err := tx.QueryRow(ctx, query,
		a.ListingID,
		a.SellerID,
		a.StartingBid,
		a.BidIncrement,
		a.ReservePrice,
		a.EndAt,
	).Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	return a, nil
}

// GetAuction retrieves an auction by ID
func (r *Repository) GetAuction(ctx context.Context, auctionID int64) (*Auction, error) {
	query := `
		SELECT id, listing_id, seller_id, starting_bid, bid_increment, reserve_price,
			   end_at, status, created_at, updated_at
		FROM auctions
		WHERE id = $1`

	a := &Auction{}
	err := r.db.QueryRow(ctx, query, auctionID).Scan(
		&a.ID,
		&a.ListingID,
		&a.SellerID,
		&a.StartingBid,
		&a.BidIncrement,
		&a.ReservePrice,
		&a.EndAt,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// GetAuctionForUpdate retrieves an auction by ID with a row lock inside tx.
func (r *Repository) GetAuctionForUpdate(ctx context.Context, tx *sqldb.Tx, auctionID int64) (*Auction, error) {
	query := `
		SELECT id, listing_id, seller_id, starting_bid, bid_increment, reserve_price,
			   end_at, status, created_at, updated_at
		FROM auctions
		WHERE id = $1
		FOR UPDATE`

	a := &Auction{}
	err := tx.QueryRow(ctx, query, auctionID).Scan(
		&a.ID,
		&a.ListingID,
		&a.SellerID,
		&a.StartingBid,
		&a.BidIncrement,
		&a.ReservePrice,
		&a.EndAt,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// GetAuctionWithDetails retrieves an auction with derived bid data. The
// current highest amount and bid count are always computed from the bids
// table, never read from a cached column.
func (r *Repository) GetAuctionWithDetails(ctx context.Context, auctionID int64) (*Auction, error) {
	query := `
		SELECT a.id, a.listing_id, a.seller_id, a.starting_bid, a.bid_increment, a.reserve_price,
			   a.end_at, a.status, a.created_at, a.updated_at,
			   MAX(b.amount) AS current_highest,
			   COUNT(b.id) AS bids_count
		FROM auctions a
		LEFT JOIN bids b ON b.auction_id = a.id
		WHERE a.id = $1
		GROUP BY a.id`

	a := &Auction{}
	var currentHighest sql.NullFloat64
	err := r.db.QueryRow(ctx, query, auctionID).Scan(
		&a.ID,
		&a.ListingID,
		&a.SellerID,
		&a.StartingBid,
		&a.BidIncrement,
		&a.ReservePrice,
		&a.EndAt,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&currentHighest,
		&a.BidsCount,
	)
	if err != nil {
		return nil, err
	}

	if currentHighest.Valid {
		a.CurrentHighest = &currentHighest.Float64
	}
	if a.Status == AuctionStatusActive {
		remaining := int64(time.Until(a.EndAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		a.TimeRemaining = &remaining
	}

	return a, nil
}

// ListAuctions lists auctions matching the filters with derived bid data
func (r *Repository) ListAuctions(ctx context.Context, filters *AuctionFilters) ([]*Auction, int, error) {
	where := "TRUE"
	args := []interface{}{}
	if filters.Status != nil {
		args = append(args, *filters.Status)
		where = fmt.Sprintf("a.status = $%d", len(args))
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM auctions a WHERE %s`, where)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count auctions: %w", err)
	}

	orderBy := "a.created_at DESC"
	if filters.EndingSoon {
		orderBy = "a.end_at ASC"
	}

	offset := (filters.Page - 1) * filters.Limit
	args = append(args, filters.Limit, offset)
	query := fmt.Sprintf(`
		SELECT a.id, a.listing_id, a.seller_id, a.starting_bid, a.bid_increment, a.reserve_price,
			   a.end_at, a.status, a.created_at, a.updated_at,
			   MAX(b.amount) AS current_highest,
			   COUNT(b.id) AS bids_count
		FROM auctions a
		LEFT JOIN bids b ON b.auction_id = a.id
		WHERE %s
		GROUP BY a.id
		ORDER BY %s
		LIMIT $%d OFFSET $%d`, where, orderBy, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*Auction
	now := time.Now().UTC()
	for rows.Next() {
		a := &Auction{}
		var currentHighest sql.NullFloat64
		err := rows.Scan(
			&a.ID,
			&a.ListingID,
			&a.SellerID,
			&a.StartingBid,
			&a.BidIncrement,
			&a.ReservePrice,
			&a.EndAt,
			&a.Status,
			&a.CreatedAt,
			&a.UpdatedAt,
			&currentHighest,
			&a.BidsCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan auction: %w", err)
		}
		if currentHighest.Valid {
			a.CurrentHighest = &currentHighest.Float64
		}
		if a.Status == AuctionStatusActive {
			remaining := int64(a.EndAt.Sub(now).Seconds())
			if remaining < 0 {
				remaining = 0
			}
			a.TimeRemaining = &remaining
		}
		auctions = append(auctions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate auctions: %w", err)
	}

	return auctions, total, nil
}

// HasActiveAuctionForListing reports whether the listing already has an
// active auction.
func (r *Repository) HasActiveAuctionForListing(ctx context.Context, listingID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM auctions WHERE listing_id = $1 AND status = 'active')`
	err := r.db.QueryRow(ctx, query, listingID).Scan(&exists)
	return exists, err
}

// UpdateAuctionStatus updates an auction's status inside a transaction
func (r *Repository) UpdateAuctionStatus(ctx context.Context, tx *sqldb.Tx, auctionID int64, status AuctionStatus) error {
	query := `UPDATE auctions SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := tx.Exec(ctx, query, status, auctionID)
	return err
}

// ListDueAuctionIDs returns IDs of active auctions whose end time has passed.
// Used by the background closer; individual rows are re-locked per auction.
func (r *Repository) ListDueAuctionIDs(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT id
		FROM auctions
		WHERE status = 'active' AND end_at <= NOW()
		ORDER BY end_at ASC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due auctions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// VerifyAuctionExists checks an auction exists without loading it
func (r *Repository) VerifyAuctionExists(ctx context.Context, auctionID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM auctions WHERE id = $1)`
	err := r.db.QueryRow(ctx, query, auctionID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check auction existence: %w", err)
	}
	return exists, nil
}
