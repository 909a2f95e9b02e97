package listings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"encore.dev/storage/sqldb"
)

// Repository handles database operations for listings
type Repository struct {
	db *sqldb.Database
}

// NewRepository creates a new listings repository
func NewRepository(db *sqldb.Database) *Repository {
	return &Repository{db: db}
}

// ListingsFilter represents filters for listing queries
type ListingsFilter struct {
	Type     *ListingType
	Status   *ListingStatus
	SellerID *int64
	Search   *string
	PriceMin *float64
	PriceMax *float64
}

// ListingsSort represents sorting options for listings
type ListingsSort struct {
	Field     string // "created_at", "price", "title"
	Direction string // "ASC", "DESC"
}

const listingColumns = `id, seller_id, title, type::text, price, status::text, created_at, updated_at`

func scanListing(row interface{ Scan(...interface{}) error }, l *Listing) error {
	return row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Type, &l.Price, &l.Status, &l.CreatedAt, &l.UpdatedAt)
}

// GetListings retrieves listings with optional filters, sorting, and pagination
func (r *Repository) GetListings(ctx context.Context, filter ListingsFilter, sort ListingsSort, offset, limit int) ([]Listing, int64, error) {
	whereClauses := []string{}
	args := []interface{}{}
	argCount := 0

	if filter.Type != nil {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("type = $%d", argCount))
		args = append(args, *filter.Type)
	}
	if filter.Status != nil {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filter.Status)
	}
	if filter.SellerID != nil {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("seller_id = $%d", argCount))
		args = append(args, *filter.SellerID)
	}
	if filter.Search != nil && *filter.Search != "" {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("title ILIKE $%d", argCount))
		args = append(args, "%"+*filter.Search+"%")
	}
	if filter.PriceMin != nil {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("price >= $%d", argCount))
		args = append(args, *filter.PriceMin)
	}
	if filter.PriceMax != nil {
		argCount++
		whereClauses = append(whereClauses, fmt.Sprintf("price <= $%d", argCount))
		args = append(args, *filter.PriceMax)
	}

	whereClause := ""
	if len(whereClauses) > 0 {
		whereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM listings %s`, whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	orderBy := fmt.Sprintf("ORDER BY %s %s", sort.Field, sort.Direction)
	argCount++
	args = append(args, limit)
	argCount++
	args = append(args, offset)

	query := fmt.Sprintf(`
		SELECT %s FROM listings
		%s
		%s
		LIMIT $%d OFFSET $%d
	`, listingColumns, whereClause, orderBy, argCount-1, argCount)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var result []Listing
	for rows.Next() {
		var l Listing
		if err := scanListing(rows, &l); err != nil {
			return nil, 0, fmt.Errorf("failed to scan listing: %w", err)
		}
		result = append(result, l)
	}
	return result, totalCount, rows.Err()
}

// GetListing retrieves a single listing by ID
func (r *Repository) GetListing(ctx context.Context, id int64) (*Listing, error) {
	var l Listing
	err := scanListing(r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM listings WHERE id = $1`, listingColumns), id), &l)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &l, nil
}

// GetListingForUpdate locks a listing row within the given transaction
func (r *Repository) GetListingForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*Listing, error) {
	var l Listing
	err := scanListing(tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM listings WHERE id = $1 FOR UPDATE`, listingColumns), id), &l)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock listing: %w", err)
	}
	return &l, nil
}

// CreateListing inserts a new listing and returns it
func (r *Repository) CreateListing(ctx context.Context, sellerID int64, title string, listingType ListingType, price float64) (*Listing, error) {
	var l Listing
	err := scanListing(r.db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO listings (seller_id, title, type, price, status)
		VALUES ($1, $2, $3, $4, 'available')
		RETURNING %s
	`, listingColumns), sellerID, title, listingType, price), &l)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}
	return &l, nil
}

// UpdateListing updates mutable fields on an available listing
func (r *Repository) UpdateListing(ctx context.Context, id int64, title string, price float64) (*Listing, error) {
	var l Listing
	err := scanListing(r.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE listings
		SET title = $1, price = $2, updated_at = (CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id = $3
		RETURNING %s
	`, listingColumns), title, price, id), &l)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	return &l, nil
}

// SetStatus moves a listing from one status to another. Returns false when
// the listing was not in the expected status.
func (r *Repository) SetStatus(ctx context.Context, id int64, from, to ListingStatus) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE listings
		SET status = $1, updated_at = (CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update listing status: %w", err)
	}
	return res.RowsAffected() > 0, nil
}
