package listings

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ListingType represents how a listing is sold
type ListingType string

const (
	ListingTypeBuyNow  ListingType = "buy_now"
	ListingTypeAuction ListingType = "auction"
)

// Value implements driver.Valuer interface for database storage
func (lt ListingType) Value() (driver.Value, error) {
	return string(lt), nil
}

// Scan implements sql.Scanner interface for database retrieval
func (lt *ListingType) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	if str, ok := value.(string); ok {
		*lt = ListingType(str)
		return nil
	}
	return fmt.Errorf("cannot scan %T into ListingType", value)
}

// ListingStatus represents the lifecycle state of a listing
type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "available"
	ListingStatusReserved  ListingStatus = "reserved"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusInactive  ListingStatus = "inactive"
)

// Value implements driver.Valuer interface for database storage
func (ls ListingStatus) Value() (driver.Value, error) {
	return string(ls), nil
}

// Scan implements sql.Scanner interface for database retrieval
func (ls *ListingStatus) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	if str, ok := value.(string); ok {
		*ls = ListingStatus(str)
		return nil
	}
	return fmt.Errorf("cannot scan %T into ListingStatus", value)
}

// Listing represents one item for sale
type Listing struct {
	ID        int64         `json:"id" db:"id"`
	SellerID  int64         `json:"seller_id" db:"seller_id"`
	Title     string        `json:"title" db:"title"`
	Type      ListingType   `json:"type" db:"type"`
	Price     float64       `json:"price" db:"price"`
	Status    ListingStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// IsAvailableForPurchase returns true if a buy-now order can be opened
// against this listing.
func (l Listing) IsAvailableForPurchase() bool {
	return l.Type == ListingTypeBuyNow && l.Status == ListingStatusAvailable
}

// IsAvailableForAuction returns true if the listing can be put under auction
func (l Listing) IsAvailableForAuction() bool {
	return l.Type == ListingTypeAuction && l.Status == ListingStatusAvailable
}
