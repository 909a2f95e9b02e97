package auctions

import (
	"time"
)

// AuctionStatus represents the status of an auction
type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Auction represents a timed auction attached to a listing
type Auction struct {
	ID           int64         `json:"id"`
	ListingID    int64         `json:"listing_id"`
	SellerID     int64         `json:"seller_id"`
	StartingBid  float64       `json:"starting_bid"`
	BidIncrement float64       `json:"bid_increment"`
	ReservePrice *float64      `json:"reserve_price,omitempty"`
	EndAt        time.Time     `json:"end_at"`
	Status       AuctionStatus `json:"status"`
	// Derived fields for detail/list responses
	CurrentHighest *float64  `json:"current_highest,omitempty"`
	BidsCount      int       `json:"bids_count"`
	TimeRemaining  *int64    `json:"time_remaining_seconds,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Bid represents one accepted bid against an auction. Bids are append-only:
// a higher bid supersedes but never mutates or deletes prior rows.
type Bid struct {
	ID        int64     `json:"id"`
	AuctionID int64     `json:"auction_id"`
	BidderID  int64     `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// IsWinning is a derived presentation flag, never authoritative state.
type BidWithStanding struct {
	Bid
	IsWinning bool `json:"is_winning"`
}

// CreateAuctionRequest represents the request to create a new auction
type CreateAuctionRequest struct {
	ListingID    int64     `json:"listing_id"`
	StartingBid  float64   `json:"starting_bid"`
	BidIncrement *float64  `json:"bid_increment,omitempty"`
	ReservePrice *float64  `json:"reserve_price,omitempty"`
	EndAt        time.Time `json:"end_at"`
}

// PlaceBidRequest represents the request to place a bid
type PlaceBidRequest struct {
	Amount float64 `json:"amount"`
}

// CancelAuctionRequest represents the request to cancel an auction (admin only)
type CancelAuctionRequest struct {
	Reason string `json:"reason"`
}

// RemoveBidRequest represents the request to remove a bid (admin moderation)
type RemoveBidRequest struct {
	Reason string `json:"reason"`
}

// AuctionFilters represents filters for auction queries
type AuctionFilters struct {
	Status     *AuctionStatus `json:"status,omitempty"`
	EndingSoon bool           `json:"ending_soon,omitempty"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
}

// BidFilters represents filters for bid queries
type BidFilters struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// AuctionOutcome represents the outcome of an ended auction
type AuctionOutcome string

const (
	AuctionOutcomeWinner        AuctionOutcome = "winner"
	AuctionOutcomeNoBids        AuctionOutcome = "no_bids"
	AuctionOutcomeReserveNotMet AuctionOutcome = "reserve_not_met"
)

// AuctionEndResult represents the result of processing an auction end
type AuctionEndResult struct {
	AuctionID  int64          `json:"auction_id"`
	Outcome    AuctionOutcome `json:"outcome"`
	WinnerBid  *Bid           `json:"winner_bid,omitempty"`
	OrderID    *int64         `json:"order_id,omitempty"`
	FinalPrice float64        `json:"final_price"`
	EndedAt    time.Time      `json:"ended_at"`
}

// BidPlacedEventData represents data for the bid_placed realtime event
type BidPlacedEventData struct {
	BidID          int64   `json:"bid_id"`
	Amount         float64 `json:"amount"`
	BidderID       int64   `json:"bidder_id"`
	CurrentHighest float64 `json:"current_highest"`
	BidsCount      int     `json:"bids_count"`
}

// OutbidEventData represents data for the outbid realtime event
type OutbidEventData struct {
	OutbidUserID   int64   `json:"outbid_user_id"`
	PreviousAmount float64 `json:"previous_amount"`
	NewAmount      float64 `json:"new_amount"`
}

// EndedEventData represents data for the ended realtime event
type EndedEventData struct {
	Outcome     AuctionOutcome `json:"outcome"`
	WinnerBidID *int64         `json:"winner_bid_id,omitempty"`
	FinalPrice  float64        `json:"final_price"`
	BidsCount   int            `json:"bids_count"`
}
