package auctions

import "time"

// CreateAuctionDTO is the request body for auction creation
type CreateAuctionDTO struct {
	ListingID    int64     `json:"listing_id"`
	StartingBid  float64   `json:"starting_bid"`
	BidIncrement *float64  `json:"bid_increment,omitempty"`
	ReservePrice *float64  `json:"reserve_price,omitempty"`
	EndAt        time.Time `json:"end_at"`
}

// PlaceBidDTO is the request body for bid placement
type PlaceBidDTO struct {
	Amount float64 `json:"amount"`
}

// CancelAuctionDTO is the request body for admin auction cancellation
type CancelAuctionDTO struct {
	Reason string `json:"reason"`
}

// RemoveBidDTO is the request body for admin bid removal
type RemoveBidDTO struct {
	Reason string `json:"reason"`
}

// AuctionListFiltersDTO carries list query parameters
type AuctionListFiltersDTO struct {
	Status     string `query:"status" encore:"optional"`
	EndingSoon bool   `query:"ending_soon" encore:"optional"`
	Page       int    `query:"page" encore:"optional"`
	Limit      int    `query:"limit" encore:"optional"`
}

// AuctionResponse is the wire shape of an auction
type AuctionResponse struct {
	ID             int64     `json:"id"`
	ListingID      int64     `json:"listing_id"`
	SellerID       int64     `json:"seller_id"`
	StartingBid    float64   `json:"starting_bid"`
	BidIncrement   float64   `json:"bid_increment"`
	HasReserve     bool      `json:"has_reserve"`
	EndAt          time.Time `json:"end_at"`
	Status         string    `json:"status"`
	CurrentHighest *float64  `json:"current_highest,omitempty"`
	BidsCount      int       `json:"bids_count"`
	TimeRemaining  *int64    `json:"time_remaining_seconds,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// BidResponse is the wire shape of a bid
type BidResponse struct {
	ID        int64     `json:"id"`
	AuctionID int64     `json:"auction_id"`
	BidderID  int64     `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// AuctionListResponse is the paginated auction list
type AuctionListResponse struct {
	Auctions []*AuctionResponse `json:"auctions"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	Limit    int                `json:"limit"`
}

// AuctionDetailResponse is an auction with its bid history
type AuctionDetailResponse struct {
	Auction  *AuctionResponse `json:"auction"`
	Bids     []*BidResponse   `json:"bids"`
	BidCount int              `json:"bid_count"`
}

// BidListResponse is a paginated bid list
type BidListResponse struct {
	Bids  []*BidResponse `json:"bids"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// UserBidListResponse is the caller's bids with winning flags
type UserBidListResponse struct {
	Bids  []*UserBidResponse `json:"bids"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// UserBidResponse is one of the caller's bids with its standing
type UserBidResponse struct {
	BidResponse
	IsWinning bool `json:"is_winning"`
}

// ProcessAuctionEndResponse is the result of closing one auction
type ProcessAuctionEndResponse struct {
	AuctionID  int64        `json:"auction_id"`
	Outcome    string       `json:"outcome"`
	WinnerBid  *BidResponse `json:"winner_bid,omitempty"`
	OrderID    *int64       `json:"order_id,omitempty"`
	FinalPrice float64      `json:"final_price"`
	EndedAt    time.Time    `json:"ended_at"`
}

// ToAuctionResponse converts an auction to its wire shape. Reserve prices
// are never exposed, only whether one exists.
func ToAuctionResponse(a *Auction) *AuctionResponse {
	return &AuctionResponse{
		ID:             a.ID,
		ListingID:      a.ListingID,
		SellerID:       a.SellerID,
		StartingBid:    a.StartingBid,
		BidIncrement:   a.BidIncrement,
		HasReserve:     a.ReservePrice != nil,
		EndAt:          a.EndAt,
		Status:         string(a.Status),
		CurrentHighest: a.CurrentHighest,
		BidsCount:      a.BidsCount,
		TimeRemaining:  a.TimeRemaining,
		CreatedAt:      a.CreatedAt,
	}
}

// ToBidResponse converts a bid to its wire shape
func ToBidResponse(b *Bid) *BidResponse {
	return &BidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt,
	}
}

// ToAuctionFilters converts list query params to internal filters
func ToAuctionFilters(dto *AuctionListFiltersDTO) *AuctionFilters {
	filters := &AuctionFilters{
		EndingSoon: dto.EndingSoon,
		Page:       dto.Page,
		Limit:      dto.Limit,
	}
	if dto.Status != "" {
		status := AuctionStatus(dto.Status)
		filters.Status = &status
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	return filters
}
