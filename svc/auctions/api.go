package auctions

import (
	"context"
	"strconv"

	"encore.app/pkg/errs"
	authsvc "encore.app/svc/auth"
	"encore.dev/beta/auth"
)

// Service instance for API endpoints
var auctionService *Service

// GetService returns the auction service instance
func GetService() *Service {
	if auctionService == nil {
		panic("auction service not initialized")
	}
	return auctionService
}

// SetService sets the auction service instance (for initialization)
func SetService(service *Service) {
	auctionService = service
}

// currentUserID returns the authenticated caller's numeric user ID
func currentUserID() (int64, error) {
	uid, ok := auth.UserID()
	if !ok {
		return 0, errs.New(errs.Unauthenticated, "sign in required")
	}
	id, err := strconv.ParseInt(string(uid), 10, 64)
	if err != nil {
		return 0, errs.New(errs.Internal, "invalid user ID")
	}
	return id, nil
}

// checkAdminAuth checks if the current user is an admin
func checkAdminAuth() error {
	if _, ok := auth.UserID(); !ok {
		return errs.New(errs.Unauthenticated, "sign in required")
	}
	if d := auth.Data(); d != nil {
		if v, ok := d.(*authsvc.AuthData); ok && v.Role == "admin" {
			return nil
		}
	}
	return errs.New(errs.Forbidden, "admin privileges required")
}

// CreateAuction creates an auction for one of the caller's listings
//
//encore:api auth method=POST path=/auctions
func CreateAuction(ctx context.Context, req *CreateAuctionDTO) (*AuctionResponse, error) {
	sellerID, err := currentUserID()
	if err != nil {
		return nil, err
	}

	service := GetService()

	if active, err := service.repo.HasActiveAuctionForListing(ctx, req.ListingID); err == nil && active {
		return nil, errs.E(ctx, errs.Conflict, "an active auction already exists for this listing")
	}

	auction, err := service.CreateAuction(ctx, &CreateAuctionRequest{
		ListingID:    req.ListingID,
		StartingBid:  req.StartingBid,
		BidIncrement: req.BidIncrement,
		ReservePrice: req.ReservePrice,
		EndAt:        req.EndAt,
	}, sellerID)
	if err != nil {
		return nil, err
	}

	return ToAuctionResponse(auction), nil
}

// ListAuctions lists auctions with filtering and pagination
//
//encore:api public method=GET path=/auctions
func ListAuctions(ctx context.Context, req *AuctionListFiltersDTO) (*AuctionListResponse, error) {
	service := GetService()
	filters := ToAuctionFilters(req)

	auctions, total, err := service.repo.ListAuctions(ctx, filters)
	if err != nil {
		return nil, err
	}

	responses := make([]*AuctionResponse, len(auctions))
	for i, a := range auctions {
		responses[i] = ToAuctionResponse(a)
	}

	return &AuctionListResponse{
		Auctions: responses,
		Total:    total,
		Page:     filters.Page,
		Limit:    filters.Limit,
	}, nil
}

// GetAuction gets auction details with bid history
//
//encore:api public method=GET path=/auctions/:id
func GetAuction(ctx context.Context, id string) (*AuctionDetailResponse, error) {
	auctionID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "invalid auction ID")
	}

	service := GetService()
	auction, err := service.repo.GetAuctionWithDetails(ctx, auctionID)
	if err != nil {
		return nil, errs.E(ctx, errs.AucNotFound, "auction not found")
	}

	bids, _, err := service.bidService.GetAuctionBids(ctx, auctionID, &BidFilters{Page: 1, Limit: 50})
	if err != nil {
		bids = nil
	}

	bidResponses := make([]*BidResponse, len(bids))
	for i, b := range bids {
		bidResponses[i] = ToBidResponse(b)
	}

	return &AuctionDetailResponse{
		Auction:  ToAuctionResponse(auction),
		Bids:     bidResponses,
		BidCount: auction.BidsCount,
	}, nil
}

// PlaceBid places a bid on an auction
//
//encore:api auth method=POST path=/auctions/:id/bid
func PlaceBid(ctx context.Context, id string, req *PlaceBidDTO) (*BidResponse, error) {
	bidderID, err := currentUserID()
	if err != nil {
		return nil, err
	}

	auctionID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "invalid auction ID")
	}

	service := GetService()

	// Throttle before taking the row lock.
	if err := service.rateLimitService.CheckBidRateLimit(ctx, bidderID); err != nil {
		return nil, err
	}

	bid, err := service.bidService.PlaceBid(ctx, auctionID, bidderID, req.Amount)
	if err != nil {
		return nil, err
	}

	return ToBidResponse(bid), nil
}

// GetAuctionBids lists the bid history for an auction
//
//encore:api public method=GET path=/auctions/:id/bids
func GetAuctionBids(ctx context.Context, id string, req *AuctionListFiltersDTO) (*BidListResponse, error) {
	auctionID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "invalid auction ID")
	}

	service := GetService()
	filters := &BidFilters{Page: req.Page, Limit: req.Limit}
	bids, total, err := service.bidService.GetAuctionBids(ctx, auctionID, filters)
	if err != nil {
		return nil, err
	}

	responses := make([]*BidResponse, len(bids))
	for i, b := range bids {
		responses[i] = ToBidResponse(b)
	}

	return &BidListResponse{
		Bids:  responses,
		Total: total,
		Page:  filters.Page,
		Limit: filters.Limit,
	}, nil
}

// GetMyBids lists the caller's bids and whether each is currently winning
//
//encore:api auth method=GET path=/user/bids
func GetMyBids(ctx context.Context, req *AuctionListFiltersDTO) (*UserBidListResponse, error) {
	userID, err := currentUserID()
	if err != nil {
		return nil, err
	}

	service := GetService()
	filters := &BidFilters{Page: req.Page, Limit: req.Limit}
	bids, total, err := service.bidService.GetUserBids(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	responses := make([]*UserBidResponse, len(bids))
	for i, b := range bids {
		responses[i] = &UserBidResponse{
			BidResponse: *ToBidResponse(&b.Bid),
			IsWinning:   b.IsWinning,
		}
	}

	return &UserBidListResponse{
		Bids:  responses,
		Total: total,
		Page:  filters.Page,
		Limit: filters.Limit,
	}, nil
}

// CancelAuction cancels an active auction (Admin only)
//
//encore:api auth method=POST path=/auctions/:id/cancel
func CancelAuction(ctx context.Context, id string, req *CancelAuctionDTO) (*MessageResponse, error) {
	if err := checkAdminAuth(); err != nil {
		return nil, err
	}
	adminID, err := currentUserID()
	if err != nil {
		return nil, err
	}

	auctionID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "invalid auction ID")
	}

	if err := GetService().CancelAuction(ctx, auctionID, req.Reason, adminID); err != nil {
		return nil, err
	}

	return &MessageResponse{Success: true, Message: "auction cancelled"}, nil
}

// RemoveBid removes a bid (Admin only)
//
//encore:api auth method=POST path=/bids/:id/remove
func RemoveBid(ctx context.Context, id string, req *RemoveBidDTO) (*MessageResponse, error) {
	if err := checkAdminAuth(); err != nil {
		return nil, err
	}
	adminID, err := currentUserID()
	if err != nil {
		return nil, err
	}

	bidID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "invalid bid ID")
	}

	if err := GetService().bidService.RemoveBid(ctx, bidID, req.Reason, adminID); err != nil {
		return nil, err
	}

	return &MessageResponse{Success: true, Message: "bid removed"}, nil
}

// GetRateLimitStatus gets the caller's current bid rate limit status
//
//encore:api auth method=GET path=/user/auction-rate-limit
func GetRateLimitStatus(ctx context.Context) (*RateLimitStatus, error) {
	userID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	return GetService().rateLimitService.GetRateLimitStatus(ctx, userID)
}

// ProcessAuctionEnd closes one due auction immediately (Admin only). The
// scheduler normally does this; the endpoint exists for manual intervention.
//
//encore:api auth method=POST path=/auctions/:id/process-end
func ProcessAuctionEnd(ctx context.Context, id string) (*ProcessAuctionEndResponse, error) {
	if err := checkAdminAuth(); err != nil {
		return nil, err
	}

	auctionID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "invalid auction ID")
	}

	result, err := GetService().EndAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	response := &ProcessAuctionEndResponse{
		AuctionID:  result.AuctionID,
		Outcome:    string(result.Outcome),
		OrderID:    result.OrderID,
		FinalPrice: result.FinalPrice,
		EndedAt:    result.EndedAt,
	}
	if result.WinnerBid != nil {
		response.WinnerBid = ToBidResponse(result.WinnerBid)
	}
	return response, nil
}

// MessageResponse represents a simple message response
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TickResponse summarizes one scheduler pass over due auctions
type TickResponse struct {
	Closed   int     `json:"closed"`
	OrderIDs []int64 `json:"order_ids,omitempty"`
}

// EndDueAuctionsInternal closes every auction whose end time has passed.
// Called from the scheduler.
//
//encore:api private
func EndDueAuctionsInternal(ctx context.Context) (*TickResponse, error) {
	results, err := GetService().EndDueAuctions(ctx)
	if err != nil {
		return nil, err
	}
	resp := &TickResponse{Closed: len(results)}
	for _, r := range results {
		if r.OrderID != nil {
			resp.OrderIDs = append(resp.OrderIDs, *r.OrderID)
		}
	}
	return resp, nil
}
