package listings

import (
	"context"
	"strconv"

	"encore.dev/beta/auth"
	"encore.dev/storage/sqldb"

	"encore.app/pkg/errs"
	authsvc "encore.app/svc/auth"
)

var db = sqldb.Named("coredb")

var listingService = NewService(db)

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

func isAdmin() bool {
	if d := auth.Data(); d != nil {
		if v, ok := d.(*authsvc.AuthData); ok {
			return v.Role == "admin"
		}
	}
	return false
}

// GetListings retrieves listings with optional filtering and pagination
//
//encore:api public method=GET path=/listings
func GetListings(ctx context.Context, req *ListingsListRequest) (*ListingsListResponse, error) {
	if req == nil {
		req = &ListingsListRequest{}
	}
	return listingService.GetListings(ctx, *req)
}

// GetListing retrieves a single listing by ID
//
//encore:api public method=GET path=/listings/:id
func GetListing(ctx context.Context, id int64) (*ListingResponse, error) {
	listing, err := listingService.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toListingResponse(*listing)
	return &resp, nil
}

// CreateListing creates a new listing owned by the caller
//
//encore:api auth method=POST path=/listings
func CreateListing(ctx context.Context, req *CreateListingRequest) (*ListingResponse, error) {
	sellerID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	listing, err := listingService.CreateListing(ctx, sellerID, *req)
	if err != nil {
		return nil, err
	}
	resp := toListingResponse(*listing)
	return &resp, nil
}

// UpdateListing edits title/price of the caller's listing
//
//encore:api auth method=PUT path=/listings/:id
func UpdateListing(ctx context.Context, id int64, req *UpdateListingRequest) (*ListingResponse, error) {
	actorID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	listing, err := listingService.UpdateListing(ctx, id, actorID, *req)
	if err != nil {
		return nil, err
	}
	resp := toListingResponse(*listing)
	return &resp, nil
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DeactivateListing withdraws the caller's listing from sale
//
//encore:api auth method=POST path=/listings/:id/deactivate
func DeactivateListing(ctx context.Context, id int64) (*MessageResponse, error) {
	actorID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if err := listingService.DeactivateListing(ctx, id, actorID, isAdmin()); err != nil {
		return nil, err
	}
	return &MessageResponse{Success: true, Message: "listing withdrawn"}, nil
}

// ReactivateListing puts a withdrawn listing back on sale
//
//encore:api auth method=POST path=/listings/:id/reactivate
func ReactivateListing(ctx context.Context, id int64) (*MessageResponse, error) {
	actorID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if err := listingService.ReactivateListing(ctx, id, actorID, isAdmin()); err != nil {
		return nil, err
	}
	return &MessageResponse{Success: true, Message: "listing available again"}, nil
}

// GetMyListings lists the caller's own listings in all statuses
//
//encore:api auth method=GET path=/user/listings
func GetMyListings(ctx context.Context, req *ListingsListRequest) (*ListingsListResponse, error) {
	sellerID, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &ListingsListRequest{}
	}
	req.SellerID = sellerID
	return listingService.GetListings(ctx, *req)
}
