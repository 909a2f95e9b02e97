package listings

import (
	"context"
	"strings"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/audit"
	"encore.app/pkg/errs"
)

// Service implements listing business logic
type Service struct {
	db   *sqldb.Database
	repo *Repository
}

// NewService creates a new listings service
func NewService(db *sqldb.Database) *Service {
	return &Service{db: db, repo: NewRepository(db)}
}

func (s *Service) CreateListing(ctx context.Context, sellerID int64, req CreateListingRequest) (*Listing, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errs.E(ctx, errs.InvalidArgument, "title is required")
	}
	if len(title) > 200 {
		return nil, errs.E(ctx, errs.InvalidArgument, "title must be 200 characters or fewer")
	}

	listingType := ListingType(strings.ToLower(strings.TrimSpace(req.Type)))
	if listingType != ListingTypeBuyNow && listingType != ListingTypeAuction {
		return nil, errs.E(ctx, errs.InvalidArgument, "type must be buy_now or auction")
	}
	if req.Price < 0 {
		return nil, errs.E(ctx, errs.InvalidArgument, "price cannot be negative")
	}
	// Auction listings are priced by bidding; buy-now needs a real price.
	if listingType == ListingTypeBuyNow && req.Price <= 0 {
		return nil, errs.E(ctx, errs.InvalidArgument, "buy-now listings require a positive price")
	}

	listing, err := s.repo.CreateListing(ctx, sellerID, title, listingType, req.Price)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to create listing")
	}

	_, _ = audit.LogAction(ctx, s.db, "listing.created", "listing", itoa(listing.ID), map[string]interface{}{
		"seller_id": sellerID,
		"type":      string(listingType),
		"price":     req.Price,
	}, audit.WithActor(sellerID))

	return listing, nil
}

func (s *Service) GetListing(ctx context.Context, id int64) (*Listing, error) {
	listing, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load listing")
	}
	if listing == nil {
		return nil, errs.E(ctx, errs.LstNotFound, "listing not found")
	}
	return listing, nil
}

func (s *Service) UpdateListing(ctx context.Context, id, actorID int64, req UpdateListingRequest) (*Listing, error) {
	listing, err := s.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actorID {
		return nil, errs.E(ctx, errs.AuthForbidden, "only the seller can edit a listing")
	}
	// Reserved and sold listings are locked: an open order or auction
	// depends on their current terms.
	if listing.Status != ListingStatusAvailable && listing.Status != ListingStatusInactive {
		return nil, errs.E(ctx, errs.Conflict, "listing cannot be edited in its current state")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = listing.Title
	}
	price := listing.Price
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, errs.E(ctx, errs.InvalidArgument, "price cannot be negative")
		}
		price = *req.Price
	}

	updated, err := s.repo.UpdateListing(ctx, id, title, price)
	if err != nil || updated == nil {
		return nil, errs.E(ctx, errs.Internal, "failed to update listing")
	}
	return updated, nil
}

// DeactivateListing withdraws an available listing from the marketplace
func (s *Service) DeactivateListing(ctx context.Context, id, actorID int64, isAdmin bool) error {
	listing, err := s.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if listing.SellerID != actorID && !isAdmin {
		return errs.E(ctx, errs.AuthForbidden, "only the seller can withdraw a listing")
	}
	ok, err := s.repo.SetStatus(ctx, id, ListingStatusAvailable, ListingStatusInactive)
	if err != nil {
		return errs.E(ctx, errs.Internal, "failed to withdraw listing")
	}
	if !ok {
		return errs.E(ctx, errs.Conflict, "only available listings can be withdrawn")
	}
	_, _ = audit.LogAction(ctx, s.db, "listing.deactivated", "listing", itoa(id), map[string]interface{}{
		"actor_id": actorID,
	}, audit.WithActor(actorID))
	return nil
}

// ReactivateListing puts a withdrawn listing back on the marketplace
func (s *Service) ReactivateListing(ctx context.Context, id, actorID int64, isAdmin bool) error {
	listing, err := s.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if listing.SellerID != actorID && !isAdmin {
		return errs.E(ctx, errs.AuthForbidden, "only the seller can relist")
	}
	ok, err := s.repo.SetStatus(ctx, id, ListingStatusInactive, ListingStatusAvailable)
	if err != nil {
		return errs.E(ctx, errs.Internal, "failed to relist")
	}
	if !ok {
		return errs.E(ctx, errs.Conflict, "only withdrawn listings can be relisted")
	}
	return nil
}

func (s *Service) GetListings(ctx context.Context, req ListingsListRequest) (*ListingsListResponse, error) {
	filter, sort, page, limit := req.normalize()

	items, total, err := s.repo.GetListings(ctx, filter, sort, (page-1)*limit, limit)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load listings")
	}

	resp := &ListingsListResponse{
		Listings:   make([]ListingResponse, 0, len(items)),
		Page:       page,
		Limit:      limit,
		TotalCount: total,
	}
	for _, l := range items {
		resp.Listings = append(resp.Listings, toListingResponse(l))
	}
	return resp, nil
}
