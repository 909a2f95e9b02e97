package listings

import (
	"strconv"
	"strings"
	"time"
)

type CreateListingRequest struct {
	Title string  `json:"title"`
	Type  string  `json:"type"`
	Price float64 `json:"price"`
}

type UpdateListingRequest struct {
	Title string   `json:"title"`
	Price *float64 `json:"price"`
}

type ListingsListRequest struct {
	Type     string  `query:"type" encore:"optional"`
	Status   string  `query:"status" encore:"optional"`
	SellerID int64   `query:"seller_id" encore:"optional"`
	Search   string  `query:"search" encore:"optional"`
	PriceMin float64 `query:"price_min" encore:"optional"`
	PriceMax float64 `query:"price_max" encore:"optional"`
	Sort     string  `query:"sort" encore:"optional"`
	Page     int     `query:"page" encore:"optional"`
	Limit    int     `query:"limit" encore:"optional"`
}

type ListingResponse struct {
	ID        int64   `json:"id"`
	SellerID  int64   `json:"seller_id"`
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	Price     float64 `json:"price"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type ListingsListResponse struct {
	Listings   []ListingResponse `json:"listings"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalCount int64             `json:"total_count"`
}

var sortFields = map[string]string{
	"newest":     "created_at DESC",
	"oldest":     "created_at ASC",
	"price_asc":  "price ASC",
	"price_desc": "price DESC",
	"title":      "title ASC",
}

func (req ListingsListRequest) normalize() (ListingsFilter, ListingsSort, int, int) {
	var filter ListingsFilter

	if t := ListingType(strings.ToLower(req.Type)); t == ListingTypeBuyNow || t == ListingTypeAuction {
		filter.Type = &t
	}
	switch st := ListingStatus(strings.ToLower(req.Status)); st {
	case ListingStatusAvailable, ListingStatusReserved, ListingStatusSold, ListingStatusInactive:
		filter.Status = &st
	}
	if req.SellerID > 0 {
		id := req.SellerID
		filter.SellerID = &id
	}
	if s := strings.TrimSpace(req.Search); s != "" {
		filter.Search = &s
	}
	if req.PriceMin > 0 {
		v := req.PriceMin
		filter.PriceMin = &v
	}
	if req.PriceMax > 0 {
		v := req.PriceMax
		filter.PriceMax = &v
	}

	sort := ListingsSort{Field: "created_at", Direction: "DESC"}
	if clause, ok := sortFields[strings.ToLower(req.Sort)]; ok {
		parts := strings.SplitN(clause, " ", 2)
		sort = ListingsSort{Field: parts[0], Direction: parts[1]}
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return filter, sort, page, limit
}

func toListingResponse(l Listing) ListingResponse {
	return ListingResponse{
		ID:        l.ID,
		SellerID:  l.SellerID,
		Title:     l.Title,
		Type:      string(l.Type),
		Price:     l.Price,
		Status:    string(l.Status),
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
