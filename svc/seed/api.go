// Package seed populates a development database with realistic
// marketplace data: users, listings, auctions, bids, and orders.
// The endpoint is guarded by a shared secret and intended for dev
// and staging environments only.
package seed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/authn"
	"encore.app/pkg/config"
	"encore.app/pkg/fees"
)

// Database handle
var db = sqldb.Named("coredb")

// Optional Encore secret for seed protection. Falls back to the
// SEED_SECRET environment variable when unset.
var secrets struct {
	SeedSecret string //encore:secret
}

//encore:service
type Service struct{}

// SeedRequest allows customizing counts (all optional)
type SeedRequest struct {
	Buyers  int `json:"buyers"`
	Sellers int `json:"sellers"`
	Admins  int `json:"admins"`

	BuyNowListings  int `json:"buy_now_listings"`
	AuctionListings int `json:"auction_listings"`

	AuctionsActive    int `json:"auctions_active"`
	AuctionsEnded     int `json:"auctions_ended"`
	AuctionsCancelled int `json:"auctions_cancelled"`

	BidsPerActiveAuction int `json:"bids_per_active"`
	DirectOrders         int `json:"direct_orders"`
}

// SeedResponse summarizes what was created
type SeedResponse struct {
	Created struct {
		Buyers  int `json:"buyers"`
		Sellers int `json:"sellers"`
		Admins  int `json:"admins"`

		BuyNowListings  int `json:"buy_now_listings"`
		AuctionListings int `json:"auction_listings"`

		AuctionsActive    int `json:"auctions_active"`
		AuctionsEnded     int `json:"auctions_ended"`
		AuctionsCancelled int `json:"auctions_cancelled"`

		Bids   int `json:"bids"`
		Orders int `json:"orders"`
	} `json:"created"`
	Notes []string `json:"notes"`
}

//encore:api public raw method=POST path=/dev/seed
func RunSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	expected := strings.TrimSpace(getExpectedSecret())
	provided := strings.TrimSpace(r.Header.Get("X-Seed-Secret"))
	if expected == "" || provided == "" || provided != expected {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"ok":      false,
			"message": "forbidden: invalid or missing X-Seed-Secret",
		})
		return
	}

	if config.GetGlobalManager() == nil {
		_ = config.Initialize(db, 5*time.Minute)
	}

	var req SeedRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	applyDefaults(&req)

	resp := &SeedResponse{}
	resp.Notes = append(resp.Notes, "Seeding started")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// 1) Users
	password := "Password123"
	var buyerIDs, sellerIDs []int64
	if ids, n, err := seedUsers(ctx, rng, "buyer", "user", req.Buyers, password, true); err == nil {
		buyerIDs = ids
		resp.Created.Buyers = n
	} else {
		resp.Notes = append(resp.Notes, "buyers error: "+err.Error())
	}
	if ids, n, err := seedUsers(ctx, rng, "seller", "user", req.Sellers, password, false); err == nil {
		sellerIDs = ids
		resp.Created.Sellers = n
	} else {
		resp.Notes = append(resp.Notes, "sellers error: "+err.Error())
	}
	if _, n, err := seedUsers(ctx, rng, "admin", "admin", req.Admins, password, false); err == nil {
		resp.Created.Admins = n
	} else {
		resp.Notes = append(resp.Notes, "admins error: "+err.Error())
	}

	if len(sellerIDs) == 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "no sellers created"})
		return
	}

	// 2) Listings
	var buyNowIDs, auctionListingIDs []int64
	if ids, n, err := seedListings(ctx, rng, sellerIDs, "buy_now", req.BuyNowListings); err == nil {
		buyNowIDs = ids
		resp.Created.BuyNowListings = n
	} else {
		resp.Notes = append(resp.Notes, "buy_now listings error: "+err.Error())
	}
	if ids, n, err := seedListings(ctx, rng, sellerIDs, "auction", req.AuctionListings); err == nil {
		auctionListingIDs = ids
		resp.Created.AuctionListings = n
	} else {
		resp.Notes = append(resp.Notes, "auction listings error: "+err.Error())
	}

	// 3) Auctions over the auction-type listings
	var activeAuctionIDs []int64
	if ids, n, err := seedAuctions(ctx, rng, &auctionListingIDs, "active", req.AuctionsActive); err == nil {
		activeAuctionIDs = ids
		resp.Created.AuctionsActive = n
	} else {
		resp.Notes = append(resp.Notes, "auctions_active error: "+err.Error())
	}
	if _, n, err := seedAuctions(ctx, rng, &auctionListingIDs, "ended", req.AuctionsEnded); err == nil {
		resp.Created.AuctionsEnded = n
	} else {
		resp.Notes = append(resp.Notes, "auctions_ended error: "+err.Error())
	}
	if _, n, err := seedAuctions(ctx, rng, &auctionListingIDs, "cancelled", req.AuctionsCancelled); err == nil {
		resp.Created.AuctionsCancelled = n
	} else {
		resp.Notes = append(resp.Notes, "auctions_cancelled error: "+err.Error())
	}

	// 4) Bids on active auctions (buyers hold active subscriptions)
	if len(activeAuctionIDs) > 0 && len(buyerIDs) > 0 {
		cnt, err := seedBids(ctx, rng, activeAuctionIDs, buyerIDs, req.BidsPerActiveAuction)
		if err == nil {
			resp.Created.Bids = cnt
		} else {
			resp.Notes = append(resp.Notes, "bids error: "+err.Error())
		}
	}

	// 5) Direct buy-now orders with fee snapshots
	if len(buyerIDs) > 0 && len(buyNowIDs) > 0 && req.DirectOrders > 0 {
		cnt, err := seedDirectOrders(ctx, rng, buyerIDs, buyNowIDs, req.DirectOrders)
		if err == nil {
			resp.Created.Orders = cnt
		} else {
			resp.Notes = append(resp.Notes, "orders error: "+err.Error())
		}
	}

	resp.Notes = append(resp.Notes, "Seeding finished")
	writeJSON(w, http.StatusOK, resp)
}

func getExpectedSecret() string {
	if strings.TrimSpace(secrets.SeedSecret) != "" {
		return strings.TrimSpace(secrets.SeedSecret)
	}
	return strings.TrimSpace(os.Getenv("SEED_SECRET"))
}

func applyDefaults(r *SeedRequest) {
	if r.Buyers == 0 {
		r.Buyers = 10
	}
	if r.Sellers == 0 {
		r.Sellers = 5
	}
	if r.Admins == 0 {
		r.Admins = 2
	}
	if r.BuyNowListings == 0 {
		r.BuyNowListings = 12
	}
	if r.AuctionListings == 0 {
		r.AuctionListings = 8
	}
	if r.AuctionsActive == 0 {
		r.AuctionsActive = 3
	}
	if r.AuctionsEnded == 0 {
		r.AuctionsEnded = 2
	}
	if r.AuctionsCancelled == 0 {
		r.AuctionsCancelled = 1
	}
	if r.BidsPerActiveAuction == 0 {
		r.BidsPerActiveAuction = 6
	}
	if r.DirectOrders == 0 {
		r.DirectOrders = 5
	}
}

// --- Helpers ---

func seedUsers(ctx context.Context, r *rand.Rand, kind, role string, n int, password string, withSubscription bool) ([]int64, int, error) {
	if n <= 0 {
		return nil, 0, nil
	}
	hash, _ := authn.HashPassword(password)
	created := 0
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Seed %s %d", strings.Title(kind), r.Intn(100000))
		email := strings.ToLower(fmt.Sprintf("seed.%s.%d@perchwell.local", kind, r.Intn(1_000_000_000)))
		var id int64
		err := db.Stdlib().QueryRowContext(ctx, `
			INSERT INTO users (name, email, password_hash, role, state)
			VALUES ($1, LOWER($2), $3, $4::user_role, 'active')
			ON CONFLICT (email) DO NOTHING
			RETURNING id
		`, name, email, hash, role).Scan(&id)
		if err != nil {
			if err == sql.ErrNoRows {
				if e := db.Stdlib().QueryRowContext(ctx, `SELECT id FROM users WHERE email = LOWER($1)`, email).Scan(&id); e != nil {
					continue
				}
			} else {
				continue
			}
		}
		if id > 0 {
			if withSubscription {
				_, _ = db.Stdlib().ExecContext(ctx, `
					INSERT INTO subscriptions (user_id, plan, status, expires_at)
					VALUES ($1, 'bidder', 'active', NOW() + INTERVAL '30 days')
				`, id)
			}
			ids = append(ids, id)
			created++
		}
	}
	return ids, created, nil
}

func seedListings(ctx context.Context, r *rand.Rand, sellerIDs []int64, listingType string, n int) ([]int64, int, error) {
	if n <= 0 || len(sellerIDs) == 0 {
		return nil, 0, nil
	}
	ids := make([]int64, 0, n)
	created := 0
	for i := 0; i < n; i++ {
		seller := sellerIDs[r.Intn(len(sellerIDs))]
		title := fmt.Sprintf("Seed %s listing %d", listingType, r.Intn(1_000_000))
		price := 0.0
		if listingType == "buy_now" {
			price = float64(20 + r.Intn(480))
		}
		var id int64
		err := db.Stdlib().QueryRowContext(ctx, `
			INSERT INTO listings (seller_id, title, type, price, status)
			VALUES ($1, $2, $3::listing_type, $4, 'available')
			RETURNING id
		`, seller, title, listingType, price).Scan(&id)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		created++
	}
	return ids, created, nil
}

// seedAuctions consumes listings from the pool so each auction gets its
// own listing, matching the unique listing constraint.
func seedAuctions(ctx context.Context, r *rand.Rand, listingPool *[]int64, status string, n int) ([]int64, int, error) {
	if n <= 0 || len(*listingPool) == 0 {
		return nil, 0, nil
	}
	ids := make([]int64, 0, n)
	created := 0
	for i := 0; i < n && len(*listingPool) > 0; i++ {
		listingID := (*listingPool)[len(*listingPool)-1]
		*listingPool = (*listingPool)[:len(*listingPool)-1]

		var sellerID int64
		if err := db.Stdlib().QueryRowContext(ctx, `SELECT seller_id FROM listings WHERE id = $1`, listingID).Scan(&sellerID); err != nil {
			continue
		}

		startingBid := float64(50 + r.Intn(450))
		increment := float64(1 + r.Intn(10))
		var reserve sql.NullFloat64
		if r.Intn(2) == 0 {
			reserve = sql.NullFloat64{Valid: true, Float64: startingBid + float64(25+r.Intn(100))}
		}

		endAt := time.Now().Add(24 * time.Hour)
		switch status {
		case "ended":
			endAt = time.Now().Add(-24 * time.Hour)
		case "cancelled":
			endAt = time.Now().Add(12 * time.Hour)
		}

		var auctionID int64
		err := db.Stdlib().QueryRowContext(ctx, `
			INSERT INTO auctions (listing_id, seller_id, starting_bid, bid_increment, reserve_price, end_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7::auction_status)
			RETURNING id
		`, listingID, sellerID, startingBid, increment, reserve, endAt, status).Scan(&auctionID)
		if err != nil {
			continue
		}
		ids = append(ids, auctionID)
		created++
	}
	return ids, created, nil
}

func seedBids(ctx context.Context, r *rand.Rand, auctionIDs []int64, bidderIDs []int64, bidsPerAuction int) (int, error) {
	if bidsPerAuction <= 0 || len(auctionIDs) == 0 || len(bidderIDs) == 0 {
		return 0, nil
	}
	inserted := 0
	for _, aucID := range auctionIDs {
		var startingBid, increment float64
		var sellerID int64
		if err := db.Stdlib().QueryRowContext(ctx, `
			SELECT starting_bid, bid_increment, seller_id FROM auctions WHERE id = $1
		`, aucID).Scan(&startingBid, &increment, &sellerID); err != nil {
			continue
		}
		current := startingBid
		for i := 0; i < bidsPerAuction; i++ {
			bidder := bidderIDs[r.Intn(len(bidderIDs))]
			if bidder == sellerID {
				continue
			}
			if _, err := db.Stdlib().ExecContext(ctx, `
				INSERT INTO bids (auction_id, bidder_id, amount)
				VALUES ($1, $2, $3)
			`, aucID, bidder, round2(current)); err == nil {
				inserted++
			}
			current += increment
		}
	}
	return inserted, nil
}

// seedDirectOrders creates paid buy-now orders with the same fee
// snapshot checkout would have written.
func seedDirectOrders(ctx context.Context, r *rand.Rand, buyerIDs []int64, listingIDs []int64, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	cfg := config.GetSettings().FeeConfig()
	created := 0
	for i := 0; i < n && len(listingIDs) > 0; i++ {
		buyer := buyerIDs[r.Intn(len(buyerIDs))]
		listingID := listingIDs[len(listingIDs)-1]
		listingIDs = listingIDs[:len(listingIDs)-1]

		var sellerID int64
		var price float64
		if err := db.Stdlib().QueryRowContext(ctx, `
			SELECT seller_id, price FROM listings WHERE id = $1 AND status = 'available'
		`, listingID).Scan(&sellerID, &price); err != nil {
			continue
		}
		if sellerID == buyer {
			continue
		}

		settlement, err := fees.ComputeSettlement(price, cfg)
		if err != nil {
			continue
		}
		snapshot, _ := json.Marshal(cfg)

		tx, err := db.Stdlib().BeginTx(ctx, nil)
		if err != nil {
			continue
		}
		var orderID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO orders (listing_id, buyer_id, seller_id, gross_amount, buyer_fee,
			                    seller_commission, payout_amount, fee_config_snapshot, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'paid')
			RETURNING id
		`, listingID, buyer, sellerID, price, settlement.BuyerFee,
			settlement.SellerCommission, settlement.PayoutAmount, snapshot).Scan(&orderID)
		if err != nil {
			_ = tx.Rollback()
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE listings SET status = 'sold' WHERE id = $1`, listingID); err != nil {
			_ = tx.Rollback()
			continue
		}
		if err := tx.Commit(); err != nil {
			continue
		}
		created++
	}
	return created, nil
}

func round2(v float64) float64 { return math.Floor(v*100+0.5) / 100 }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
