package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"encore.dev/beta/auth"
	"encore.dev/storage/sqldb"

	"encore.app/pkg/audit"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/pkg/fees"
	"encore.app/pkg/ratelimit"
	"encore.app/svc/notifications"
	"encore.app/svc/payments/providers"

	"github.com/google/uuid"
)

var db = sqldb.Named("coredb")

//encore:service
type Service struct{}

func initService() (*Service, error) {
	_ = config.Initialize(db, 5*time.Minute)
	return &Service{}, nil
}

var paymentsRL = ratelimit.NewRateLimiter(ratelimit.RateLimitConfig{MaxAttempts: 5, Window: time.Minute})

type CheckoutRequest struct {
	ListingID int64  `json:"listing_id"`
	IdemKey   string `header:"Idempotency-Key"`
}

type CheckoutResponse struct {
	OrderID      int64   `json:"order_id"`
	ListingID    int64   `json:"listing_id"`
	Status       string  `json:"status"`
	GrossAmount  float64 `json:"gross_amount"`
	BuyerFee     float64 `json:"buyer_fee"`
	TotalCharged float64 `json:"total_charged"`
}

// Checkout opens a buy-now order for a listing. The order insert and the
// listing reservation commit together; a replay with the same
// Idempotency-Key returns the original order untouched.
//
//encore:api auth method=POST path=/checkout
func Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	uidStr, ok := auth.UserID()
	if !ok {
		return nil, errs.E(ctx, errs.Unauthenticated, "sign in required")
	}
	buyerID, perr := strconv.ParseInt(string(uidStr), 10, 64)
	if perr != nil {
		return nil, errs.E(ctx, errs.InvalidArgument, "invalid user ID")
	}
	if req == nil || req.ListingID == 0 {
		return nil, errs.E(ctx, errs.InvalidArgument, "listing_id is required")
	}
	key := strings.TrimSpace(req.IdemKey)
	if key == "" {
		return nil, errs.E(ctx, errs.InvalidArgument, "Idempotency-Key header is required")
	}

	tx, err := db.Stdlib().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to open transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Serialize replays of the same key; released automatically at commit
	// or rollback.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(hashKey(fmt.Sprintf("%d:%s", buyerID, key)))); err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to acquire checkout lock")
	}

	// Replay: same key returns the original order, a different listing
	// under the same key is a client bug.
	var existing CheckoutResponse
	var existingListing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id, listing_id, status::text, gross_amount, buyer_fee, gross_amount + buyer_fee
		FROM orders WHERE buyer_id=$1 AND idem_key=$2
	`, buyerID, key).Scan(&existing.OrderID, &existingListing, &existing.Status, &existing.GrossAmount, &existing.BuyerFee, &existing.TotalCharged)
	if err != nil && err != sql.ErrNoRows {
		return nil, errs.E(ctx, errs.Internal, "failed to check idempotency key")
	}
	if err == nil {
		if existingListing != req.ListingID {
			return nil, errs.EDetails(ctx, errs.OrdIdemMismatch, "Idempotency-Key was already used for a different listing", map[string]interface{}{
				"listing_id": existingListing,
			})
		}
		existing.ListingID = existingListing
		if cerr := tx.Commit(); cerr == nil {
			committed = true
		}
		return &existing, nil
	}

	var sellerID int64
	var listingType, listingStatus string
	var price float64
	err = tx.QueryRowContext(ctx, `
		SELECT seller_id, type::text, status::text, price FROM listings WHERE id=$1 FOR UPDATE
	`, req.ListingID).Scan(&sellerID, &listingType, &listingStatus, &price)
	if err == sql.ErrNoRows {
		return nil, errs.E(ctx, errs.LstNotFound, "listing not found")
	}
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load listing")
	}
	if sellerID == buyerID {
		return nil, errs.E(ctx, errs.AuthForbidden, "you cannot buy your own listing")
	}
	if listingType != "buy_now" {
		return nil, errs.E(ctx, errs.OrdListingUnavailable, "listing is sold by auction")
	}
	switch listingStatus {
	case "available":
	case "reserved":
		return nil, errs.E(ctx, errs.OrdListingAlreadyReserved, "listing already has a pending order")
	default:
		return nil, errs.E(ctx, errs.OrdListingUnavailable, "listing is not for sale")
	}

	// Fee snapshot: computed once, here, and never recomputed.
	cfg := config.GetSettings().FeeConfig()
	settlement, err := fees.ComputeSettlement(price, cfg)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to compute fees")
	}
	snapshot, _ := json.Marshal(cfg)

	var orderID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (listing_id, buyer_id, seller_id, gross_amount, buyer_fee,
		                    seller_commission, payout_amount, fee_config_snapshot, status, idem_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'created', $9)
		RETURNING id
	`, req.ListingID, buyerID, sellerID, price, settlement.BuyerFee,
		settlement.SellerCommission, settlement.PayoutAmount, string(snapshot), key).Scan(&orderID)
	if err != nil {
		// The partial unique index backs up the row lock against a
		// concurrent order on the same listing.
		if strings.Contains(err.Error(), "ux_orders_listing_open") {
			return nil, errs.E(ctx, errs.OrdListingAlreadyReserved, "listing already has a pending order")
		}
		return nil, errs.E(ctx, errs.Internal, "failed to create order")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE listings SET status='reserved', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC') WHERE id=$1
	`, req.ListingID); err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to reserve listing")
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to save order")
	}
	committed = true

	_, _ = audit.LogAction(ctx, db, "order.created", "order", strconv.FormatInt(orderID, 10), map[string]interface{}{
		"listing_id": req.ListingID,
		"buyer_id":   buyerID,
		"gross":      price,
	}, audit.WithActor(buyerID))

	if _, err := notifications.EnqueueInternal(ctx, sellerID, "listing_reserved", map[string]interface{}{
		"listing_id": req.ListingID,
		"order_id":   orderID,
	}); err != nil {
		fmt.Printf("[checkout] notify seller %d failed: %v\n", sellerID, err)
	}

	return &CheckoutResponse{
		OrderID:      orderID,
		ListingID:    req.ListingID,
		Status:       "created",
		GrossAmount:  price,
		BuyerFee:     settlement.BuyerFee,
		TotalCharged: settlement.TotalCharged,
	}, nil
}

type InitPaymentRequest struct {
	Processor string `json:"processor"`
}

type InitPaymentResponse struct {
	OrderID    int64   `json:"order_id"`
	Status     string  `json:"status"`
	Processor  string  `json:"processor"`
	TxnID      string  `json:"txn_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	SessionURL string  `json:"session_url"`
}

// InitPayment opens a payment session with one of the supported processors
// and moves the order to awaiting_payment. From here on, settlement webhooks
// drive the order.
//
//encore:api auth method=POST path=/orders/:id/pay
func InitPayment(ctx context.Context, id int64, req *InitPaymentRequest) (*InitPaymentResponse, error) {
	uidStr, ok := auth.UserID()
	if !ok {
		return nil, errs.E(ctx, errs.Unauthenticated, "sign in required")
	}
	buyerID, _ := strconv.ParseInt(string(uidStr), 10, 64)

	if req == nil || strings.TrimSpace(req.Processor) == "" {
		return nil, errs.E(ctx, errs.InvalidArgument, "processor is required")
	}
	processor := strings.ToLower(strings.TrimSpace(req.Processor))
	adapter := providers.ForName(processor)
	if adapter == nil {
		return nil, errs.E(ctx, errs.PayUnknownProcessor, "unsupported payment processor")
	}

	cfg := config.GetSettings()
	if cfg == nil || !cfg.PaymentsEnabled {
		return nil, errs.E(ctx, errs.PayProcessorDisabled, "payments are disabled")
	}

	if err := paymentsRL.RecordAttempt(ratelimit.GenerateUserKey("payments_init", buyerID)); err != nil {
		return nil, errs.E(ctx, errs.TooManyRequests, "too many payment attempts, try again shortly")
	}

	var ownerID int64
	var status string
	var gross, buyerFee float64
	var existingProcessor, existingTxn sql.NullString
	err := db.Stdlib().QueryRowContext(ctx, `
		SELECT buyer_id, status::text, gross_amount, buyer_fee, processor, processor_txn_id
		FROM orders WHERE id=$1
	`, id).Scan(&ownerID, &status, &gross, &buyerFee, &existingProcessor, &existingTxn)
	if err == sql.ErrNoRows {
		return nil, errs.E(ctx, errs.OrdNotFound, "order not found")
	}
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load order")
	}
	if ownerID != buyerID {
		return nil, errs.E(ctx, errs.AuthForbidden, "not your order")
	}

	amount := gross + buyerFee
	currency := cfg.PaymentsCurrency

	// A live session is replayed as-is.
	if status == "awaiting_payment" && existingProcessor.Valid && existingTxn.Valid {
		return &InitPaymentResponse{
			OrderID:    id,
			Status:     status,
			Processor:  existingProcessor.String,
			TxnID:      existingTxn.String,
			Amount:     amount,
			Currency:   currency,
			SessionURL: sessionURL(existingProcessor.String, existingTxn.String),
		}, nil
	}
	if status != "created" && status != "payment_failed" {
		return nil, errs.E(ctx, errs.Conflict, "order is not awaiting payment")
	}

	// The processor's transaction reference anchors webhook lookups.
	txnID := fmt.Sprintf("%s_%s", processor, uuid.NewString())

	res, err := db.Stdlib().ExecContext(ctx, `
		UPDATE orders
		SET status='awaiting_payment', processor=$1, processor_txn_id=$2,
		    updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id=$3 AND status IN ('created','payment_failed')
	`, processor, txnID, id)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to open payment session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.E(ctx, errs.Conflict, "order is not awaiting payment")
	}

	return &InitPaymentResponse{
		OrderID:    id,
		Status:     "awaiting_payment",
		Processor:  processor,
		TxnID:      txnID,
		Amount:     amount,
		Currency:   currency,
		SessionURL: sessionURL(processor, txnID),
	}, nil
}

func sessionURL(processor, txnID string) string {
	return fmt.Sprintf("https://pay.perchwell.example/%s/%s", processor, txnID)
}

func hashKey(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
