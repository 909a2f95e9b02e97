package order_mgmt

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"encore.dev/beta/auth"
	"encore.dev/storage/sqldb"

	"encore.app/pkg/audit"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/svc/notifications"
)

var db = sqldb.Named("coredb")

//encore:service
type Service struct{}

func initService() (*Service, error) {
	_ = config.Initialize(db, 5*time.Minute)
	return &Service{}, nil
}

func currentUserID() (int64, error) {
	uidStr, ok := auth.UserID()
	if !ok {
		return 0, errs.New(errs.Unauthenticated, "sign in required")
	}
	uid, err := strconv.ParseInt(string(uidStr), 10, 64)
	if err != nil {
		return 0, errs.New(errs.Internal, "invalid user ID")
	}
	return uid, nil
}

func isAdminUser(ctx context.Context, uid int64) bool {
	var role string
	_ = db.Stdlib().QueryRowContext(ctx, `SELECT role::text FROM users WHERE id=$1`, uid).Scan(&role)
	return strings.ToLower(role) == "admin"
}

type ListOrdersRequest struct {
	Status string `query:"status" encore:"optional"`
	Page   int    `query:"page" encore:"optional"`
	Limit  int    `query:"limit" encore:"optional"`
}

type OrderSummary struct {
	ID           int64   `json:"id"`
	ListingID    int64   `json:"listing_id"`
	ListingTitle string  `json:"listing_title"`
	Status       string  `json:"status"`
	GrossAmount  float64 `json:"gross_amount"`
	TotalCharged float64 `json:"total_charged"`
	CreatedAt    string  `json:"created_at"`
}

type OrdersResponse struct {
	Items []OrderSummary `json:"items"`
}

const orderSummaryQuery = `
	SELECT o.id, o.listing_id, l.title, o.status::text, o.gross_amount,
	       o.gross_amount + o.buyer_fee,
	       to_char(o.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
	FROM orders o
	JOIN listings l ON l.id = o.listing_id`

func listOrders(ctx context.Context, whereClause string, args ...interface{}) (*OrdersResponse, error) {
	rows, err := db.Stdlib().QueryContext(ctx, orderSummaryQuery+" "+whereClause, args...)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load orders")
	}
	defer rows.Close()

	items := []OrderSummary{}
	for rows.Next() {
		var it OrderSummary
		if err := rows.Scan(&it.ID, &it.ListingID, &it.ListingTitle, &it.Status, &it.GrossAmount, &it.TotalCharged, &it.CreatedAt); err != nil {
			return nil, errs.E(ctx, errs.Internal, "failed to read orders")
		}
		items = append(items, it)
	}
	return &OrdersResponse{Items: items}, nil
}

func pagination(q *ListOrdersRequest) (page, limit int, status string) {
	page, limit = 1, 20
	if q != nil {
		if q.Page > 0 {
			page = q.Page
		}
		if q.Limit > 0 && q.Limit <= 100 {
			limit = q.Limit
		}
		status = strings.ToLower(strings.TrimSpace(q.Status))
	}
	return page, limit, status
}

// ListMyOrders lists the caller's purchases
//
//encore:api auth method=GET path=/orders
func ListMyOrders(ctx context.Context, q *ListOrdersRequest) (*OrdersResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	page, limit, status := pagination(q)
	if status != "" {
		return listOrders(ctx, `WHERE o.buyer_id=$1 AND o.status::text=$2 ORDER BY o.created_at DESC LIMIT $3 OFFSET $4`,
			uid, status, limit, (page-1)*limit)
	}
	return listOrders(ctx, `WHERE o.buyer_id=$1 ORDER BY o.created_at DESC LIMIT $2 OFFSET $3`,
		uid, limit, (page-1)*limit)
}

// ListMySales lists orders against the caller's listings
//
//encore:api auth method=GET path=/user/sales
func ListMySales(ctx context.Context, q *ListOrdersRequest) (*OrdersResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	page, limit, status := pagination(q)
	if status != "" {
		return listOrders(ctx, `WHERE o.seller_id=$1 AND o.status::text=$2 ORDER BY o.created_at DESC LIMIT $3 OFFSET $4`,
			uid, status, limit, (page-1)*limit)
	}
	return listOrders(ctx, `WHERE o.seller_id=$1 ORDER BY o.created_at DESC LIMIT $2 OFFSET $3`,
		uid, limit, (page-1)*limit)
}

type PayoutInfo struct {
	Amount     float64 `json:"amount"`
	Status     string  `json:"status"`
	Frozen     bool    `json:"frozen"`
	Carrier    string  `json:"carrier,omitempty"`
	CarrierRef string  `json:"carrier_ref,omitempty"`
}

type OrderDetail struct {
	ID               int64       `json:"id"`
	ListingID        int64       `json:"listing_id"`
	ListingTitle     string      `json:"listing_title"`
	BuyerID          int64       `json:"buyer_id"`
	SellerID         int64       `json:"seller_id"`
	Status           string      `json:"status"`
	GrossAmount      float64     `json:"gross_amount"`
	BuyerFee         float64     `json:"buyer_fee"`
	SellerCommission float64     `json:"seller_commission"`
	PayoutAmount     float64     `json:"payout_amount"`
	RefundedAmount   float64     `json:"refunded_amount"`
	DisputeReason    string      `json:"dispute_reason,omitempty"`
	Processor        string      `json:"processor,omitempty"`
	Payout           *PayoutInfo `json:"payout,omitempty"`
	CreatedAt        string      `json:"created_at"`
	UpdatedAt        string      `json:"updated_at"`
}

// GetOrder returns one order. Buyer, seller and admins may read it; the
// commission and payout amounts are redacted from the buyer's view.
//
//encore:api auth method=GET path=/orders/:id
func GetOrder(ctx context.Context, id int64) (*OrderDetail, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}

	var d OrderDetail
	var disputeReason, processor sql.NullString
	err = db.Stdlib().QueryRowContext(ctx, `
		SELECT o.id, o.listing_id, l.title, o.buyer_id, o.seller_id, o.status::text,
		       o.gross_amount, o.buyer_fee, o.seller_commission, o.payout_amount,
		       o.refunded_amount, o.dispute_reason, o.processor,
		       to_char(o.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"'),
		       to_char(o.updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM orders o
		JOIN listings l ON l.id = o.listing_id
		WHERE o.id=$1
	`, id).Scan(&d.ID, &d.ListingID, &d.ListingTitle, &d.BuyerID, &d.SellerID, &d.Status,
		&d.GrossAmount, &d.BuyerFee, &d.SellerCommission, &d.PayoutAmount,
		&d.RefundedAmount, &disputeReason, &processor, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.E(ctx, errs.OrdNotFound, "order not found")
	}
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load order")
	}
	d.DisputeReason = disputeReason.String
	d.Processor = processor.String

	isBuyer := d.BuyerID == uid
	isSeller := d.SellerID == uid
	if !isBuyer && !isSeller && !isAdminUser(ctx, uid) {
		return nil, errs.E(ctx, errs.AuthForbidden, "not your order")
	}

	if isBuyer && !isSeller {
		d.SellerCommission = 0
		d.PayoutAmount = 0
	} else {
		var p PayoutInfo
		var carrierRef sql.NullString
		perr := db.Stdlib().QueryRowContext(ctx, `
			SELECT amount, status::text, frozen, carrier, carrier_ref
			FROM payouts WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1
		`, id).Scan(&p.Amount, &p.Status, &p.Frozen, &p.Carrier, &carrierRef)
		if perr == nil {
			p.CarrierRef = carrierRef.String
			d.Payout = &p
		}
	}
	return &d, nil
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MarkShipped moves a paid order to shipped. Seller only.
//
//encore:api auth method=POST path=/orders/:id/ship
func MarkShipped(ctx context.Context, id int64) (*MessageResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}

	var sellerID, buyerID int64
	var status string
	err = db.Stdlib().QueryRowContext(ctx, `SELECT seller_id, buyer_id, status::text FROM orders WHERE id=$1`, id).
		Scan(&sellerID, &buyerID, &status)
	if err == sql.ErrNoRows {
		return nil, errs.E(ctx, errs.OrdNotFound, "order not found")
	}
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load order")
	}
	if sellerID != uid {
		return nil, errs.E(ctx, errs.AuthForbidden, "only the seller can mark an order shipped")
	}

	res, err := db.Stdlib().ExecContext(ctx, `
		UPDATE orders SET status='shipped', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id=$1 AND status='paid'
	`, id)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to update order")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.E(ctx, errs.Conflict, "only paid orders can be shipped")
	}

	if _, err := notifications.EnqueueInternal(ctx, buyerID, "order_shipped", map[string]interface{}{
		"order_id": id,
	}); err != nil {
		fmt.Printf("[orders] notify buyer %d failed: %v\n", buyerID, err)
	}
	return &MessageResponse{Success: true, Message: "order marked as shipped"}, nil
}

// ConfirmDelivered closes a shipped order. Buyer only.
//
//encore:api auth method=POST path=/orders/:id/delivered
func ConfirmDelivered(ctx context.Context, id int64) (*MessageResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}

	var sellerID, buyerID int64
	err = db.Stdlib().QueryRowContext(ctx, `SELECT seller_id, buyer_id FROM orders WHERE id=$1`, id).
		Scan(&sellerID, &buyerID)
	if err == sql.ErrNoRows {
		return nil, errs.E(ctx, errs.OrdNotFound, "order not found")
	}
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load order")
	}
	if buyerID != uid {
		return nil, errs.E(ctx, errs.AuthForbidden, "only the buyer can confirm delivery")
	}

	res, err := db.Stdlib().ExecContext(ctx, `
		UPDATE orders SET status='delivered', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id=$1 AND status='shipped'
	`, id)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to update order")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.E(ctx, errs.Conflict, "only shipped orders can be confirmed delivered")
	}

	if _, err := notifications.EnqueueInternal(ctx, sellerID, "order_delivered", map[string]interface{}{
		"order_id": id,
	}); err != nil {
		fmt.Printf("[orders] notify seller %d failed: %v\n", sellerID, err)
	}
	return &MessageResponse{Success: true, Message: "delivery confirmed"}, nil
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// AdminCancelOrder cancels an order that has not been paid and releases the
// listing. Paid orders are settled through refunds, never cancelled here.
//
//encore:api auth method=POST path=/admin/orders/:id/cancel
func AdminCancelOrder(ctx context.Context, id int64, req *CancelOrderRequest) (*MessageResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if !isAdminUser(ctx, uid) {
		return nil, errs.E(ctx, errs.AuthForbidden, "admin privileges required")
	}

	tx, err := db.Stdlib().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to open transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var buyerID, listingID int64
	var status string
	err = tx.QueryRowContext(ctx, `SELECT buyer_id, listing_id, status::text FROM orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&buyerID, &listingID, &status)
	if err == sql.ErrNoRows {
		return nil, errs.E(ctx, errs.OrdNotFound, "order not found")
	}
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to load order")
	}
	if status != "created" && status != "awaiting_payment" {
		return nil, errs.E(ctx, errs.Conflict, "only unpaid orders can be cancelled")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status='cancelled', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC') WHERE id=$1
	`, id); err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to cancel order")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE listings SET status='available', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE id=$1 AND status='reserved'
	`, listingID); err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to release listing")
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to save cancellation")
	}
	committed = true

	reason := "order cancelled by admin"
	if req != nil && strings.TrimSpace(req.Reason) != "" {
		reason = strings.TrimSpace(req.Reason)
	}
	_, _ = audit.LogAction(ctx, db, "order.cancelled", "order", strconv.FormatInt(id, 10), map[string]interface{}{
		"listing_id": listingID,
	}, audit.WithActor(uid), audit.WithReason(reason))

	if _, err := notifications.EnqueueInternal(ctx, buyerID, "order_cancelled", map[string]interface{}{
		"order_id": id,
		"reason":   reason,
	}); err != nil {
		fmt.Printf("[orders] notify buyer %d failed: %v\n", buyerID, err)
	}
	return &MessageResponse{Success: true, Message: "order cancelled"}, nil
}

type StaleOrder struct {
	ID        int64   `json:"id"`
	ListingID int64   `json:"listing_id"`
	BuyerID   int64   `json:"buyer_id"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	AgeHours  float64 `json:"age_hours"`
	CreatedAt string  `json:"created_at"`
}

type StaleOrdersResponse struct {
	ThresholdHours int          `json:"threshold_hours"`
	Items          []StaleOrder `json:"items"`
}

// StaleOrders reports orders stuck before payment past the configured age.
// Reporting only, nothing is mutated.
//
//encore:api auth method=GET path=/admin/orders/stale
func StaleOrders(ctx context.Context) (*StaleOrdersResponse, error) {
	uid, err := currentUserID()
	if err != nil {
		return nil, err
	}
	if !isAdminUser(ctx, uid) {
		return nil, errs.E(ctx, errs.AuthForbidden, "admin privileges required")
	}
	return staleOrdersReport(ctx)
}

// StaleOrdersInternal is the cron entry point for the daily digest
//
//encore:api private
func StaleOrdersInternal(ctx context.Context) (*StaleOrdersResponse, error) {
	return staleOrdersReport(ctx)
}

func staleOrdersReport(ctx context.Context) (*StaleOrdersResponse, error) {
	threshold := config.GetSettings().OrdersStaleAfterHours
	if threshold <= 0 {
		threshold = 24
	}

	rows, err := db.Stdlib().QueryContext(ctx, `
		SELECT id, listing_id, buyer_id, status::text, gross_amount + buyer_fee,
		       EXTRACT(EPOCH FROM ((CURRENT_TIMESTAMP AT TIME ZONE 'UTC') - created_at)) / 3600.0,
		       to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM orders
		WHERE status IN ('created', 'awaiting_payment')
		  AND created_at < (CURRENT_TIMESTAMP AT TIME ZONE 'UTC') - make_interval(hours => $1)
		ORDER BY created_at ASC
	`, threshold)
	if err != nil {
		return nil, errs.E(ctx, errs.Internal, "failed to query stale orders")
	}
	defer rows.Close()

	resp := &StaleOrdersResponse{ThresholdHours: threshold, Items: []StaleOrder{}}
	for rows.Next() {
		var it StaleOrder
		if err := rows.Scan(&it.ID, &it.ListingID, &it.BuyerID, &it.Status, &it.Amount, &it.AgeHours, &it.CreatedAt); err != nil {
			return nil, errs.E(ctx, errs.Internal, "failed to read stale orders")
		}
		resp.Items = append(resp.Items, it)
	}
	return resp, nil
}
