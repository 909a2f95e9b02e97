package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"encore.app/svc/payments/providers"
)

// seedSettlementOrder creates a buyer, a seller, a reserved listing, and an
// order awaiting settlement for the given processor transaction reference.
// Returns (orderID, listingID).
func seedSettlementOrder(t *testing.T, ctx context.Context, tag, txnID string) (int64, int64) {
	t.Helper()

	var buyerID, sellerID int64
	for _, u := range []struct {
		who string
		id  *int64
	}{
		{"buyer", &buyerID},
		{"seller", &sellerID},
	} {
		err := db.QueryRow(ctx, `
			INSERT INTO users (email, name, password_hash, role, state)
			VALUES ($1, 'Settlement Test', 'x', 'user', 'active')
			RETURNING id
		`, fmt.Sprintf("%s_%s@example.com", u.who, tag)).Scan(u.id)
		if err != nil {
			t.Fatalf("failed to seed %s: %v", u.who, err)
		}
	}

	var listingID int64
	err := db.QueryRow(ctx, `
		INSERT INTO listings (seller_id, title, type, price, status)
		VALUES ($1, $2, 'buy_now', 100.00, 'reserved')
		RETURNING id
	`, sellerID, fmt.Sprintf("Settlement Lot %s", tag)).Scan(&listingID)
	if err != nil {
		t.Fatalf("failed to seed listing: %v", err)
	}

	var orderID int64
	err = db.QueryRow(ctx, `
		INSERT INTO orders (listing_id, buyer_id, seller_id, gross_amount, buyer_fee,
		                    seller_commission, payout_amount, status, processor,
		                    processor_txn_id, idem_key)
		VALUES ($1, $2, $3, 105.00, 5.00, 10.00, 90.00, 'created', 'stripe', $4, $5)
		RETURNING id
	`, listingID, buyerID, sellerID, txnID, fmt.Sprintf("idem_%s", tag)).Scan(&orderID)
	if err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return orderID, listingID
}

func orderState(t *testing.T, ctx context.Context, orderID int64) (status, processorStatus string) {
	t.Helper()
	var ps *string
	if err := db.QueryRow(ctx, `
		SELECT status::text, processor_status FROM orders WHERE id = $1
	`, orderID).Scan(&status, &ps); err != nil {
		t.Fatalf("failed to read order: %v", err)
	}
	if ps != nil {
		processorStatus = *ps
	}
	return status, processorStatus
}

// TestProcessSettlementReplay delivers the same authorization event twice.
// The first delivery settles the order; the replay must hit the
// (processor, event_key, kind) ledger and change nothing.
func TestProcessSettlementReplay(t *testing.T) {
	ctx := context.Background()
	tag := fmt.Sprintf("replay_%d", time.Now().UnixNano())
	txnID := fmt.Sprintf("pi_%s", tag)

	orderID, listingID := seedSettlementOrder(t, ctx, tag, txnID)

	evt := &providers.SettlementEvent{
		Processor: providers.ProcessorStripe,
		EventKey:  fmt.Sprintf("evt_%s", tag),
		Kind:      providers.KindAuthorized,
		TxnID:     txnID,
		Amount:    105.00,
		Currency:  "GBP",
	}

	if err := processSettlement(ctx, evt); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	status, _ := orderState(t, ctx, orderID)
	if status != string(StatusPaid) {
		t.Fatalf("expected order status %s, got %s", StatusPaid, status)
	}

	// The exact same delivery again.
	if err := processSettlement(ctx, evt); err != nil {
		t.Fatalf("replay delivery failed: %v", err)
	}

	status, _ = orderState(t, ctx, orderID)
	if status != string(StatusPaid) {
		t.Fatalf("order status changed on replay: %s", status)
	}

	var ledgerRows int
	if err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM settlement_events WHERE processor='stripe' AND event_key=$1
	`, evt.EventKey).Scan(&ledgerRows); err != nil {
		t.Fatalf("failed to count ledger rows: %v", err)
	}
	if ledgerRows != 1 {
		t.Fatalf("expected 1 ledger row, found %d", ledgerRows)
	}

	var payouts int
	if err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM payouts WHERE order_id = $1
	`, orderID).Scan(&payouts); err != nil {
		t.Fatalf("failed to count payouts: %v", err)
	}
	if payouts != 1 {
		t.Fatalf("expected 1 payout row, found %d", payouts)
	}

	var listingStatus string
	if err := db.QueryRow(ctx, `SELECT status::text FROM listings WHERE id = $1`, listingID).Scan(&listingStatus); err != nil {
		t.Fatalf("failed to read listing: %v", err)
	}
	if listingStatus != "sold" {
		t.Fatalf("expected listing sold, got %s", listingStatus)
	}
}

// TestProcessSettlementIllegalAndCapture walks a settled order through a
// stale re-authorization (illegal, absorbed without touching the order) and
// then a capture confirmation (stamps the processor's status).
func TestProcessSettlementIllegalAndCapture(t *testing.T) {
	ctx := context.Background()
	tag := fmt.Sprintf("capture_%d", time.Now().UnixNano())
	txnID := fmt.Sprintf("pi_%s", tag)

	orderID, _ := seedSettlementOrder(t, ctx, tag, txnID)

	authorize := &providers.SettlementEvent{
		Processor: providers.ProcessorStripe,
		EventKey:  fmt.Sprintf("evt_%s_auth", tag),
		Kind:      providers.KindAuthorized,
		TxnID:     txnID,
		Amount:    105.00,
		Currency:  "GBP",
	}
	if err := processSettlement(ctx, authorize); err != nil {
		t.Fatalf("authorization failed: %v", err)
	}

	// A second authorization under a fresh event key is an illegal
	// transition for a paid order: the worker records the delivery and
	// leaves the order alone.
	reauthorize := &providers.SettlementEvent{
		Processor: providers.ProcessorStripe,
		EventKey:  fmt.Sprintf("evt_%s_auth2", tag),
		Kind:      providers.KindAuthorized,
		TxnID:     txnID,
		Amount:    105.00,
		Currency:  "GBP",
	}
	if err := processSettlement(ctx, reauthorize); err != nil {
		t.Fatalf("stale authorization errored instead of absorbing: %v", err)
	}

	status, processorStatus := orderState(t, ctx, orderID)
	if status != string(StatusPaid) {
		t.Fatalf("order status moved on illegal transition: %s", status)
	}
	if processorStatus != "" {
		t.Fatalf("unexpected processor status before capture: %q", processorStatus)
	}

	var ledgerRows int
	if err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM settlement_events WHERE processor='stripe' AND order_id=$1
	`, orderID).Scan(&ledgerRows); err != nil {
		t.Fatalf("failed to count ledger rows: %v", err)
	}
	if ledgerRows != 2 {
		t.Fatalf("expected both deliveries in the ledger, found %d", ledgerRows)
	}

	capture := &providers.SettlementEvent{
		Processor: providers.ProcessorStripe,
		EventKey:  fmt.Sprintf("evt_%s_cap", tag),
		Kind:      providers.KindCaptured,
		TxnID:     txnID,
		Amount:    105.00,
		Currency:  "GBP",
	}
	if err := processSettlement(ctx, capture); err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	status, processorStatus = orderState(t, ctx, orderID)
	if status != string(StatusPaid) {
		t.Fatalf("capture moved the order status: %s", status)
	}
	if processorStatus != "captured" {
		t.Fatalf("expected processor status 'captured', got %q", processorStatus)
	}
}
