package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"encore.dev/pubsub"
	"encore.dev/storage/sqldb"

	"encore.app/pkg/archive"
	"encore.app/pkg/audit"
	"encore.app/pkg/config"
	"encore.app/pkg/metrics"
	"encore.app/svc/notifications"
	"encore.app/svc/payments/providers"
)

var db = sqldb.Named("coredb")

// Initialize dynamic configuration for subscriptions that may run without
// going through service initialization first.
func init() {
	if config.GetGlobalManager() == nil {
		config.Initialize(db, 5*time.Minute)
	}
}

var secrets struct {
	ArchiveCredentialsJSON string //encore:secret
}

//encore:service
type Service struct{}

func initService() (*Service, error) {
	_ = config.Initialize(db, 5*time.Minute)

	// Archival is optional; the settlement path never depends on it.
	if cfg := config.GetSettings(); cfg != nil && cfg.ArchiveEnabled && cfg.ArchiveBucket != "" {
		client, err := archive.NewClient(context.Background(), archive.Config{
			BucketName:     cfg.ArchiveBucket,
			CredentialsKey: secrets.ArchiveCredentialsJSON,
		})
		if err != nil {
			fmt.Printf("[payments] archive client unavailable: %v\n", err)
		} else {
			archive.SetDefault(client)
		}
	}
	return &Service{}, nil
}

// SettlementEvents carries normalized processor events from the webhook
// endpoints to the settlement worker. At-least-once delivery is fine: the
// (processor, event_key, kind) ledger absorbs replays.
var SettlementEvents = pubsub.NewTopic[*providers.SettlementEvent]("settlement-events", pubsub.TopicConfig{DeliveryGuarantee: pubsub.AtLeastOnce})

var _ = pubsub.NewSubscription(SettlementEvents, "settlement-worker", pubsub.SubscriptionConfig[*providers.SettlementEvent]{
	Handler: processSettlement,
})

//encore:api public raw method=POST path=/payments/webhook/stripe
func StripeWebhook(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, providers.ForName("stripe"), r.Header.Get("Stripe-Signature"))
}

//encore:api public raw method=POST path=/payments/webhook/paypal
func PayPalWebhook(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, providers.ForName("paypal"), r.Header.Get("Paypal-Transmission-Sig"))
}

//encore:api public raw method=POST path=/payments/webhook/mangopay
func MangoPayWebhook(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, providers.ForName("mangopay"), r.Header.Get("X-Mangopay-Signature"))
}

//encore:api public raw method=POST path=/payments/webhook/adyen
func AdyenWebhook(w http.ResponseWriter, r *http.Request) {
	handleWebhook(w, r, providers.ForName("adyen"), r.Header.Get("X-Adyen-HmacSignature"))
}

// handleWebhook is the shared ingress path: verify, normalize, publish,
// acknowledge. State never changes here; the subscription worker owns the
// ledger.
func handleWebhook(w http.ResponseWriter, r *http.Request, adapter providers.Adapter, signature string) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, `{"code":"PAY_INVALID_PAYLOAD","message":"failed to read webhook body"}`)
		return
	}

	if !adapter.VerifySignature(raw, signature) {
		writeJSON(w, http.StatusUnauthorized, `{"code":"PAY_INVALID_SIGNATURE","message":"invalid webhook signature"}`)
		return
	}

	evt, err := adapter.Normalize(raw)
	if err != nil {
		if errors.Is(err, providers.ErrUnrecognizedEvent) {
			// Parsed fine but not a kind we act on. Acknowledge so the
			// processor stops retrying.
			metrics.WebhookEventsTotal.WithLabelValues(string(adapter.Name()), "unrecognized").Inc()
			writeJSON(w, http.StatusOK, "{}")
			return
		}
		writeJSON(w, http.StatusBadRequest, `{"code":"PAY_INVALID_PAYLOAD","message":"unparseable webhook payload"}`)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(evt.Processor), string(evt.Kind)).Inc()
	archive.StoreWebhookPayloadAsync(string(evt.Processor), evt.EventKey, raw)

	if _, err := SettlementEvents.Publish(r.Context(), evt); err != nil {
		// Let the processor retry; nothing was recorded yet.
		writeJSON(w, http.StatusServiceUnavailable, `{"code":"PAY_QUEUE_UNAVAILABLE","message":"event queue unavailable"}`)
		return
	}

	writeJSON(w, http.StatusOK, "{}")
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// orderRow is the locked snapshot the settlement transaction works on
type orderRow struct {
	ID           int64
	Status       OrderStatus
	BuyerID      int64
	SellerID     int64
	ListingID    int64
	GrossAmount  float64
	PayoutAmount float64
}

// settlementOutcome is what the transaction reports back for post-commit
// side effects. Notifications and audit trail run after commit so their
// failures can never roll back ledger state.
type settlementOutcome struct {
	order      orderRow
	transition Transition
	illegal    bool
	payoutHeld bool
}

func processSettlement(ctx context.Context, evt *providers.SettlementEvent) error {
	var out settlementOutcome

	err := withTx(ctx, func(tx *sql.Tx) error {
		var o orderRow
		err := tx.QueryRowContext(ctx, `
			SELECT id, status::text, buyer_id, seller_id, listing_id, gross_amount, payout_amount
			FROM orders WHERE processor=$1 AND processor_txn_id=$2 FOR UPDATE
		`, string(evt.Processor), evt.TxnID).Scan(&o.ID, &o.Status, &o.BuyerID, &o.SellerID, &o.ListingID, &o.GrossAmount, &o.PayoutAmount)
		if err == sql.ErrNoRows {
			// Transaction reference we never issued. Absorb it; retrying
			// will not make the order appear.
			fmt.Printf("[settlement] %s event %s references unknown txn %s\n", evt.Processor, evt.EventKey, evt.TxnID)
			return nil
		}
		if err != nil {
			return err
		}

		// Idempotency ledger insert; atomic with the transition below.
		var ledgerID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO settlement_events (processor, event_key, kind, order_id, raw_payload)
			VALUES ($1, $2, $3, $4, COALESCE($5::jsonb, '{}'::jsonb))
			ON CONFLICT (processor, event_key, kind) DO NOTHING
			RETURNING id
		`, string(evt.Processor), evt.EventKey, string(evt.Kind), o.ID, nullableJSON(evt.RawPayload)).Scan(&ledgerID)
		if err == sql.ErrNoRows {
			metrics.SettlementDuplicatesTotal.WithLabelValues(string(evt.Processor)).Inc()
			return nil
		}
		if err != nil {
			return err
		}

		trans, err := Apply(o.Status, evt.Kind)
		if err != nil {
			// The ledger row stays: the delivery was received and judged.
			// The order is untouched and the processor sees success.
			metrics.IllegalTransitionsTotal.WithLabelValues(string(o.Status), string(evt.Kind)).Inc()
			out = settlementOutcome{order: o, illegal: true}
			return nil
		}
		out = settlementOutcome{order: o, transition: trans}

		if trans.Changed {
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET status=$1, updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC') WHERE id=$2
			`, string(trans.Next), o.ID); err != nil {
				return err
			}
		}

		switch trans.Effect {
		case EffectPaymentReceived:
			if _, err := tx.ExecContext(ctx, `
				UPDATE listings SET status='sold', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC') WHERE id=$1
			`, o.ListingID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO payouts (order_id, amount, carrier, status) VALUES ($1, $2, $3, 'initiated')
			`, o.ID, o.PayoutAmount, string(evt.Processor)); err != nil {
				return err
			}

		case EffectReleaseListing:
			if _, err := tx.ExecContext(ctx, `
				UPDATE listings SET status='available', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
				WHERE id=$1 AND status='reserved'
			`, o.ListingID); err != nil {
				return err
			}

		case EffectNotifyBuyerRefund:
			refunded := evt.Amount
			if refunded <= 0 {
				refunded = o.GrossAmount
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET refunded_amount=$1, updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC') WHERE id=$2
			`, refunded, o.ID); err != nil {
				return err
			}
			// A refunded order must not pay out.
			if _, err := tx.ExecContext(ctx, `
				UPDATE payouts SET frozen=TRUE, updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
				WHERE order_id=$1 AND status='initiated'
			`, o.ID); err != nil {
				return err
			}

		case EffectDisputeOpened:
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET dispute_reason='chargeback_opened', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC') WHERE id=$1
			`, o.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE payouts SET frozen=TRUE, updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
				WHERE order_id=$1 AND status='initiated'
			`, o.ID); err != nil {
				return err
			}

		case EffectPayoutCompleted:
			res, err := tx.ExecContext(ctx, `
				UPDATE payouts SET status='completed', carrier_ref=COALESCE(NULLIF($1,''), carrier_ref),
				       updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
				WHERE order_id=$2 AND status='initiated' AND NOT frozen
			`, evt.CarrierRef, o.ID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				// Frozen or already settled; the completion report needs
				// human eyes.
				out.payoutHeld = true
			}

		case EffectPayoutFailed:
			if _, err := tx.ExecContext(ctx, `
				UPDATE payouts SET status='failed', carrier_ref=COALESCE(NULLIF($1,''), carrier_ref),
				       updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
				WHERE order_id=$2 AND status='initiated'
			`, evt.CarrierRef, o.ID); err != nil {
				return err
			}

		case EffectMarkCaptured:
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET processor_status='captured', updated_at=(CURRENT_TIMESTAMP AT TIME ZONE 'UTC') WHERE id=$1
			`, o.ID); err != nil {
				return err
			}
		}

		metrics.SettlementTransitionsTotal.WithLabelValues(string(o.Status), string(evt.Kind)).Inc()
		return nil
	})
	if err != nil {
		return err
	}

	if out.order.ID != 0 {
		notifySettlement(ctx, evt, out)
	}
	return nil
}

// notifySettlement runs post-commit side effects. Every call here is
// best-effort: the ledger state is already committed and failures only get
// logged.
func notifySettlement(ctx context.Context, evt *providers.SettlementEvent, out settlementOutcome) {
	o := out.order

	if out.illegal {
		_, _ = audit.Log(ctx, db, audit.Entry{
			Action:     "settlement.illegal_transition",
			EntityType: "order",
			EntityID:   fmt.Sprint(o.ID),
			Meta: map[string]interface{}{
				"processor": string(evt.Processor),
				"event_key": evt.EventKey,
				"kind":      string(evt.Kind),
				"status":    string(o.Status),
			},
		})
		notifyAdmins(ctx, "settlement_illegal_transition", map[string]interface{}{
			"order_id":  o.ID,
			"processor": string(evt.Processor),
			"kind":      string(evt.Kind),
			"status":    string(o.Status),
		})
		return
	}

	switch out.transition.Effect {
	case EffectPaymentReceived:
		if _, err := notifications.EnqueueInternal(ctx, o.SellerID, "payment_received", map[string]interface{}{
			"order_id": o.ID,
			"amount":   o.GrossAmount,
		}); err != nil {
			fmt.Printf("[settlement] notify seller %d failed: %v\n", o.SellerID, err)
		}
		if _, err := notifications.EnqueueEmail(ctx, o.BuyerID, "order_paid", map[string]interface{}{
			"order_id": o.ID,
		}); err != nil {
			fmt.Printf("[settlement] notify buyer %d failed: %v\n", o.BuyerID, err)
		}

	case EffectReleaseListing:
		if _, err := notifications.EnqueueInternal(ctx, o.BuyerID, "payment_failed", map[string]interface{}{
			"order_id":   o.ID,
			"listing_id": o.ListingID,
		}); err != nil {
			fmt.Printf("[settlement] notify buyer %d failed: %v\n", o.BuyerID, err)
		}

	case EffectNotifyBuyerRefund:
		refunded := evt.Amount
		if refunded <= 0 {
			refunded = o.GrossAmount
		}
		if _, err := notifications.EnqueueEmail(ctx, o.BuyerID, "order_refunded", map[string]interface{}{
			"order_id": o.ID,
			"amount":   refunded,
		}); err != nil {
			fmt.Printf("[settlement] notify buyer %d failed: %v\n", o.BuyerID, err)
		}

	case EffectDisputeOpened:
		notifyAdmins(ctx, "order_disputed", map[string]interface{}{
			"order_id":  o.ID,
			"processor": string(evt.Processor),
		})

	case EffectPayoutFailed:
		notifyAdmins(ctx, "payout_failed", map[string]interface{}{
			"order_id":    o.ID,
			"carrier_ref": evt.CarrierRef,
		})

	case EffectFlagRefundForReview:
		notifyAdmins(ctx, "refund_failed", map[string]interface{}{
			"order_id": o.ID,
		})

	case EffectPayoutCompleted:
		if _, err := notifications.EnqueueInternal(ctx, o.SellerID, "payout_completed", map[string]interface{}{
			"order_id": o.ID,
			"amount":   o.PayoutAmount,
		}); err != nil {
			fmt.Printf("[settlement] notify seller %d failed: %v\n", o.SellerID, err)
		}
	}

	if out.payoutHeld {
		notifyAdmins(ctx, "payout_completion_held", map[string]interface{}{
			"order_id":  o.ID,
			"processor": string(evt.Processor),
			"event_key": evt.EventKey,
		})
	}
}

func notifyAdmins(ctx context.Context, templateID string, payload map[string]interface{}) {
	rows, err := db.Stdlib().QueryContext(ctx, `SELECT id FROM users WHERE role='admin'`)
	if err != nil {
		fmt.Printf("[settlement] admin lookup failed: %v\n", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var adminID int64
		if err := rows.Scan(&adminID); err != nil {
			continue
		}
		if _, err := notifications.EnqueueInternal(ctx, adminID, templateID, payload); err != nil {
			fmt.Printf("[settlement] notify admin %d failed: %v\n", adminID, err)
		}
	}
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	std := db.Stdlib()
	tx, err := std.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
