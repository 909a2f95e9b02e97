package providers

import (
	"encoding/json"
	"strings"
	"time"

	"encore.app/pkg/money"
)

// StripeAdapter normalizes Stripe-style card processor webhooks. Events
// arrive as a typed envelope with the affected object nested under data.
type StripeAdapter struct{}

func (StripeAdapter) Name() Processor { return ProcessorStripe }

func (StripeAdapter) VerifySignature(rawBody []byte, signatureHeader string) bool {
	return verifyWithSecret(rawBody, secrets.StripeWebhookSecret, signatureHeader)
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			Amount        int64  `json:"amount"`
			Currency      string `json:"currency"`
		} `json:"object"`
	} `json:"data"`
}

var stripeKinds = map[string]EventKind{
	"payment_intent.succeeded":      KindAuthorized,
	"payment_intent.payment_failed": KindCaptureFailed,
	"charge.captured":               KindCaptured,
	"charge.refunded":               KindRefunded,
	"refund.failed":                 KindRefundFailed,
	"charge.dispute.created":        KindChargebackOpened,
	"payout.paid":                   KindPayoutCompleted,
	"payout.failed":                 KindPayoutFailed,
}

func (StripeAdapter) Normalize(rawBody []byte) (*SettlementEvent, error) {
	var evt stripeEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, ErrInvalidPayload
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, ErrInvalidPayload
	}

	kind, ok := stripeKinds[evt.Type]
	if !ok {
		return nil, ErrUnrecognizedEvent
	}

	// Charge events reference their payment intent; intent events are the
	// transaction themselves.
	txnID := evt.Data.Object.PaymentIntent
	if txnID == "" {
		txnID = evt.Data.Object.ID
	}

	return &SettlementEvent{
		Processor:  ProcessorStripe,
		EventKey:   evt.ID,
		Kind:       kind,
		TxnID:      txnID,
		Amount:     money.FromPence(evt.Data.Object.Amount),
		Currency:   strings.ToUpper(evt.Data.Object.Currency),
		RawPayload: json.RawMessage(rawBody),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
