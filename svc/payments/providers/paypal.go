package providers

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// PayPalAdapter normalizes PayPal webhooks. Amounts arrive as decimal
// strings inside the resource object.
type PayPalAdapter struct{}

func (PayPalAdapter) Name() Processor { return ProcessorPayPal }

func (PayPalAdapter) VerifySignature(rawBody []byte, signatureHeader string) bool {
	return verifyWithSecret(rawBody, secrets.PayPalWebhookSecret, signatureHeader)
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID               string `json:"id"`
		SupplementaryRef string `json:"custom_id"`
		Amount           struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"resource"`
}

var paypalKinds = map[string]EventKind{
	"CHECKOUT.ORDER.APPROVED":        KindAuthorized,
	"PAYMENT.CAPTURE.COMPLETED":      KindCaptured,
	"PAYMENT.CAPTURE.DENIED":         KindCaptureFailed,
	"PAYMENT.CAPTURE.REFUNDED":       KindRefunded,
	"PAYMENT.CAPTURE.REFUND-FAILED":  KindRefundFailed,
	"PAYMENT.PAYOUTS-ITEM.SUCCEEDED": KindPayoutCompleted,
	"PAYMENT.PAYOUTS-ITEM.FAILED":    KindPayoutFailed,
	"CUSTOMER.DISPUTE.CREATED":       KindChargebackOpened,
}

func (PayPalAdapter) Normalize(rawBody []byte) (*SettlementEvent, error) {
	var evt paypalEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, ErrInvalidPayload
	}
	if evt.ID == "" || evt.EventType == "" {
		return nil, ErrInvalidPayload
	}

	kind, ok := paypalKinds[strings.ToUpper(evt.EventType)]
	if !ok {
		return nil, ErrUnrecognizedEvent
	}

	amount, _ := strconv.ParseFloat(evt.Resource.Amount.Value, 64)

	// Capture/refund resources carry the original order as custom_id; fall
	// back to the resource itself.
	txnID := evt.Resource.SupplementaryRef
	if txnID == "" {
		txnID = evt.Resource.ID
	}

	return &SettlementEvent{
		Processor:  ProcessorPayPal,
		EventKey:   evt.ID,
		Kind:       kind,
		TxnID:      txnID,
		Amount:     amount,
		Currency:   strings.ToUpper(evt.Resource.Amount.CurrencyCode),
		RawPayload: json.RawMessage(rawBody),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
