package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MangoPayAdapter normalizes MangoPay hook notifications. These are thin:
// an event type and a resource id, no amounts. The worker resolves amounts
// from the order when applying the event.
type MangoPayAdapter struct{}

func (MangoPayAdapter) Name() Processor { return ProcessorMangoPay }

func (MangoPayAdapter) VerifySignature(rawBody []byte, signatureHeader string) bool {
	return verifyWithSecret(rawBody, secrets.MangoPayWebhookSecret, signatureHeader)
}

type mangopayEvent struct {
	EventType  string `json:"EventType"`
	ResourceID string `json:"RessourceId"`
	Date       int64  `json:"Date"`
}

var mangopayKinds = map[string]EventKind{
	"PAYIN_NORMAL_SUCCEEDED":  KindAuthorized,
	"PAYIN_NORMAL_FAILED":     KindCaptureFailed,
	"PAYIN_REFUND_SUCCEEDED":  KindRefunded,
	"PAYIN_REFUND_FAILED":     KindRefundFailed,
	"PAYOUT_NORMAL_SUCCEEDED": KindPayoutCompleted,
	"PAYOUT_NORMAL_FAILED":    KindPayoutFailed,
	"DISPUTE_CREATED":         KindChargebackOpened,
}

func (MangoPayAdapter) Normalize(rawBody []byte) (*SettlementEvent, error) {
	var evt mangopayEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, ErrInvalidPayload
	}
	if evt.EventType == "" || evt.ResourceID == "" {
		return nil, ErrInvalidPayload
	}

	kind, ok := mangopayKinds[strings.ToUpper(evt.EventType)]
	if !ok {
		return nil, ErrUnrecognizedEvent
	}

	// MangoPay has no distinct event id; the type+resource pair is the
	// closest stable identity for one delivery.
	return &SettlementEvent{
		Processor:  ProcessorMangoPay,
		EventKey:   fmt.Sprintf("%s:%s", strings.ToUpper(evt.EventType), evt.ResourceID),
		Kind:       kind,
		TxnID:      evt.ResourceID,
		Currency:   "GBP",
		RawPayload: json.RawMessage(rawBody),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
