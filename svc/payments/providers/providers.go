// Package providers normalizes webhook payloads from the supported payment
// processors into settlement events. Each adapter owns its processor's wire
// vocabulary and signature scheme; everything downstream of Normalize sees
// only the canonical event kinds.
package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"encore.app/pkg/config"
	"encore.dev"
)

// Processor identifies a payment processor
type Processor string

const (
	ProcessorStripe   Processor = "stripe"
	ProcessorPayPal   Processor = "paypal"
	ProcessorMangoPay Processor = "mangopay"
	ProcessorAdyen    Processor = "adyen"
)

// EventKind is a canonical settlement event kind. Adapters map their
// processor's vocabulary onto these; nothing past the adapter ever
// branches on processor-specific event names.
type EventKind string

const (
	KindAuthorized       EventKind = "authorized"
	KindCaptureFailed    EventKind = "capture_failed"
	KindCaptured         EventKind = "captured"
	KindRefunded         EventKind = "refunded"
	KindRefundFailed     EventKind = "refund_failed"
	KindPayoutCompleted  EventKind = "payout_completed"
	KindPayoutFailed     EventKind = "payout_failed"
	KindChargebackOpened EventKind = "chargeback_opened"
)

// SettlementEvent is the normalized form of one processor webhook delivery.
// (Processor, EventKey, Kind) is the idempotency tuple: the same delivery
// repeated maps to the same tuple and is absorbed exactly once.
type SettlementEvent struct {
	Processor Processor `json:"processor"`
	// EventKey is the processor's own event or resource identifier.
	EventKey string    `json:"event_key"`
	Kind     EventKind `json:"kind"`
	// TxnID is the processor's transaction/payment reference, used to find
	// the order.
	TxnID    string  `json:"txn_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	// Carrier metadata rides along opaquely for payout events; it never
	// influences the state machine.
	CarrierRef string          `json:"carrier_ref,omitempty"`
	RawPayload json.RawMessage `json:"raw_payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ErrUnrecognizedEvent marks a payload that parsed fine but carries an
// event type we do not map. Handlers treat it as success so the provider
// stops retrying.
var ErrUnrecognizedEvent = errors.New("unrecognized event kind")

// ErrInvalidPayload marks a payload that could not be parsed at all.
var ErrInvalidPayload = errors.New("invalid payload")

// Adapter verifies and normalizes one processor's webhook deliveries
type Adapter interface {
	Name() Processor
	VerifySignature(rawBody []byte, signatureHeader string) bool
	Normalize(rawBody []byte) (*SettlementEvent, error)
}

var secrets struct {
	StripeWebhookSecret   string //encore:secret
	PayPalWebhookSecret   string //encore:secret
	MangoPayWebhookSecret string //encore:secret
	AdyenHMACKey          string //encore:secret
}

func inTestMode() bool {
	if cfg := config.GetGlobalManager(); cfg != nil {
		if settings := cfg.GetSettings(); settings != nil && settings.PaymentsTestMode {
			return true
		}
	}
	return encore.Meta().Environment.Type == encore.EnvLocal
}

// verifyHMAC checks an HMAC-SHA256 hex signature over the raw body. Accepts
// the bare 64-char hex form, the "sha256=<hex>" prefix form, and the
// "t=...,v1=<hex>" timestamped form.
func verifyHMAC(rawBody []byte, secret, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	expected := computeHMAC(rawBody, secret)

	provided := ""
	switch {
	case strings.HasPrefix(signatureHeader, "sha256="):
		if len(signatureHeader) == len("sha256=")+64 {
			provided = signatureHeader[len("sha256="):]
		}
	case strings.Contains(signatureHeader, "t=") && strings.Contains(signatureHeader, "v1="):
		for _, part := range strings.Split(signatureHeader, ",") {
			if strings.HasPrefix(part, "v1=") && len(part) == len("v1=")+64 {
				provided = part[len("v1="):]
				break
			}
		}
	case len(signatureHeader) == 64:
		provided = signatureHeader
	}
	if provided == "" {
		return false
	}

	return hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected))
}

func computeHMAC(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// verifyWithSecret wraps verifyHMAC with the shared empty-secret policy: in
// test/local mode an unconfigured secret passes, anywhere else it fails.
func verifyWithSecret(rawBody []byte, secret, signatureHeader string) bool {
	if secret == "" {
		return inTestMode()
	}
	return verifyHMAC(rawBody, secret, signatureHeader)
}

// ForName returns the adapter for a processor name, or nil if unknown
func ForName(name string) Adapter {
	switch Processor(strings.ToLower(name)) {
	case ProcessorStripe:
		return StripeAdapter{}
	case ProcessorPayPal:
		return PayPalAdapter{}
	case ProcessorMangoPay:
		return MangoPayAdapter{}
	case ProcessorAdyen:
		return AdyenAdapter{}
	default:
		return nil
	}
}
