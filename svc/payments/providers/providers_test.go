package providers

import (
	"errors"
	"testing"
)

func TestStripeNormalize(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind EventKind
		wantKey  string
		wantTxn  string
		wantErr  error
	}{
		{
			name:     "payment succeeded",
			payload:  `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_100","amount":12550,"currency":"gbp"}}}`,
			wantKind: KindAuthorized,
			wantKey:  "evt_1",
			wantTxn:  "pi_100",
		},
		{
			name:     "charge refunded references intent",
			payload:  `{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_7","payment_intent":"pi_100","amount":12550,"currency":"gbp"}}}`,
			wantKind: KindRefunded,
			wantKey:  "evt_2",
			wantTxn:  "pi_100",
		},
		{
			name:     "dispute opened",
			payload:  `{"id":"evt_3","type":"charge.dispute.created","data":{"object":{"id":"dp_1","payment_intent":"pi_100","amount":12550,"currency":"gbp"}}}`,
			wantKind: KindChargebackOpened,
			wantKey:  "evt_3",
			wantTxn:  "pi_100",
		},
		{
			name:    "unrecognized event type",
			payload: `{"id":"evt_4","type":"customer.created","data":{"object":{"id":"cus_1"}}}`,
			wantErr: ErrUnrecognizedEvent,
		},
		{
			name:    "not json",
			payload: `this is not json`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "missing event id",
			payload: `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`,
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := StripeAdapter{}.Normalize([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt.Processor != ProcessorStripe {
				t.Errorf("processor = %s", evt.Processor)
			}
			if evt.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", evt.Kind, tt.wantKind)
			}
			if evt.EventKey != tt.wantKey {
				t.Errorf("event key = %s, want %s", evt.EventKey, tt.wantKey)
			}
			if evt.TxnID != tt.wantTxn {
				t.Errorf("txn id = %s, want %s", evt.TxnID, tt.wantTxn)
			}
		})
	}
}

func TestStripeAmountConversion(t *testing.T) {
	payload := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":12550,"currency":"gbp"}}}`
	evt, err := StripeAdapter{}.Normalize([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Amount != 125.50 {
		t.Errorf("amount = %.2f, want 125.50", evt.Amount)
	}
	if evt.Currency != "GBP" {
		t.Errorf("currency = %s, want GBP", evt.Currency)
	}
}

func TestPayPalNormalize(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind EventKind
		wantTxn  string
		wantErr  error
	}{
		{
			name:     "order approved",
			payload:  `{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORD-9","amount":{"value":"200.00","currency_code":"GBP"}}}`,
			wantKind: KindAuthorized,
			wantTxn:  "ORD-9",
		},
		{
			name:     "capture refunded uses custom id",
			payload:  `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.REFUNDED","resource":{"id":"RF-1","custom_id":"ORD-9","amount":{"value":"200.00","currency_code":"GBP"}}}`,
			wantKind: KindRefunded,
			wantTxn:  "ORD-9",
		},
		{
			name:     "payout succeeded",
			payload:  `{"id":"WH-3","event_type":"PAYMENT.PAYOUTS-ITEM.SUCCEEDED","resource":{"id":"PO-1","custom_id":"ORD-9","amount":{"value":"180.00","currency_code":"GBP"}}}`,
			wantKind: KindPayoutCompleted,
			wantTxn:  "ORD-9",
		},
		{
			name:    "unrecognized",
			payload: `{"id":"WH-4","event_type":"BILLING.PLAN.CREATED","resource":{}}`,
			wantErr: ErrUnrecognizedEvent,
		},
		{
			name:    "unparseable",
			payload: `{{{`,
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := PayPalAdapter{}.Normalize([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", evt.Kind, tt.wantKind)
			}
			if evt.TxnID != tt.wantTxn {
				t.Errorf("txn id = %s, want %s", evt.TxnID, tt.wantTxn)
			}
		})
	}
}

func TestMangoPayNormalize(t *testing.T) {
	payload := `{"EventType":"PAYIN_NORMAL_SUCCEEDED","RessourceId":"8771","Date":1693526400}`
	evt, err := MangoPayAdapter{}.Normalize([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Kind != KindAuthorized {
		t.Errorf("kind = %s, want %s", evt.Kind, KindAuthorized)
	}
	if evt.EventKey != "PAYIN_NORMAL_SUCCEEDED:8771" {
		t.Errorf("event key = %s", evt.EventKey)
	}
	if evt.TxnID != "8771" {
		t.Errorf("txn id = %s", evt.TxnID)
	}

	if _, err := (MangoPayAdapter{}).Normalize([]byte(`{"EventType":"KYC_SUCCEEDED","RessourceId":"1"}`)); !errors.Is(err, ErrUnrecognizedEvent) {
		t.Errorf("expected ErrUnrecognizedEvent, got %v", err)
	}
	if _, err := (MangoPayAdapter{}).Normalize([]byte(`{"EventType":"PAYIN_NORMAL_SUCCEEDED"}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for missing resource, got %v", err)
	}
}

func TestAdyenNormalize(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind EventKind
		wantTxn  string
		wantErr  error
	}{
		{
			name:     "successful authorisation",
			payload:  `{"notificationItems":[{"NotificationRequestItem":{"eventCode":"AUTHORISATION","pspReference":"883A","success":"true","amount":{"value":20000,"currency":"GBP"}}}]}`,
			wantKind: KindAuthorized,
			wantTxn:  "883A",
		},
		{
			name:     "failed authorisation",
			payload:  `{"notificationItems":[{"NotificationRequestItem":{"eventCode":"AUTHORISATION","pspReference":"883B","success":"false","amount":{"value":20000,"currency":"GBP"}}}]}`,
			wantKind: KindCaptureFailed,
			wantTxn:  "883B",
		},
		{
			name:     "refund references original",
			payload:  `{"notificationItems":[{"NotificationRequestItem":{"eventCode":"REFUND","pspReference":"994C","originalReference":"883A","success":"true","amount":{"value":20000,"currency":"GBP"}}}]}`,
			wantKind: KindRefunded,
			wantTxn:  "883A",
		},
		{
			name:     "chargeback",
			payload:  `{"notificationItems":[{"NotificationRequestItem":{"eventCode":"CHARGEBACK","pspReference":"995D","originalReference":"883A","success":"true","amount":{"value":20000,"currency":"GBP"}}}]}`,
			wantKind: KindChargebackOpened,
			wantTxn:  "883A",
		},
		{
			name:    "no items",
			payload: `{"notificationItems":[]}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "unknown event code",
			payload: `{"notificationItems":[{"NotificationRequestItem":{"eventCode":"REPORT_AVAILABLE","pspReference":"1","success":"true"}}]}`,
			wantErr: ErrUnrecognizedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := AdyenAdapter{}.Normalize([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", evt.Kind, tt.wantKind)
			}
			if evt.TxnID != tt.wantTxn {
				t.Errorf("txn id = %s, want %s", evt.TxnID, tt.wantTxn)
			}
		})
	}
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	sig := computeHMAC(body, secret)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"bare hex signature", sig, true},
		{"sha256 prefix", "sha256=" + sig, true},
		{"timestamped form", "t=1693526400,v1=" + sig, true},
		{"wrong signature", "sha256=" + computeHMAC([]byte("other"), secret), false},
		{"empty header", "", false},
		{"garbage header", "not-a-signature", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifyHMAC(body, secret, tt.header); got != tt.want {
				t.Errorf("verifyHMAC = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"stripe", "paypal", "mangopay", "adyen"} {
		if a := ForName(name); a == nil {
			t.Errorf("ForName(%q) = nil", name)
		} else if string(a.Name()) != name {
			t.Errorf("ForName(%q).Name() = %s", name, a.Name())
		}
	}
	if a := ForName("worldpay"); a != nil {
		t.Errorf("expected nil adapter for unknown processor, got %v", a.Name())
	}
}
