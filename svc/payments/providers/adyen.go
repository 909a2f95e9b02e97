package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"encore.app/pkg/money"
)

// AdyenAdapter normalizes Adyen notification webhooks. A delivery wraps a
// list of notification items; the first item carries the event. Success is
// a separate flag, so one event code can map to two canonical kinds.
type AdyenAdapter struct{}

func (AdyenAdapter) Name() Processor { return ProcessorAdyen }

func (AdyenAdapter) VerifySignature(rawBody []byte, signatureHeader string) bool {
	return verifyWithSecret(rawBody, secrets.AdyenHMACKey, signatureHeader)
}

type adyenNotification struct {
	NotificationItems []struct {
		NotificationRequestItem struct {
			EventCode         string `json:"eventCode"`
			PSPReference      string `json:"pspReference"`
			OriginalReference string `json:"originalReference"`
			Success           string `json:"success"`
			Amount            struct {
				Value    int64  `json:"value"`
				Currency string `json:"currency"`
			} `json:"amount"`
			AdditionalData map[string]string `json:"additionalData"`
		} `json:"NotificationRequestItem"`
	} `json:"notificationItems"`
}

func (AdyenAdapter) Normalize(rawBody []byte) (*SettlementEvent, error) {
	var n adyenNotification
	if err := json.Unmarshal(rawBody, &n); err != nil {
		return nil, ErrInvalidPayload
	}
	if len(n.NotificationItems) == 0 {
		return nil, ErrInvalidPayload
	}

	item := n.NotificationItems[0].NotificationRequestItem
	if item.EventCode == "" || item.PSPReference == "" {
		return nil, ErrInvalidPayload
	}
	success := strings.EqualFold(item.Success, "true")

	var kind EventKind
	switch strings.ToUpper(item.EventCode) {
	case "AUTHORISATION":
		if success {
			kind = KindAuthorized
		} else {
			kind = KindCaptureFailed
		}
	case "CAPTURE":
		if success {
			kind = KindCaptured
		} else {
			kind = KindCaptureFailed
		}
	case "REFUND":
		if success {
			kind = KindRefunded
		} else {
			kind = KindRefundFailed
		}
	case "CHARGEBACK":
		kind = KindChargebackOpened
	case "PAYOUT_THIRDPARTY":
		if success {
			kind = KindPayoutCompleted
		} else {
			kind = KindPayoutFailed
		}
	default:
		return nil, ErrUnrecognizedEvent
	}

	// Follow-up events reference the original authorisation.
	txnID := item.OriginalReference
	if txnID == "" {
		txnID = item.PSPReference
	}

	return &SettlementEvent{
		Processor:  ProcessorAdyen,
		EventKey:   fmt.Sprintf("%s:%s", item.PSPReference, strings.ToUpper(item.EventCode)),
		Kind:       kind,
		TxnID:      txnID,
		Amount:     money.FromPence(item.Amount.Value),
		Currency:   strings.ToUpper(item.Amount.Currency),
		CarrierRef: item.AdditionalData["payoutReference"],
		RawPayload: json.RawMessage(rawBody),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
