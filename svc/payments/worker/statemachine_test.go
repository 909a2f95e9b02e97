package worker

import (
	"errors"
	"testing"

	"encore.app/svc/payments/providers"
)

func TestApplyLegalTransitions(t *testing.T) {
	tests := []struct {
		name        string
		current     OrderStatus
		kind        providers.EventKind
		wantNext    OrderStatus
		wantChanged bool
		wantEffect  SideEffect
	}{
		{"created pays", StatusCreated, providers.KindAuthorized, StatusPaid, true, EffectPaymentReceived},
		{"awaiting payment pays", StatusAwaitingPayment, providers.KindAuthorized, StatusPaid, true, EffectPaymentReceived},
		{"created fails", StatusCreated, providers.KindCaptureFailed, StatusPaymentFailed, true, EffectReleaseListing},
		{"awaiting payment fails", StatusAwaitingPayment, providers.KindCaptureFailed, StatusPaymentFailed, true, EffectReleaseListing},
		{"capture confirmation stamps the processor state", StatusPaid, providers.KindCaptured, StatusPaid, false, EffectMarkCaptured},
		{"late capture after shipping", StatusShipped, providers.KindCaptured, StatusShipped, false, EffectMarkCaptured},
		{"paid refunds", StatusPaid, providers.KindRefunded, StatusRefunded, true, EffectNotifyBuyerRefund},
		{"refund after delivery", StatusDelivered, providers.KindRefunded, StatusRefunded, true, EffectNotifyBuyerRefund},
		{"refund failure flags review", StatusPaid, providers.KindRefundFailed, StatusPaid, false, EffectFlagRefundForReview},
		{"chargeback disputes", StatusPaid, providers.KindChargebackOpened, StatusDisputed, true, EffectDisputeOpened},
		{"chargeback after shipping", StatusShipped, providers.KindChargebackOpened, StatusDisputed, true, EffectDisputeOpened},
		{"payout completed keeps order state", StatusPaid, providers.KindPayoutCompleted, StatusPaid, false, EffectPayoutCompleted},
		{"payout failed keeps order state", StatusPaid, providers.KindPayoutFailed, StatusPaid, false, EffectPayoutFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Apply(tt.current, tt.kind)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.Next != tt.wantNext {
				t.Errorf("next = %s, want %s", tr.Next, tt.wantNext)
			}
			if tr.Changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", tr.Changed, tt.wantChanged)
			}
			if tr.Effect != tt.wantEffect {
				t.Errorf("effect = %s, want %s", tr.Effect, tt.wantEffect)
			}
		})
	}
}

func TestApplyIllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current OrderStatus
		kind    providers.EventKind
	}{
		{"refunded cannot re-authorize", StatusRefunded, providers.KindAuthorized},
		{"refunded cannot refund again", StatusRefunded, providers.KindRefunded},
		{"payment_failed cannot capture", StatusPaymentFailed, providers.KindCaptured},
		{"disputed cannot authorize", StatusDisputed, providers.KindAuthorized},
		{"cancelled cannot pay", StatusCancelled, providers.KindAuthorized},
		{"created cannot refund", StatusCreated, providers.KindRefunded},
		{"created cannot receive payout", StatusCreated, providers.KindPayoutCompleted},
		{"unknown kind", StatusPaid, providers.EventKind("bogus")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.current, tt.kind)
			if !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("expected ErrIllegalTransition, got %v", err)
			}
		})
	}
}

func TestApplyNeverRegressesTerminalStates(t *testing.T) {
	terminal := []OrderStatus{StatusRefunded, StatusPaymentFailed, StatusCancelled}
	kinds := []providers.EventKind{
		providers.KindAuthorized,
		providers.KindCaptureFailed,
		providers.KindCaptured,
		providers.KindRefunded,
		providers.KindChargebackOpened,
	}

	for _, state := range terminal {
		for _, kind := range kinds {
			if tr, err := Apply(state, kind); err == nil && tr.Next != state {
				t.Errorf("%s + %s moved to %s; terminal states must not move", state, kind, tr.Next)
			}
		}
	}
}
