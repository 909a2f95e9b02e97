package worker

import (
	"errors"
	"fmt"

	"encore.app/svc/payments/providers"
)

// OrderStatus is the settlement state of an order
type OrderStatus string

const (
	StatusCreated         OrderStatus = "created"
	StatusAwaitingPayment OrderStatus = "awaiting_payment"
	StatusPaid            OrderStatus = "paid"
	StatusShipped         OrderStatus = "shipped"
	StatusDelivered       OrderStatus = "delivered"
	StatusCancelled       OrderStatus = "cancelled"
	StatusPaymentFailed   OrderStatus = "payment_failed"
	StatusRefunded        OrderStatus = "refunded"
	StatusDisputed        OrderStatus = "disputed"
)

// SideEffect names the non-state consequence of a transition. The worker
// executes ledger effects inside the transaction and notification effects
// after commit.
type SideEffect string

const (
	EffectNone                SideEffect = ""
	EffectPaymentReceived     SideEffect = "payment_received"    // mark listing sold, notify seller, open payout
	EffectReleaseListing      SideEffect = "release_listing"     // reactivate the listing
	EffectMarkCaptured        SideEffect = "mark_captured"       // stamp processor_status on the order
	EffectNotifyBuyerRefund   SideEffect = "notify_buyer_refund" // refund applied
	EffectDisputeOpened       SideEffect = "dispute_opened"      // notify admins, freeze payout
	EffectPayoutCompleted     SideEffect = "payout_completed"    // payout record → completed, notify seller
	EffectPayoutFailed        SideEffect = "payout_failed"       // payout record → failed, flag admin review
	EffectFlagRefundForReview SideEffect = "flag_refund_for_review"
)

// Transition describes the outcome of applying one event to one order state
type Transition struct {
	Next    OrderStatus
	Changed bool
	Effect  SideEffect
}

// ErrIllegalTransition marks an event that does not fit the order's current
// state. The caller logs and alerts but still acknowledges the delivery.
var ErrIllegalTransition = errors.New("illegal transition")

// Apply computes the transition for (current state, event kind). It is pure:
// all ledger writes and notifications derive from the returned Transition.
// The function never branches on processor identity.
func Apply(current OrderStatus, kind providers.EventKind) (Transition, error) {
	switch kind {
	case providers.KindAuthorized:
		if current == StatusCreated || current == StatusAwaitingPayment {
			return Transition{Next: StatusPaid, Changed: true, Effect: EffectPaymentReceived}, nil
		}

	case providers.KindCaptureFailed:
		if current == StatusCreated || current == StatusAwaitingPayment {
			return Transition{Next: StatusPaymentFailed, Changed: true, Effect: EffectReleaseListing}, nil
		}

	case providers.KindCaptured:
		// Capture confirmations can trail the authorization by days; they
		// stamp the processor's view on the order without moving our state.
		if current == StatusPaid || current == StatusShipped || current == StatusDelivered {
			return Transition{Next: current, Changed: false, Effect: EffectMarkCaptured}, nil
		}

	case providers.KindRefunded:
		if current == StatusPaid || current == StatusShipped || current == StatusDelivered {
			return Transition{Next: StatusRefunded, Changed: true, Effect: EffectNotifyBuyerRefund}, nil
		}

	case providers.KindRefundFailed:
		if current == StatusPaid || current == StatusShipped || current == StatusDelivered {
			return Transition{Next: current, Changed: false, Effect: EffectFlagRefundForReview}, nil
		}

	case providers.KindChargebackOpened:
		if current == StatusPaid || current == StatusShipped || current == StatusDelivered {
			return Transition{Next: StatusDisputed, Changed: true, Effect: EffectDisputeOpened}, nil
		}

	case providers.KindPayoutCompleted:
		if current == StatusPaid || current == StatusShipped || current == StatusDelivered {
			return Transition{Next: current, Changed: false, Effect: EffectPayoutCompleted}, nil
		}

	case providers.KindPayoutFailed:
		if current == StatusPaid || current == StatusShipped || current == StatusDelivered {
			return Transition{Next: current, Changed: false, Effect: EffectPayoutFailed}, nil
		}

	default:
		return Transition{}, fmt.Errorf("unknown event kind %q: %w", kind, ErrIllegalTransition)
	}

	return Transition{}, fmt.Errorf("%s does not accept %s: %w", current, kind, ErrIllegalTransition)
}
