// Package fees computes the buyer fee, seller commission and net payout for an
// order. The computation runs exactly once, at order-creation time, against a
// FeeConfig snapshot; the resulting amounts are persisted on the order and
// never recomputed when the platform-wide configuration changes later.
package fees

import (
	"fmt"

	"encore.app/pkg/money"
)

// CommissionMode selects how the seller commission is computed.
// The mode is always explicit on the config; it is never inferred from
// which rate fields happen to be set.
type CommissionMode string

const (
	CommissionPercentage CommissionMode = "percentage"
	CommissionFixed      CommissionMode = "fixed"
)

// FeeConfig is a point-in-time snapshot of the platform fee configuration.
type FeeConfig struct {
	BuyerFee        float64        `json:"buyer_fee"`
	CommissionMode  CommissionMode `json:"commission_mode"`
	CommissionRate  float64        `json:"commission_rate"`  // percent, used in percentage mode
	CommissionFixed float64        `json:"commission_fixed"` // pounds, used in fixed mode
}

// Settlement holds the amounts computed from one gross amount and one FeeConfig.
type Settlement struct {
	BuyerFee         float64 `json:"buyer_fee"`
	SellerCommission float64 `json:"seller_commission"`
	PayoutAmount     float64 `json:"payout_amount"`
	TotalCharged     float64 `json:"total_charged"`
}

// ComputeSettlement derives the settlement amounts for a gross listing amount.
// The buyer fee is flat and charged on top of the gross (it never reduces the
// seller payout). The commission is deducted from the gross to produce the
// payout. All amounts are rounded half-up to 2 decimal places.
func ComputeSettlement(grossAmount float64, cfg FeeConfig) (*Settlement, error) {
	if grossAmount < 0 {
		return nil, fmt.Errorf("gross amount must not be negative: %.2f", grossAmount)
	}

	var commission float64
	switch cfg.CommissionMode {
	case CommissionPercentage:
		commission = money.RoundHalfUp(grossAmount*cfg.CommissionRate/100.0, 2)
	case CommissionFixed:
		commission = money.RoundHalfUp(cfg.CommissionFixed, 2)
	default:
		return nil, fmt.Errorf("unknown commission mode: %q", cfg.CommissionMode)
	}
	if commission > grossAmount {
		commission = grossAmount
	}

	buyerFee := money.RoundHalfUp(cfg.BuyerFee, 2)

	return &Settlement{
		BuyerFee:         buyerFee,
		SellerCommission: commission,
		PayoutAmount:     money.RoundHalfUp(grossAmount-commission, 2),
		TotalCharged:     money.RoundHalfUp(grossAmount+buyerFee, 2),
	}, nil
}
