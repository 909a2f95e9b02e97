package fees

import "testing"

func TestComputeSettlementPercentage(t *testing.T) {
	tests := []struct {
		name           string
		gross          float64
		cfg            FeeConfig
		wantBuyerFee   float64
		wantCommission float64
		wantPayout     float64
		wantCharged    float64
	}{
		{
			name:           "ten percent commission",
			gross:          250.00,
			cfg:            FeeConfig{BuyerFee: 5, CommissionMode: CommissionPercentage, CommissionRate: 10},
			wantBuyerFee:   5.00,
			wantCommission: 25.00,
			wantPayout:     225.00,
			wantCharged:    255.00,
		},
		{
			name:           "commission rounds half up",
			gross:          33.33,
			cfg:            FeeConfig{BuyerFee: 2.5, CommissionMode: CommissionPercentage, CommissionRate: 7.5},
			wantBuyerFee:   2.50,
			wantCommission: 2.50, // 2.49975 rounds up
			wantPayout:     30.83,
			wantCharged:    35.83,
		},
		{
			name:           "zero rate",
			gross:          100.00,
			cfg:            FeeConfig{BuyerFee: 0, CommissionMode: CommissionPercentage, CommissionRate: 0},
			wantBuyerFee:   0,
			wantCommission: 0,
			wantPayout:     100.00,
			wantCharged:    100.00,
		},
		{
			name:           "zero gross free listing",
			gross:          0,
			cfg:            FeeConfig{BuyerFee: 5, CommissionMode: CommissionPercentage, CommissionRate: 10},
			wantBuyerFee:   5.00,
			wantCommission: 0,
			wantPayout:     0,
			wantCharged:    5.00,
		},
		{
			name:           "full rate wipes payout",
			gross:          80.00,
			cfg:            FeeConfig{BuyerFee: 0, CommissionMode: CommissionPercentage, CommissionRate: 100},
			wantBuyerFee:   0,
			wantCommission: 80.00,
			wantPayout:     0,
			wantCharged:    80.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ComputeSettlement(tt.gross, tt.cfg)
			if err != nil {
				t.Fatalf("ComputeSettlement() error = %v", err)
			}
			if s.BuyerFee != tt.wantBuyerFee {
				t.Errorf("BuyerFee = %.2f, want %.2f", s.BuyerFee, tt.wantBuyerFee)
			}
			if s.SellerCommission != tt.wantCommission {
				t.Errorf("SellerCommission = %.2f, want %.2f", s.SellerCommission, tt.wantCommission)
			}
			if s.PayoutAmount != tt.wantPayout {
				t.Errorf("PayoutAmount = %.2f, want %.2f", s.PayoutAmount, tt.wantPayout)
			}
			if s.TotalCharged != tt.wantCharged {
				t.Errorf("TotalCharged = %.2f, want %.2f", s.TotalCharged, tt.wantCharged)
			}
		})
	}
}

func TestComputeSettlementFixed(t *testing.T) {
	cfg := FeeConfig{BuyerFee: 3, CommissionMode: CommissionFixed, CommissionFixed: 15}

	s, err := ComputeSettlement(200, cfg)
	if err != nil {
		t.Fatalf("ComputeSettlement() error = %v", err)
	}
	if s.SellerCommission != 15.00 {
		t.Errorf("SellerCommission = %.2f, want 15.00", s.SellerCommission)
	}
	if s.PayoutAmount != 185.00 {
		t.Errorf("PayoutAmount = %.2f, want 185.00", s.PayoutAmount)
	}
	if s.TotalCharged != 203.00 {
		t.Errorf("TotalCharged = %.2f, want 203.00", s.TotalCharged)
	}
}

func TestComputeSettlementCommissionCappedAtGross(t *testing.T) {
	// A fixed commission larger than the gross must never drive the payout
	// negative; it is capped at the gross amount.
	cfg := FeeConfig{BuyerFee: 2, CommissionMode: CommissionFixed, CommissionFixed: 50}

	s, err := ComputeSettlement(30, cfg)
	if err != nil {
		t.Fatalf("ComputeSettlement() error = %v", err)
	}
	if s.SellerCommission != 30.00 {
		t.Errorf("SellerCommission = %.2f, want 30.00", s.SellerCommission)
	}
	if s.PayoutAmount != 0 {
		t.Errorf("PayoutAmount = %.2f, want 0", s.PayoutAmount)
	}
}

func TestComputeSettlementErrors(t *testing.T) {
	tests := []struct {
		name  string
		gross float64
		cfg   FeeConfig
	}{
		{
			name:  "negative gross",
			gross: -1,
			cfg:   FeeConfig{CommissionMode: CommissionPercentage, CommissionRate: 10},
		},
		{
			name:  "unknown commission mode",
			gross: 100,
			cfg:   FeeConfig{CommissionMode: "tiered"},
		},
		{
			name:  "empty commission mode",
			gross: 100,
			cfg:   FeeConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ComputeSettlement(tt.gross, tt.cfg); err == nil {
				t.Error("ComputeSettlement() expected error, got nil")
			}
		})
	}
}
