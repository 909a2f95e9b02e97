package money

import "testing"

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		want     float64
	}{
		{name: "exact half rounds up", value: 2.345, decimals: 2, want: 2.35},
		{name: "below half rounds down", value: 2.344, decimals: 2, want: 2.34},
		{name: "negative half rounds away from zero", value: -2.345, decimals: 2, want: -2.35},
		{name: "already exact", value: 10.00, decimals: 2, want: 10.00},
		{name: "zero decimals", value: 2.5, decimals: 0, want: 3},
		{name: "zero value", value: 0, decimals: 2, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundHalfUp(tt.value, tt.decimals); got != tt.want {
				t.Errorf("RoundHalfUp(%v, %d) = %v, want %v", tt.value, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestPenceConversion(t *testing.T) {
	tests := []struct {
		pounds float64
		pence  int64
	}{
		{pounds: 0, pence: 0},
		{pounds: 1, pence: 100},
		{pounds: 19.99, pence: 1999},
		{pounds: 0.01, pence: 1},
		{pounds: -5.50, pence: -550},
	}

	for _, tt := range tests {
		if got := ToPence(tt.pounds); got != tt.pence {
			t.Errorf("ToPence(%v) = %d, want %d", tt.pounds, got, tt.pence)
		}
		if got := FromPence(tt.pence); got != tt.pounds {
			t.Errorf("FromPence(%d) = %v, want %v", tt.pence, got, tt.pounds)
		}
	}
}
