package models

import "testing"

func TestCategorizeFraud(t *testing.T) {
	tests := []struct {
		prob float64
		want string
	}{
		{0.0, RiskVeryLow},
		{0.29, RiskVeryLow},
		{0.3, RiskLow},
		{0.49, RiskLow},
		{0.5, RiskMedium},
		{0.69, RiskMedium},
		{0.7, RiskHigh},
		{0.89, RiskHigh},
		{0.9, RiskVeryHigh},
		{1.0, RiskVeryHigh},
	}

	for _, tc := range tests {
		if got := CategorizeFraud(tc.prob); got != tc.want {
			t.Errorf("CategorizeFraud(%v) = %q, want %q", tc.prob, got, tc.want)
		}
	}
}
