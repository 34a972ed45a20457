package reconcile

import (
	"testing"

	"github.com/mmeshcher/printshop-system/internal/model"
)

func TestSettle(t *testing.T) {
	tests := []struct {
		name        string
		advance     int64
		total       int64
		wantBalance int64
		wantStatus  model.PaymentStatus
	}{
		{
			name:        "nothing paid",
			advance:     0,
			total:       100000,
			wantBalance: 100000,
			wantStatus:  model.PaymentStatusUnpaid,
		},
		{
			name:        "partial payment",
			advance:     40000,
			total:       100000,
			wantBalance: 60000,
			wantStatus:  model.PaymentStatusPartial,
		},
		{
			name:        "paid in full",
			advance:     100000,
			total:       100000,
			wantBalance: 0,
			wantStatus:  model.PaymentStatusPaid,
		},
		{
			name:        "overpayment",
			advance:     120000,
			total:       100000,
			wantBalance: -20000,
			wantStatus:  model.PaymentStatusPaid,
		},
		{
			name:        "zero amounts",
			advance:     0,
			total:       0,
			wantBalance: 0,
			wantStatus:  model.PaymentStatusUnpaid,
		},
		{
			name:        "advance without total",
			advance:     5000,
			total:       0,
			wantBalance: -5000,
			wantStatus:  model.PaymentStatusPartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balance, status := Settle(tt.advance, tt.total)
			if balance != tt.wantBalance {
				t.Fatalf("Settle(%d, %d) balance = %d, want %d", tt.advance, tt.total, balance, tt.wantBalance)
			}
			if status != tt.wantStatus {
				t.Fatalf("Settle(%d, %d) status = %s, want %s", tt.advance, tt.total, status, tt.wantStatus)
			}
		})
	}
}

func TestSettleIsPure(t *testing.T) {
	b1, s1 := Settle(40000, 100000)
	b2, s2 := Settle(40000, 100000)

	if b1 != b2 || s1 != s2 {
		t.Fatalf("Settle must be deterministic, got (%d, %s) and (%d, %s)", b1, s1, b2, s2)
	}
}
