package engine

import (
	"errors"
	"testing"

	"livetrade/internal/domain"
)

func TestRiskLimitsCheck(t *testing.T) {
	limits := RiskLimits{MaxOrderQty: 1000, MaxNotional: 50000}

	tests := []struct {
		name string
		o    domain.Order
		want error
	}{
		{"valid limit", domain.Order{Symbol: "AAPL", Qty: 100, Price: 150, Type: domain.OrderTypeLimit}, nil},
		{"valid market", domain.Order{Symbol: "AAPL", Qty: 1000, Type: domain.OrderTypeMarket}, nil},
		{"empty symbol", domain.Order{Symbol: " ", Qty: 1, Price: 1, Type: domain.OrderTypeLimit}, ErrEmptySymbol},
		{"zero qty", domain.Order{Symbol: "AAPL", Qty: 0, Price: 1, Type: domain.OrderTypeLimit}, ErrInvalidQty},
		{"negative qty", domain.Order{Symbol: "AAPL", Qty: -5, Price: 1, Type: domain.OrderTypeLimit}, ErrInvalidQty},
		{"limit without price", domain.Order{Symbol: "AAPL", Qty: 1, Type: domain.OrderTypeLimit}, ErrInvalidPrice},
		{"unknown type", domain.Order{Symbol: "AAPL", Qty: 1, Price: 1, Type: "stop"}, ErrUnknownOrderType},
		{"qty over limit", domain.Order{Symbol: "AAPL", Qty: 1001, Type: domain.OrderTypeMarket}, ErrQtyLimit},
		{"notional over limit", domain.Order{Symbol: "AAPL", Qty: 400, Price: 150, Type: domain.OrderTypeLimit}, ErrNotionalLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := limits.Check(tt.o)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Check() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Check() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRiskLimitsZeroDisablesLimits(t *testing.T) {
	var limits RiskLimits
	o := domain.Order{Symbol: "BRK.A", Qty: 1_000_000, Price: 600000, Type: domain.OrderTypeLimit}
	if err := limits.Check(o); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
}

func TestAdapterRejectsInvalidOrderWithoutQueueing(t *testing.T) {
	a := newTestAdapter(t, newFakeSession(), Options{Risk: RiskLimits{MaxOrderQty: 10}})

	id := a.Buy("AAPL", 11, 100, domain.OrderTypeLimit)
	o := a.OrderState(id)
	if o.State != domain.OrderStateFailed {
		t.Fatalf("state = %s, want failed", o.State)
	}
	if o.Desc == "" {
		t.Error("Desc is empty, want the rejection reason")
	}
	if got := a.queue.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0", got)
	}
	if got := a.PendingOrderNum(); got != 0 {
		t.Errorf("PendingOrderNum = %d, want 0", got)
	}
}
