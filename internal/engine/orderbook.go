package engine

import (
	"time"

	"livetrade/internal/domain"
)

// OrderBook holds every known order in one of two disjoint partitions:
// pending (still live at the broker or awaiting submission) and completed
// (terminal). Orders only ever move from pending to completed.
//
// OrderBook is not safe for concurrent use; the Adapter guards it.
type OrderBook struct {
	pending   map[string]*domain.Order
	completed map[string]*domain.Order
	byBroker  map[string]string // broker id -> correlation id, pending only
}

// NewOrderBook returns an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		pending:   make(map[string]*domain.Order),
		completed: make(map[string]*domain.Order),
		byBroker:  make(map[string]string),
	}
}

// Add inserts o into the partition matching its state. It reports false if
// the correlation id is already known.
func (b *OrderBook) Add(o domain.Order) bool {
	if b.has(o.CorrelationID) {
		return false
	}
	if o.State.Terminal() {
		b.completed[o.CorrelationID] = &o
		return true
	}
	b.pending[o.CorrelationID] = &o
	if o.BrokerID != "" {
		b.byBroker[o.BrokerID] = o.CorrelationID
	}
	return true
}

// Lookup checks pending, then completed.
func (b *OrderBook) Lookup(id string) (domain.Order, bool) {
	if o, ok := b.pending[id]; ok {
		return *o, true
	}
	if o, ok := b.completed[id]; ok {
		return *o, true
	}
	return domain.Order{}, false
}

// Pending returns the pending order with the given correlation id.
func (b *OrderBook) Pending(id string) (domain.Order, bool) {
	o, ok := b.pending[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// Acknowledge records the broker-assigned id on a pending order. The
// lifecycle state is left unchanged.
func (b *OrderBook) Acknowledge(id, brokerID string, now time.Time) (domain.Order, bool) {
	o, ok := b.pending[id]
	if !ok {
		return domain.Order{}, false
	}
	if o.BrokerID != "" {
		delete(b.byBroker, o.BrokerID)
	}
	o.BrokerID = brokerID
	o.UpdatedAt = now
	b.byBroker[brokerID] = id
	return *o, true
}

// Complete moves a pending order to the completed partition with the given
// terminal state.
func (b *OrderBook) Complete(id string, state domain.OrderState, desc string, now time.Time) (domain.Order, bool) {
	o, ok := b.pending[id]
	if !ok || !state.Terminal() {
		return domain.Order{}, false
	}
	o.State = state
	if desc != "" {
		o.Desc = desc
	}
	o.UpdatedAt = now
	b.complete(o)
	return *o, true
}

// ApplyResult describes what a broker fill report did to an order.
type ApplyResult int

const (
	ApplyIgnored ApplyResult = iota // no matching pending order, or nothing new
	ApplyUpdated                    // fill figures or state changed, still pending
	ApplyCompleted                  // order moved to completed
	ApplyStale                      // report filled less than already recorded
)

// ApplyReport folds a broker fill report into the matching pending order.
//
// Fully filled orders become fulfilled and move to completed. Partially
// filled orders become partfilled and stay pending. A zero fill changes
// nothing unless the broker reports the order closed. Reports that would
// lower the recorded filled quantity are dropped.
func (b *OrderBook) ApplyReport(r domain.BrokerOrder, now time.Time) (domain.Order, ApplyResult) {
	id, ok := b.byBroker[r.OrderID]
	if !ok {
		return domain.Order{}, ApplyIgnored
	}
	o := b.pending[id]
	if r.FilledQty < o.FilledQty {
		return *o, ApplyStale
	}

	changed := r.FilledQty != o.FilledQty || (r.FilledQty > 0 && r.FilledPrice != o.FilledPrice)
	o.FilledQty = r.FilledQty
	if r.FilledQty > 0 {
		o.FilledPrice = r.FilledPrice
	}

	switch {
	case o.FilledQty >= o.Qty:
		o.State = domain.OrderStateFulfilled
	case r.Status == domain.BrokerOrderCanceled:
		o.State = domain.OrderStateCanceled
		o.Desc = "canceled by broker"
	case r.Status == domain.BrokerOrderRejected:
		o.State = domain.OrderStateFailed
		o.Desc = "rejected by broker"
	case o.FilledQty > 0:
		if o.State != domain.OrderStatePartFilled {
			o.State = domain.OrderStatePartFilled
			changed = true
		}
	}

	if o.State.Terminal() {
		o.UpdatedAt = now
		b.complete(o)
		return *o, ApplyCompleted
	}
	if !changed {
		return *o, ApplyIgnored
	}
	o.UpdatedAt = now
	return *o, ApplyUpdated
}

// PendingCount returns the size of the pending partition.
func (b *OrderBook) PendingCount() int { return len(b.pending) }

// CompletedCount returns the size of the completed partition.
func (b *OrderBook) CompletedCount() int { return len(b.completed) }

// PendingOrders returns copies of all pending orders.
func (b *OrderBook) PendingOrders() []domain.Order {
	out := make([]domain.Order, 0, len(b.pending))
	for _, o := range b.pending {
		out = append(out, *o)
	}
	return out
}

func (b *OrderBook) has(id string) bool {
	_, p := b.pending[id]
	_, c := b.completed[id]
	return p || c
}

func (b *OrderBook) complete(o *domain.Order) {
	delete(b.pending, o.CorrelationID)
	if o.BrokerID != "" {
		delete(b.byBroker, o.BrokerID)
	}
	b.completed[o.CorrelationID] = o
}
