// Package store provides journals that record orders once they reach a
// terminal state. Journals are append-only audit trails; the adapter never
// reads them back.
package store

import (
	"context"

	"livetrade/internal/domain"
)

// OrderJournal persists finalized orders.
type OrderJournal interface {
	// RecordOrder stores a terminal order. Recording the same correlation id
	// again replaces the earlier row.
	RecordOrder(ctx context.Context, order *domain.Order) error

	// Close flushes and releases the journal.
	Close() error
}

// JournalReader lists journaled orders for reporting.
type JournalReader interface {
	// ListOrders returns journaled orders in the given state, oldest first.
	ListOrders(ctx context.Context, state domain.OrderState) ([]OrderRecord, error)
}

// OrderRecord is the flattened on-disk row shared by the journals.
type OrderRecord struct {
	ID          string  `parquet:"id" json:"id"`
	BrokerID    string  `parquet:"broker_id" json:"broker_id"`
	Symbol      string  `parquet:"symbol" json:"symbol"`
	Action      string  `parquet:"action" json:"action"`
	OrderType   string  `parquet:"order_type" json:"order_type"`
	Qty         int64   `parquet:"qty" json:"qty"`
	Price       float64 `parquet:"price" json:"price"`
	FilledQty   int64   `parquet:"filled_qty" json:"filled_qty"`
	FilledPrice float64 `parquet:"filled_price" json:"filled_price"`
	State       string  `parquet:"state" json:"state"`
	Desc        string  `parquet:"desc" json:"desc"`
	CreatedAt   int64   `parquet:"created_at,timestamp(millisecond)" json:"created_at"` // Unix ms
	UpdatedAt   int64   `parquet:"updated_at,timestamp(millisecond)" json:"updated_at"` // Unix ms
}

// NewOrderRecord flattens o into its on-disk form.
func NewOrderRecord(o *domain.Order) OrderRecord {
	return OrderRecord{
		ID:          o.CorrelationID,
		BrokerID:    o.BrokerID,
		Symbol:      o.Symbol,
		Action:      string(o.Action),
		OrderType:   string(o.Type),
		Qty:         o.Qty,
		Price:       o.Price,
		FilledQty:   o.FilledQty,
		FilledPrice: o.FilledPrice,
		State:       string(o.State),
		Desc:        o.Desc,
		CreatedAt:   o.CreatedAt.UnixMilli(),
		UpdatedAt:   o.UpdatedAt.UnixMilli(),
	}
}
