// Package domain defines the core types shared across livetrade: orders,
// holdings, broker-reported order rows and account status.
package domain

import "time"

// Action is the position effect of an order.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// OrderState is the lifecycle state of an order inside the adapter.
type OrderState string

const (
	OrderStatePending    OrderState = "pending"
	OrderStatePartFilled OrderState = "partfilled"
	OrderStateFulfilled  OrderState = "fulfilled"
	OrderStateCanceled   OrderState = "canceled"
	OrderStateFailed     OrderState = "failed"
)

// Terminal reports whether no further transitions are possible from s.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFulfilled, OrderStateCanceled, OrderStateFailed:
		return true
	}
	return false
}

// OrderType tags how the broker should price an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Order is the adapter's record of a caller-issued buy or sell.
//
// CorrelationID is generated by the adapter and returned to the caller.
// BrokerID stays empty until the broker acknowledges the submission.
type Order struct {
	CorrelationID string     `json:"id"`
	BrokerID      string     `json:"broker_id,omitempty"`
	Symbol        string     `json:"sid"`
	Action        Action     `json:"action"`
	Qty           int64      `json:"quant"`
	Price         float64    `json:"price"`
	Type          OrderType  `json:"order_type"`
	FilledQty     int64      `json:"deal_quant"`
	FilledPrice   float64    `json:"deal_price"`
	State         OrderState `json:"state"`
	Desc          string     `json:"desc,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Holding is one line of the account's current positions.
type Holding struct {
	Symbol       string  `json:"sid"`
	Qty          int64   `json:"quant"`
	AvailableQty int64   `json:"available_quant"`
	CostPrice    float64 `json:"cost_price"`
	MarketValue  float64 `json:"market_value"`
}

// BrokerOrderStatus is the coarse broker-side status of a submitted order.
type BrokerOrderStatus string

const (
	BrokerOrderOpen     BrokerOrderStatus = "open"
	BrokerOrderCanceled BrokerOrderStatus = "canceled"
	BrokerOrderRejected BrokerOrderStatus = "rejected"
)

// BrokerOrder is a fill report for one order as returned by the broker.
type BrokerOrder struct {
	OrderID     string
	Qty         int64
	FilledQty   int64
	FilledPrice float64
	Status      BrokerOrderStatus
}

// AccountStatus is the session status of the adapter.
type AccountStatus string

const (
	AccountIdle   AccountStatus = "idle"
	AccountLogin  AccountStatus = "login"
	AccountFailed AccountStatus = "failed"
)
