// Package broker defines the Session interface the adapter drives and
// provides implementations backed by the Alpaca brokerage and by an
// in-memory simulator.
package broker

import (
	"context"
	"errors"

	"livetrade/internal/domain"
)

// ErrNotLoggedIn is returned by sessions asked to trade before Login.
var ErrNotLoggedIn = errors.New("broker: session not logged in")

// Session is a synchronous brokerage transport. Calls may block for as long
// as the broker takes to answer; callers must not hold locks across them.
// A Session is used by one goroutine at a time.
type Session interface {
	// Login opens the brokerage session.
	Login(ctx context.Context) error

	// Logout closes the session. It is safe to call when not logged in.
	Logout(ctx context.Context) error

	// Buy submits a buy order and returns the broker-assigned order ID. An
	// empty ID means the broker did not accept the order.
	Buy(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType) (string, error)

	// Sell submits a sell order; see Buy.
	Sell(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType) (string, error)

	// CancelOrder requests cancellation of an acknowledged order.
	CancelOrder(ctx context.Context, brokerID, symbol string) error

	// GetHoldingStock returns the account's current positions.
	GetHoldingStock(ctx context.Context) ([]domain.Holding, error)

	// GetMoneyLeft returns the account balance figures.
	GetMoneyLeft(ctx context.Context) ([]float64, error)

	// GetAllOrders returns fill reports for the broker's recent orders.
	GetAllOrders(ctx context.Context) ([]domain.BrokerOrder, error)

	// TryRecvPacket returns one pending push message without blocking.
	TryRecvPacket() ([]byte, bool)
}
