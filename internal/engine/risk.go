package engine

import (
	"errors"
	"fmt"
	"strings"

	"livetrade/internal/domain"
)

// Pre-trade rejections. Orders failing a check are recorded as failed and
// never reach the broker.
var (
	ErrEmptySymbol      = errors.New("empty symbol")
	ErrInvalidQty       = errors.New("quantity must be positive")
	ErrInvalidPrice     = errors.New("limit price must be positive")
	ErrQtyLimit         = errors.New("quantity exceeds limit")
	ErrNotionalLimit    = errors.New("notional exceeds limit")
	ErrUnknownOrderType = errors.New("unknown order type")
)

// RiskLimits holds the pre-trade limits applied to every Buy and Sell.
// A zero limit disables that check.
type RiskLimits struct {
	MaxOrderQty int64
	MaxNotional float64
}

// Check validates o against the limits.
func (l RiskLimits) Check(o domain.Order) error {
	if strings.TrimSpace(o.Symbol) == "" {
		return ErrEmptySymbol
	}
	if o.Qty <= 0 {
		return ErrInvalidQty
	}
	switch o.Type {
	case domain.OrderTypeLimit:
		if o.Price <= 0 {
			return ErrInvalidPrice
		}
	case domain.OrderTypeMarket:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOrderType, o.Type)
	}
	if l.MaxOrderQty > 0 && o.Qty > l.MaxOrderQty {
		return fmt.Errorf("%w: %d > %d", ErrQtyLimit, o.Qty, l.MaxOrderQty)
	}
	// Market orders carry no price, so notional is only known for limits.
	if l.MaxNotional > 0 && o.Type == domain.OrderTypeLimit {
		if n := float64(o.Qty) * o.Price; n > l.MaxNotional {
			return fmt.Errorf("%w: %.2f > %.2f", ErrNotionalLimit, n, l.MaxNotional)
		}
	}
	return nil
}
