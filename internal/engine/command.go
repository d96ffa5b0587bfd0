package engine

import "livetrade/internal/domain"

// CommandType identifies what a queued Command asks the worker to do.
type CommandType int

const (
	CmdStart CommandType = iota
	CmdStop
	CmdBuy
	CmdSell
	CmdCancel
)

func (t CommandType) String() string {
	switch t {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdBuy:
		return "buy"
	case CmdSell:
		return "sell"
	case CmdCancel:
		return "cancel"
	}
	return "unknown"
}

// Command is one caller request. It is copied into the queue by value and
// never modified afterwards.
type Command struct {
	Type      CommandType
	ID        string // correlation id; Buy, Sell and Cancel only
	Symbol    string
	Qty       int64
	Price     float64
	OrderType domain.OrderType
}
