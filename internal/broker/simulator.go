package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"livetrade/internal/domain"
)

// Compile-time interface check.
var _ Session = (*SimulatorSession)(nil)

// SimulatorConfig tunes the paper-trading session.
type SimulatorConfig struct {
	// Latency is added to every blocking call.
	Latency time.Duration
	// FillStep is the number of shares filled per open order each time
	// GetAllOrders is called. Zero leaves orders unfilled.
	FillStep int64
	// Cash is the starting cash balance.
	Cash float64
	// Prices seeds the per-symbol reference prices that market orders
	// execute at. Every fill moves the reference to the fill price.
	Prices map[string]float64
}

type simOrder struct {
	report domain.BrokerOrder
	symbol string
	price  float64
	buy    bool
}

// SimulatorSession implements Session for paper trading. Orders fill
// gradually each time the adapter reconciles, and every fill is pushed as a
// JSON packet readable through TryRecvPacket.
type SimulatorSession struct {
	cfg SimulatorConfig

	mu        sync.Mutex
	loggedIn  bool
	loginErr  error
	nextID    int
	order     []string
	orders    map[string]*simOrder
	positions map[string]*domain.Holding
	quotes    map[string]float64
	cash      float64
	packets   chan []byte
}

// NewSimulatorSession creates a logged-out simulator with cfg.Cash of cash
// and no positions.
func NewSimulatorSession(cfg SimulatorConfig) *SimulatorSession {
	quotes := make(map[string]float64, len(cfg.Prices))
	for sym, p := range cfg.Prices {
		if p > 0 {
			quotes[sym] = p
		}
	}
	return &SimulatorSession{
		cfg:       cfg,
		orders:    make(map[string]*simOrder),
		positions: make(map[string]*domain.Holding),
		quotes:    quotes,
		cash:      cfg.Cash,
		packets:   make(chan []byte, 256),
	}
}

// SetPrice sets the reference price market orders in symbol execute at.
func (s *SimulatorSession) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price > 0 {
		s.quotes[symbol] = price
	} else {
		delete(s.quotes, symbol)
	}
}

// SetLoginError makes subsequent Login calls fail with err (nil clears it).
func (s *SimulatorSession) SetLoginError(err error) {
	s.mu.Lock()
	s.loginErr = err
	s.mu.Unlock()
}

// Login opens the simulated session.
func (s *SimulatorSession) Login(ctx context.Context) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loginErr != nil {
		return s.loginErr
	}
	s.loggedIn = true
	return nil
}

// Logout closes the simulated session.
func (s *SimulatorSession) Logout(_ context.Context) error {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
	return nil
}

// Buy records a buy order. Orders whose notional exceeds available cash are
// rejected with an empty ID. Market orders execute at the symbol's reference
// price and are rejected when it has none.
func (s *SimulatorSession) Buy(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType) (string, error) {
	return s.submit(ctx, symbol, price, qty, orderType, true)
}

// Sell records a sell order. Selling more than the available position is
// rejected with an empty ID.
func (s *SimulatorSession) Sell(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType) (string, error) {
	return s.submit(ctx, symbol, price, qty, orderType, false)
}

func (s *SimulatorSession) submit(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType, buy bool) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loggedIn {
		return "", ErrNotLoggedIn
	}
	if symbol == "" || qty <= 0 {
		return "", fmt.Errorf("simulator: invalid order %s qty=%d", symbol, qty)
	}
	if orderType == domain.OrderTypeMarket {
		ref, ok := s.quotes[symbol]
		if !ok {
			return "", fmt.Errorf("simulator: no reference price for market order in %s", symbol)
		}
		price = ref
	}
	if price <= 0 {
		return "", fmt.Errorf("simulator: invalid price %v for %s", price, symbol)
	}
	if buy && price*float64(qty) > s.cash {
		return "", fmt.Errorf("simulator: insufficient cash for %s: need %.2f, have %.2f", symbol, price*float64(qty), s.cash)
	}
	if !buy {
		pos, ok := s.positions[symbol]
		if !ok || pos.AvailableQty < qty {
			return "", fmt.Errorf("simulator: insufficient position in %s", symbol)
		}
		pos.AvailableQty -= qty
	}
	if buy {
		s.cash -= price * float64(qty)
	}

	s.nextID++
	id := "SIM-" + strconv.Itoa(s.nextID)
	s.orders[id] = &simOrder{
		report: domain.BrokerOrder{OrderID: id, Qty: qty, Status: domain.BrokerOrderOpen},
		symbol: symbol,
		price:  price,
		buy:    buy,
	}
	s.order = append(s.order, id)
	return id, nil
}

// CancelOrder cancels an open simulated order, releasing reserved cash or
// shares for the unfilled remainder.
func (s *SimulatorSession) CancelOrder(ctx context.Context, brokerID, _ string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loggedIn {
		return ErrNotLoggedIn
	}
	o, ok := s.orders[brokerID]
	if !ok {
		return fmt.Errorf("simulator: unknown order %s", brokerID)
	}
	if o.report.Status != domain.BrokerOrderOpen {
		return nil
	}
	o.report.Status = domain.BrokerOrderCanceled
	rest := o.report.Qty - o.report.FilledQty
	if o.buy {
		s.cash += o.price * float64(rest)
	} else if pos, ok := s.positions[o.symbol]; ok {
		pos.AvailableQty += rest
	}
	return nil
}

// GetHoldingStock returns a copy of the simulated positions.
func (s *SimulatorSession) GetHoldingStock(ctx context.Context) ([]domain.Holding, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Holding, 0, len(s.positions))
	for _, p := range s.positions {
		if p.Qty == 0 {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// GetMoneyLeft returns [cash, market value of positions, total].
func (s *SimulatorSession) GetMoneyLeft(ctx context.Context) ([]float64, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var mv float64
	for _, p := range s.positions {
		mv += p.MarketValue
	}
	return []float64{s.cash, mv, s.cash + mv}, nil
}

// GetAllOrders advances fills by FillStep on every open order and returns
// the resulting reports in submission order.
func (s *SimulatorSession) GetAllOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loggedIn {
		return nil, ErrNotLoggedIn
	}
	out := make([]domain.BrokerOrder, 0, len(s.order))
	for _, id := range s.order {
		o := s.orders[id]
		if o.report.Status == domain.BrokerOrderOpen && s.cfg.FillStep > 0 && o.report.FilledQty < o.report.Qty {
			s.fill(o, min(s.cfg.FillStep, o.report.Qty-o.report.FilledQty))
		}
		out = append(out, o.report)
	}
	return out, nil
}

// fill applies n shares of o. Must be called with mu held.
func (s *SimulatorSession) fill(o *simOrder, n int64) {
	o.report.FilledQty += n
	o.report.FilledPrice = o.price
	s.quotes[o.symbol] = o.price

	pos, ok := s.positions[o.symbol]
	if !ok {
		pos = &domain.Holding{Symbol: o.symbol}
		s.positions[o.symbol] = pos
	}
	if o.buy {
		cost := pos.CostPrice*float64(pos.Qty) + o.price*float64(n)
		pos.Qty += n
		pos.AvailableQty += n
		pos.CostPrice = cost / float64(pos.Qty)
	} else {
		pos.Qty -= n
		s.cash += o.price * float64(n)
	}
	pos.MarketValue = float64(pos.Qty) * o.price

	pkt, err := json.Marshal(map[string]any{
		"event":      "fill",
		"order_id":   o.report.OrderID,
		"symbol":     o.symbol,
		"filled_qty": o.report.FilledQty,
		"price":      o.price,
	})
	if err != nil {
		return
	}
	select {
	case s.packets <- pkt:
	default:
		// Nobody is polling; drop.
	}
}

// TryRecvPacket pops one fill notification if available.
func (s *SimulatorSession) TryRecvPacket() ([]byte, bool) {
	select {
	case pkt := <-s.packets:
		return pkt, true
	default:
		return nil, false
	}
}

func (s *SimulatorSession) wait(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.Latency):
		return nil
	}
}
