package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"livetrade/internal/domain"
	"livetrade/internal/util"
)

// Compile-time interface check.
var _ Session = (*AlpacaSession)(nil)

// ordersPageLimit caps how many recent orders a reconciliation pulls.
const ordersPageLimit = 500

// AlpacaSession implements Session on top of the Alpaca trading API.
//
// Login verifies the account is tradable and subscribes to the trade-update
// stream. Updates are buffered and surfaced through TryRecvPacket.
type AlpacaSession struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
	log     *slog.Logger

	mu           sync.Mutex
	loggedIn     bool
	stopUpdates  context.CancelFunc
	packets      chan []byte
	droppedCount int
	// open holds ids of orders placed by this session that have not yet
	// reached a final status.
	open map[string]struct{}
}

// NewAlpacaSession creates a logged-out session configured with the given
// credentials and API endpoint. An empty baseURL selects the SDK default.
// REST calls are throttled to ratePerMin requests per minute; zero disables
// throttling.
func NewAlpacaSession(apiKey, apiSecret, baseURL string, ratePerMin int, log *slog.Logger) *AlpacaSession {
	return &AlpacaSession{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		limiter: util.NewRateLimiter(ratePerMin, 10),
		log:     log.With("broker", "alpaca"),
		packets: make(chan []byte, 1024),
		open:    make(map[string]struct{}),
	}
}

// Login checks the account is active and starts the trade-update stream.
func (s *AlpacaSession) Login(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	acct, err := s.client.GetAccount()
	if err != nil {
		return fmt.Errorf("GetAccount: %w", err)
	}
	if acct.Status != "ACTIVE" {
		return fmt.Errorf("account %s status is %s", acct.AccountNumber, acct.Status)
	}
	if acct.TradingBlocked || acct.AccountBlocked {
		return fmt.Errorf("account %s is blocked from trading", acct.AccountNumber)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopUpdates != nil {
		s.stopUpdates()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.stopUpdates = cancel
	s.loggedIn = true
	s.client.StreamTradeUpdatesInBackground(streamCtx, s.onTradeUpdate)

	s.log.Info("alpaca session opened", "account", acct.AccountNumber)
	return nil
}

// Logout stops the trade-update stream.
func (s *AlpacaSession) Logout(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopUpdates != nil {
		s.stopUpdates()
		s.stopUpdates = nil
	}
	s.loggedIn = false
	return nil
}

// Buy submits a day buy order.
func (s *AlpacaSession) Buy(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType) (string, error) {
	return s.place(ctx, symbol, price, qty, orderType, alpaca.Buy)
}

// Sell submits a day sell order.
func (s *AlpacaSession) Sell(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType) (string, error) {
	return s.place(ctx, symbol, price, qty, orderType, alpaca.Sell)
}

func (s *AlpacaSession) place(ctx context.Context, symbol string, price float64, qty int64, orderType domain.OrderType, side alpaca.Side) (string, error) {
	if !s.isLoggedIn() {
		return "", ErrNotLoggedIn
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	q := decimal.NewFromInt(qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &q,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if orderType != domain.OrderTypeMarket {
		lp := decimal.NewFromFloat(price)
		req.Type = alpaca.Limit
		req.LimitPrice = &lp
	}

	order, err := s.client.PlaceOrder(req)
	if err != nil {
		return "", fmt.Errorf("PlaceOrder %s %s: %w", side, symbol, err)
	}
	s.mu.Lock()
	s.open[order.ID] = struct{}{}
	s.mu.Unlock()
	return order.ID, nil
}

// CancelOrder requests cancellation of an open order.
func (s *AlpacaSession) CancelOrder(ctx context.Context, brokerID, _ string) error {
	if !s.isLoggedIn() {
		return ErrNotLoggedIn
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := s.client.CancelOrder(brokerID); err != nil {
		return fmt.Errorf("CancelOrder %s: %w", brokerID, err)
	}
	return nil
}

// GetHoldingStock returns all open positions.
func (s *AlpacaSession) GetHoldingStock(ctx context.Context) ([]domain.Holding, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	positions, err := s.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("GetPositions: %w", err)
	}
	out := make([]domain.Holding, 0, len(positions))
	for _, p := range positions {
		h := domain.Holding{
			Symbol:       p.Symbol,
			Qty:          p.Qty.IntPart(),
			AvailableQty: p.QtyAvailable.IntPart(),
			CostPrice:    p.AvgEntryPrice.InexactFloat64(),
		}
		if p.MarketValue != nil {
			h.MarketValue = p.MarketValue.InexactFloat64()
		}
		out = append(out, h)
	}
	return out, nil
}

// GetMoneyLeft returns [cash, buying power, equity, portfolio value].
func (s *AlpacaSession) GetMoneyLeft(ctx context.Context) ([]float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acct, err := s.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return []float64{
		acct.Cash.InexactFloat64(),
		acct.BuyingPower.InexactFloat64(),
		acct.Equity.InexactFloat64(),
		acct.PortfolioValue.InexactFloat64(),
	}, nil
}

// GetAllOrders returns fill reports for the most recent orders in any status.
// Orders placed by this session that are still open but fell off the page
// are fetched one by one.
func (s *AlpacaSession) GetAllOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := s.client.GetOrders(alpaca.GetOrdersRequest{
		Status: "all",
		Limit:  ordersPageLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("GetOrders: %w", err)
	}

	for _, id := range s.unmatchedOpen(orders) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		o, err := s.client.GetOrder(id)
		if err != nil {
			return nil, fmt.Errorf("GetOrder %s: %w", id, err)
		}
		orders = append(orders, *o)
		s.unmatchedOpen([]alpaca.Order{*o})
	}

	out := make([]domain.BrokerOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, toBrokerOrder(o))
	}
	return out, nil
}

// unmatchedOpen forgets tracked orders that reached a final status in
// orders and returns the tracked ids orders does not mention.
func (s *AlpacaSession) unmatchedOpen(orders []alpaca.Order) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		seen[o.ID] = true
		if finalStatus(o.Status) {
			delete(s.open, o.ID)
		}
	}
	var missing []string
	for id := range s.open {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

// finalStatus reports whether Alpaca will not change the order again.
func finalStatus(status string) bool {
	switch status {
	case "filled", "canceled", "expired", "rejected", "replaced", "done_for_day":
		return true
	}
	return false
}

func toBrokerOrder(o alpaca.Order) domain.BrokerOrder {
	bo := domain.BrokerOrder{
		OrderID:   o.ID,
		FilledQty: o.FilledQty.IntPart(),
		Status:    brokerStatus(o.Status),
	}
	if o.Qty != nil {
		bo.Qty = o.Qty.IntPart()
	}
	if o.FilledAvgPrice != nil {
		bo.FilledPrice = o.FilledAvgPrice.InexactFloat64()
	}
	return bo
}

func brokerStatus(status string) domain.BrokerOrderStatus {
	switch status {
	case "canceled", "expired", "done_for_day":
		return domain.BrokerOrderCanceled
	case "rejected", "suspended":
		return domain.BrokerOrderRejected
	default:
		return domain.BrokerOrderOpen
	}
}

// TryRecvPacket returns one buffered trade update as JSON.
func (s *AlpacaSession) TryRecvPacket() ([]byte, bool) {
	select {
	case pkt := <-s.packets:
		return pkt, true
	default:
		return nil, false
	}
}

func (s *AlpacaSession) onTradeUpdate(tu alpaca.TradeUpdate) {
	pkt, err := json.Marshal(map[string]any{
		"event":    tu.Event,
		"order_id": tu.Order.ID,
		"symbol":   tu.Order.Symbol,
		"status":   tu.Order.Status,
	})
	if err != nil {
		s.log.Warn("encoding trade update", "error", err)
		return
	}
	select {
	case s.packets <- pkt:
	default:
		s.mu.Lock()
		s.droppedCount++
		n := s.droppedCount
		s.mu.Unlock()
		s.log.Warn("trade update buffer full, dropping", "dropped", n)
	}
}

func (s *AlpacaSession) isLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}
