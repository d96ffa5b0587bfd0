package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"livetrade/internal/broker"
	"livetrade/internal/domain"
)

// fakeSession is a scripted broker.Session for adapter tests.
type fakeSession struct {
	mu sync.Mutex

	loggedIn     bool
	loginErr     error
	loginCalls   int
	logoutCalls  int
	submits      []string // symbols in submission order
	nextID       int
	emptyID      map[string]bool // symbols the broker silently refuses
	panicOn      string          // symbol whose submission panics
	reports      map[string]*domain.BrokerOrder
	reportOrder  []string
	cancels      []string
	cancelErr    error
	holdingCalls int
	orderCalls   int
	holdings     []domain.Holding
	balance      []float64
	packets      [][]byte
	polls        int

	// gate, when set, blocks Buy/Sell until a value is received.
	gate     chan struct{}
	inFlight chan struct{}
}

var _ broker.Session = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	return &fakeSession{
		emptyID:  make(map[string]bool),
		reports:  make(map[string]*domain.BrokerOrder),
		balance:  []float64{100000, 0, 100000},
		inFlight: make(chan struct{}, 16),
	}
}

func (f *fakeSession) Login(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return f.loginErr
	}
	f.loggedIn = true
	return nil
}

func (f *fakeSession) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	f.loggedIn = false
	return nil
}

func (f *fakeSession) Buy(_ context.Context, symbol string, _ float64, qty int64, _ domain.OrderType) (string, error) {
	return f.submit(symbol, qty)
}

func (f *fakeSession) Sell(_ context.Context, symbol string, _ float64, qty int64, _ domain.OrderType) (string, error) {
	return f.submit(symbol, qty)
}

func (f *fakeSession) submit(symbol string, qty int64) (string, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		f.inFlight <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if symbol == f.panicOn && symbol != "" {
		panic("broker exploded on " + symbol)
	}
	f.submits = append(f.submits, symbol)
	if !f.loggedIn {
		return "", broker.ErrNotLoggedIn
	}
	if f.emptyID[symbol] {
		return "", nil
	}
	f.nextID++
	id := fmt.Sprintf("B%d", f.nextID)
	f.reports[id] = &domain.BrokerOrder{OrderID: id, Qty: qty, Status: domain.BrokerOrderOpen}
	f.reportOrder = append(f.reportOrder, id)
	return id, nil
}

func (f *fakeSession) CancelOrder(_ context.Context, brokerID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, brokerID)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if r, ok := f.reports[brokerID]; ok {
		r.Status = domain.BrokerOrderCanceled
	}
	return nil
}

func (f *fakeSession) GetHoldingStock(context.Context) ([]domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdingCalls++
	return append([]domain.Holding(nil), f.holdings...), nil
}

func (f *fakeSession) GetMoneyLeft(context.Context) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.balance...), nil
}

func (f *fakeSession) GetAllOrders(context.Context) ([]domain.BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	out := make([]domain.BrokerOrder, 0, len(f.reportOrder))
	for _, id := range f.reportOrder {
		out = append(out, *f.reports[id])
	}
	return out, nil
}

func (f *fakeSession) TryRecvPacket() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.packets) == 0 {
		return nil, false
	}
	pkt := f.packets[0]
	f.packets = f.packets[1:]
	return pkt, true
}

func (f *fakeSession) setFill(brokerID string, filled int64, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reports[brokerID]
	r.FilledQty = filled
	r.FilledPrice = price
}

func (f *fakeSession) snapshot(fn func(f *fakeSession)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// recordingJournal collects journaled orders.
type recordingJournal struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (j *recordingJournal) RecordOrder(_ context.Context, o *domain.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, *o)
	return nil
}

func (j *recordingJournal) Close() error { return nil }

func (j *recordingJournal) ids() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.orders))
	for _, o := range j.orders {
		out = append(out, o.CorrelationID)
	}
	return out
}

// seqIDs returns an id generator yielding U1, U2, ...
func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("U%d", n)
	}
}

func newTestAdapter(t *testing.T, s broker.Session, opts Options) *Adapter {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Millisecond
	}
	if opts.ReconcileInterval == 0 {
		opts.ReconcileInterval = 5 * time.Millisecond
	}
	if opts.NewID == nil {
		opts.NewID = seqIDs()
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdapter(s, opts)
}

// startAdapter starts a and stops it when the test ends.
func startAdapter(t *testing.T, a *Adapter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		waitDone(t, a)
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, a *Adapter) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}
