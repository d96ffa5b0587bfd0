// Package engine implements the order-execution adapter: a command queue
// drained by a single worker goroutine that owns the broker session, an
// order book with one-way pending-to-completed transitions, and a cached
// account snapshot reconciled against the broker on a timer.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"livetrade/internal/broker"
	"livetrade/internal/domain"
	"livetrade/internal/store"
)

// ErrStopped is returned by Start after Stop, and recorded on orders
// submitted once the adapter is shutting down.
var ErrStopped = errors.New("adapter stopped")

// Default timings for the worker's idle tick.
const (
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultReconcileInterval = 400 * time.Millisecond
)

type lifecycle int

const (
	lifecycleIdle lifecycle = iota
	lifecycleRunning
	lifecycleStopping
	lifecycleStopped
)

// Options configures an Adapter. Zero values select defaults.
type Options struct {
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	// Journal receives every order the worker finalizes. Optional.
	Journal store.OrderJournal
	// NewID generates correlation ids. Defaults to random UUIDs.
	NewID  func() string
	Risk   RiskLimits
	Logger *slog.Logger
}

// Adapter accepts trading commands from any goroutine and applies them in
// order on a single worker goroutine. Reads return copies of the current
// state and never wait on broker I/O.
type Adapter struct {
	session           broker.Session
	queue             *CommandQueue
	journal           store.OrderJournal
	events            *hub
	newID             func() string
	risk              RiskLimits
	now               func() time.Time
	pollInterval      time.Duration
	reconcileInterval time.Duration
	log               *slog.Logger

	// mu guards everything below.
	mu          sync.RWMutex
	book        *OrderBook
	account     AccountSnapshot
	lifecycle   lifecycle
	startQueued bool
	done        chan struct{}
}

// NewAdapter creates an idle adapter that will drive session once started.
// The adapter takes ownership of session; it is logged out when the worker
// exits.
func NewAdapter(session broker.Session, opts Options) *Adapter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = DefaultReconcileInterval
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)

	return &Adapter{
		session:           session,
		queue:             NewCommandQueue(),
		journal:           opts.Journal,
		events:            newHub(),
		newID:             opts.NewID,
		risk:              opts.Risk,
		now:               time.Now,
		pollInterval:      opts.PollInterval,
		reconcileInterval: opts.ReconcileInterval,
		log:               opts.Logger.With("component", "adapter"),
		book:              NewOrderBook(),
		account:           newAccountSnapshot(),
		done:              done,
	}
}

// Start launches the worker and queues a login. The worker runs until Stop
// is processed or ctx is cancelled. Start returns ErrStopped once Stop has
// been called.
//
// Calling Start while the worker is running is a no-op with one exception:
// when the account status is AccountFailed because the login was refused,
// Start queues one more login attempt on the running worker. Further calls
// are no-ops until that attempt has been processed.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.lifecycle {
	case lifecycleStopping, lifecycleStopped:
		return ErrStopped
	case lifecycleRunning:
		if a.account.Status == domain.AccountFailed && !a.startQueued {
			a.startQueued = true
			a.queue.Enqueue(Command{Type: CmdStart})
		}
		return nil
	}

	a.lifecycle = lifecycleRunning
	a.startQueued = true
	a.queue.Enqueue(Command{Type: CmdStart})
	a.done = make(chan struct{})
	go a.run(ctx, a.done)
	return nil
}

// Stop queues a shutdown behind any commands already queued. It returns
// immediately; use Done to wait for the worker to exit.
func (a *Adapter) Stop() {
	var failed []domain.Order

	a.mu.Lock()
	switch a.lifecycle {
	case lifecycleRunning:
		a.lifecycle = lifecycleStopping
		a.queue.Enqueue(Command{Type: CmdStop})
	case lifecycleIdle:
		a.lifecycle = lifecycleStopped
		failed = a.failQueued(a.queue.Drain(), ErrStopped.Error())
	}
	a.mu.Unlock()

	a.events.broadcast(completedEvents(failed)...)
}

// Done returns a channel closed when the current worker has exited. It is
// already closed when no worker is running.
func (a *Adapter) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Running reports whether a worker is active.
func (a *Adapter) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lifecycle == lifecycleRunning || a.lifecycle == lifecycleStopping
}

// Buy records a pending open order and queues its submission. The returned
// correlation id is immediately visible through OrderState. Orders that fail
// the pre-trade checks are recorded as failed and not queued.
func (a *Adapter) Buy(symbol string, qty int64, price float64, orderType domain.OrderType) string {
	return a.submit(CmdBuy, domain.ActionOpen, symbol, qty, price, orderType)
}

// Sell records a pending close order and queues its submission.
func (a *Adapter) Sell(symbol string, qty int64, price float64, orderType domain.OrderType) string {
	return a.submit(CmdSell, domain.ActionClose, symbol, qty, price, orderType)
}

func (a *Adapter) submit(t CommandType, action domain.Action, symbol string, qty int64, price float64, orderType domain.OrderType) string {
	id := a.newID()
	now := a.now()
	o := domain.Order{
		CorrelationID: id,
		Symbol:        symbol,
		Action:        action,
		Qty:           qty,
		Price:         price,
		Type:          orderType,
		State:         domain.OrderStatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	rejected := a.risk.Check(o)

	a.mu.Lock()
	switch {
	case rejected != nil:
		o.State = domain.OrderStateFailed
		o.Desc = rejected.Error()
		a.book.Add(o)
	case a.lifecycle == lifecycleStopping || a.lifecycle == lifecycleStopped:
		o.State = domain.OrderStateFailed
		o.Desc = ErrStopped.Error()
		a.book.Add(o)
	default:
		a.book.Add(o)
		a.queue.Enqueue(Command{
			Type:      t,
			ID:        id,
			Symbol:    symbol,
			Qty:       qty,
			Price:     price,
			OrderType: orderType,
		})
	}
	a.mu.Unlock()

	if rejected != nil {
		a.log.Warn("order rejected before submission", "id", id, "symbol", symbol, "reason", o.Desc)
	}
	events := []OrderEvent{{Type: "created", Order: o}}
	if o.State.Terminal() {
		events = append(events, OrderEvent{Type: "completed", Order: o})
	}
	a.events.broadcast(events...)
	return id
}

// CloseOrder queues cancellation of the order with the given correlation
// id. Orders the broker has not acknowledged yet are left untouched.
func (a *Adapter) CloseOrder(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lifecycle == lifecycleStopping || a.lifecycle == lifecycleStopped {
		return
	}
	a.queue.Enqueue(Command{Type: CmdCancel, ID: id})
}

// OrderState returns the order with the given correlation id, or the zero
// Order if it is unknown.
func (a *Adapter) OrderState(id string) domain.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, _ := a.book.Lookup(id)
	return o
}

// PendingOrders returns copies of every pending order.
func (a *Adapter) PendingOrders() []domain.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.book.PendingOrders()
}

// PendingOrderNum returns the number of pending orders.
func (a *Adapter) PendingOrderNum() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.book.PendingCount()
}

// HoldingStock returns the last reconciled holdings.
func (a *Adapter) HoldingStock() []domain.Holding {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.account.holdingsCopy()
}

// Balance returns the last reconciled balance figures.
func (a *Adapter) Balance() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.account.balanceCopy()
}

// AccountState returns the session status.
func (a *Adapter) AccountState() domain.AccountStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.account.Status
}

// AccountDesc returns the diagnostic text attached to the session status.
func (a *Adapter) AccountDesc() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.account.Desc
}

// Subscribe returns a channel of order events. bufSize controls the channel
// buffer; events are dropped for subscribers that fall behind.
func (a *Adapter) Subscribe(bufSize int) (int, <-chan OrderEvent) {
	return a.events.subscribe(bufSize)
}

// Unsubscribe removes a subscriber and closes its channel.
func (a *Adapter) Unsubscribe(id int) {
	a.events.unsubscribe(id)
}

// failQueued finalizes the pending orders of queued Buy and Sell commands
// that will never be submitted. Must be called with mu held.
func (a *Adapter) failQueued(cmds []Command, desc string) []domain.Order {
	var failed []domain.Order
	now := a.now()
	for _, cmd := range cmds {
		if cmd.Type != CmdBuy && cmd.Type != CmdSell {
			continue
		}
		if o, ok := a.book.Complete(cmd.ID, domain.OrderStateFailed, desc, now); ok {
			failed = append(failed, o)
		}
	}
	return failed
}
