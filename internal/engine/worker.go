package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"livetrade/internal/domain"
)

// run is the worker goroutine. It owns the broker session until it returns.
func (a *Adapter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	a.log.Info("worker started")
	inflight, err := a.loop(ctx)

	// Logout even when ctx is already cancelled.
	if lerr := a.session.Logout(context.WithoutCancel(ctx)); lerr != nil {
		a.log.Warn("logout failed", "error", lerr)
	}

	var failed []domain.Order
	a.commit(func() {
		if err != nil {
			a.account.setStatus(domain.AccountFailed, err.Error())
		} else {
			a.account.setStatus(domain.AccountIdle, "logged out")
		}
		if a.lifecycle == lifecycleRunning && err != nil {
			a.lifecycle = lifecycleIdle
		} else {
			a.lifecycle = lifecycleStopped
		}
		a.startQueued = false
		if err != nil {
			failed = a.failQueued([]Command{inflight}, err.Error())
		}
		failed = append(failed, a.failQueued(a.queue.Drain(), "adapter exited before submission")...)
	})
	a.finalize(ctx, failed)

	if err != nil {
		a.log.Error("worker exited on fault", "error", err)
		return
	}
	a.log.Info("worker stopped")
}

// loop processes commands until Stop or ctx cancellation. A panic anywhere
// below is converted into the returned error, and inflight is the command
// being dispatched at the time, if any.
func (a *Adapter) loop(ctx context.Context) (inflight Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker fault: %v", r)
			a.log.Debug("worker panic stack", "stack", string(debug.Stack()))
		}
	}()

	lastReconcile := a.now()
	for {
		if ctx.Err() != nil {
			return Command{}, nil
		}

		if cmd, ok := a.queue.TryDequeue(); ok {
			a.log.Debug("dispatching command", "type", cmd.Type.String(), "id", cmd.ID)
			if cmd.Type == CmdStop {
				return Command{}, nil
			}
			inflight = cmd
			a.dispatch(ctx, cmd)
			inflight = Command{}
			continue
		}

		if a.now().Sub(lastReconcile) > a.reconcileInterval {
			a.reconcile(ctx)
			lastReconcile = a.now()
		}
		a.queue.Wait(ctx, a.pollInterval)
		a.pollPackets()
	}
}

func (a *Adapter) dispatch(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case CmdStart:
		a.handleStart(ctx)
	case CmdBuy, CmdSell:
		a.handleSubmit(ctx, cmd)
	case CmdCancel:
		a.handleCancel(ctx, cmd.ID)
	default:
		a.log.Warn("ignoring unknown command", "type", int(cmd.Type))
	}
}

func (a *Adapter) handleStart(ctx context.Context) {
	if err := a.session.Login(ctx); err != nil {
		a.log.Error("login failed", "error", err)
		a.commit(func() {
			a.account.setStatus(domain.AccountFailed, "login failed: "+err.Error())
			a.startQueued = false
		})
		return
	}

	holdings, herr := a.session.GetHoldingStock(ctx)
	balance, berr := a.session.GetMoneyLeft(ctx)
	if herr != nil || berr != nil {
		a.log.Warn("seeding account snapshot", "holdings_error", herr, "balance_error", berr)
	}

	a.commit(func() {
		a.account.setStatus(domain.AccountLogin, "login success")
		if herr == nil && berr == nil {
			a.account.refresh(balance, holdings)
		}
		a.startQueued = false
	})
	a.log.Info("session logged in", "holdings", len(holdings))
}

func (a *Adapter) handleSubmit(ctx context.Context, cmd Command) {
	var (
		brokerID string
		err      error
	)
	if cmd.Type == CmdBuy {
		brokerID, err = a.session.Buy(ctx, cmd.Symbol, cmd.Price, cmd.Qty, cmd.OrderType)
	} else {
		brokerID, err = a.session.Sell(ctx, cmd.Symbol, cmd.Price, cmd.Qty, cmd.OrderType)
	}

	var (
		o      domain.Order
		ok     bool
		failed bool
	)
	a.commit(func() {
		if err == nil && brokerID != "" {
			o, ok = a.book.Acknowledge(cmd.ID, brokerID, a.now())
			return
		}
		desc := "broker returned no order id"
		if err != nil {
			desc = err.Error()
		}
		o, ok = a.book.Complete(cmd.ID, domain.OrderStateFailed, desc, a.now())
		failed = true
	})
	if !ok {
		a.log.Warn("submitted order missing from pending", "id", cmd.ID)
		return
	}

	if failed {
		a.log.Warn("order rejected", "id", cmd.ID, "symbol", cmd.Symbol, "reason", o.Desc)
		a.finalize(ctx, []domain.Order{o})
		return
	}
	a.log.Info("order acknowledged", "id", cmd.ID, "broker_id", brokerID, "symbol", cmd.Symbol,
		"side", cmd.Type.String(), "qty", cmd.Qty, "price", cmd.Price)
	a.events.broadcast(OrderEvent{Type: "acknowledged", Order: o})
}

func (a *Adapter) handleCancel(ctx context.Context, id string) {
	var (
		o  domain.Order
		ok bool
	)
	a.read(func() { o, ok = a.book.Pending(id) })
	if !ok {
		a.log.Debug("cancel for unknown or completed order", "id", id)
		return
	}
	if o.BrokerID == "" {
		// Not acknowledged yet; nothing to cancel at the broker.
		a.log.Info("cancel ignored, order not acknowledged", "id", id)
		return
	}

	if err := a.session.CancelOrder(ctx, o.BrokerID, o.Symbol); err != nil {
		a.log.Warn("cancel failed", "id", id, "broker_id", o.BrokerID, "error", err)
		return
	}

	a.commit(func() {
		o, ok = a.book.Complete(id, domain.OrderStateCanceled, "", a.now())
	})
	if ok {
		a.log.Info("order canceled", "id", id, "broker_id", o.BrokerID)
		a.finalize(ctx, []domain.Order{o})
	}
}

// reconcile refreshes holdings, balance and fill status from the broker.
// Broker queries run without the lock; all results are applied in one
// critical section.
func (a *Adapter) reconcile(ctx context.Context) {
	var (
		status  domain.AccountStatus
		pending int
	)
	a.read(func() {
		status = a.account.Status
		pending = a.book.PendingCount()
	})
	if status != domain.AccountLogin {
		return
	}

	holdings, err := a.session.GetHoldingStock(ctx)
	if err != nil {
		a.log.Warn("reconcile: holdings", "error", err)
		return
	}
	balance, err := a.session.GetMoneyLeft(ctx)
	if err != nil {
		a.log.Warn("reconcile: balance", "error", err)
		return
	}
	var reports []domain.BrokerOrder
	if pending > 0 {
		reports, err = a.session.GetAllOrders(ctx)
		if err != nil {
			a.log.Warn("reconcile: orders", "error", err)
			return
		}
	}

	var (
		updated   []OrderEvent
		completed []domain.Order
	)
	a.commit(func() {
		a.account.refresh(balance, holdings)
		now := a.now()
		for _, r := range reports {
			o, res := a.book.ApplyReport(r, now)
			switch res {
			case ApplyUpdated:
				updated = append(updated, OrderEvent{Type: "updated", Order: o})
			case ApplyCompleted:
				completed = append(completed, o)
			case ApplyStale:
				a.log.Warn("ignoring fill report below recorded quantity",
					"id", o.CorrelationID, "recorded", o.FilledQty, "reported", r.FilledQty)
			}
		}
	})

	a.events.broadcast(updated...)
	for _, o := range completed {
		a.log.Info("order completed", "id", o.CorrelationID, "state", string(o.State),
			"filled_qty", o.FilledQty, "filled_price", o.FilledPrice)
	}
	a.finalize(ctx, completed)
}

// pollPackets drains one push message from the session, if any.
func (a *Adapter) pollPackets() {
	if pkt, ok := a.session.TryRecvPacket(); ok {
		a.log.Debug("broker packet", "bytes", len(pkt), "packet", string(pkt))
	}
}

// finalize journals and announces orders that reached a terminal state.
func (a *Adapter) finalize(ctx context.Context, orders []domain.Order) {
	if len(orders) == 0 {
		return
	}
	if a.journal != nil {
		jctx := context.WithoutCancel(ctx)
		for i := range orders {
			if err := a.journal.RecordOrder(jctx, &orders[i]); err != nil {
				a.log.Error("journaling order", "id", orders[i].CorrelationID, "error", err)
			}
		}
	}
	a.events.broadcast(completedEvents(orders)...)
}

func completedEvents(orders []domain.Order) []OrderEvent {
	out := make([]OrderEvent, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderEvent{Type: "completed", Order: o})
	}
	return out
}

// commit runs fn with the write lock held. The deferred unlock keeps the
// lock consistent if fn panics.
func (a *Adapter) commit(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn()
}

func (a *Adapter) read(fn func()) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn()
}
