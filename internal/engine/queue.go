package engine

import (
	"context"
	"sync"
	"time"
)

// CommandQueue is an unbounded FIFO mailbox with a wake-up signal. Any
// number of goroutines may Enqueue; a single worker drains it.
type CommandQueue struct {
	mu     sync.Mutex
	items  []Command
	signal chan struct{}
}

// NewCommandQueue returns an empty queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{signal: make(chan struct{}, 1)}
}

// Enqueue appends cmd to the tail and wakes the worker. It never blocks.
func (q *CommandQueue) Enqueue(cmd Command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
		// A wake-up is already pending.
	}
}

// TryDequeue pops the head of the queue if there is one.
func (q *CommandQueue) TryDequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Command{}, false
	}
	cmd := q.items[0]
	q.items[0] = Command{}
	q.items = q.items[1:]
	return cmd, true
}

// Wait blocks until a command is enqueued, d elapses, or ctx is done. It
// reports whether it was woken by a signal.
func (q *CommandQueue) Wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.signal:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued command in FIFO order.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
