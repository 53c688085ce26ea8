package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/logger"
)

var (
	ErrQueueFull = errors.New("notify: queue full, event dropped")
	ErrClosed    = errors.New("notify: notifier closed")
)

// DefaultDeliveryTimeout bounds one delivery attempt on the worker.
const DefaultDeliveryTimeout = 5 * time.Second

type queued struct {
	ctx   context.Context
	event booking.Event
}

// Async hands events to a single worker goroutine through a bounded queue.
// Notify never blocks: when the queue is full the event is dropped and
// ErrQueueFull is returned for the caller to log.
type Async struct {
	next    booking.Notifier
	log     *logger.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan queued
	closed bool
	done   chan struct{}
}

func NewAsync(next booking.Notifier, size int, log *logger.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		next:    next,
		log:     logger.OrDiscard(log),
		timeout: DefaultDeliveryTimeout,
		queue:   make(chan queued, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(ctx context.Context, e booking.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	// Keep trace and request values but drop the caller's cancellation:
	// the request usually finishes before delivery does.
	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), event: e}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for q := range a.queue {
		ctx, cancel := context.WithTimeout(q.ctx, a.timeout)
		if err := a.next.Notify(ctx, q.event); err != nil {
			a.log.Warn("event delivery failed",
				"event_id", q.event.ID, "event_type", q.event.Type, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queue is drained or ctx
// expires.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
