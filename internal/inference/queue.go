package inference

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/silvergrain/gallery/internal/metrics"
)

// queue serializes access to the inference service: at most one request is
// in flight at a time, dispatch order is FIFO with a priority fast-lane, and
// dispatches are paced so the downstream sees roughly one request per
// cool-down interval. This is deliberate backpressure, not an optimization:
// the model server serializes heavy inference and must not be flooded.
type queue struct {
	mu     sync.Mutex
	items  []*queueItem
	wake   chan struct{}
	pacer  *rate.Limiter
	closed bool
}

type queueItem struct {
	ctx  context.Context
	run  func()
	done chan struct{}
}

func newQueue(coolDown time.Duration) *queue {
	q := &queue{
		wake:  make(chan struct{}, 1),
		pacer: rate.NewLimiter(rate.Every(coolDown), 1),
	}
	go q.loop()
	return q
}

// Do enqueues fn and blocks until it has run or ctx is done. High-priority
// items go to the front of the queue instead of the back.
func (q *queue) Do(ctx context.Context, highPriority bool, fn func()) error {
	item := &queueItem{ctx: ctx, run: fn, done: make(chan struct{})}

	q.mu.Lock()
	if highPriority {
		q.items = append([]*queueItem{item}, q.items...)
	} else {
		q.items = append(q.items, item)
	}
	depth := len(q.items)
	q.mu.Unlock()

	metrics.InferenceQueueDepth.Set(float64(depth))

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case <-item.done:
		return nil
	case <-ctx.Done():
		// The dispatcher skips items whose context is already done.
		return ctx.Err()
	}
}

func (q *queue) loop() {
	for {
		item := q.pop()
		if item == nil {
			if q.isClosed() {
				return
			}
			<-q.wake
			continue
		}

		// Abandoned while waiting in line.
		if item.ctx.Err() != nil {
			close(item.done)
			continue
		}

		// Pace dispatches; the limiter admits one start per cool-down.
		_ = q.pacer.Wait(context.Background())

		item.run()
		close(item.done)
	}
}

func (q *queue) pop() *queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	metrics.InferenceQueueDepth.Set(float64(len(q.items)))
	return item
}

func (q *queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops the dispatcher once the queue drains.
func (q *queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
