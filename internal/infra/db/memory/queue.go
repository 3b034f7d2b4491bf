package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.JobQueue = (*Queue)(nil)

// Queue is an at-least-once in-process queue. Delivered messages stay in
// flight until acked; Recover puts them back. Every delivery gets its own
// receipt, so acking one copy of a re-enqueued message leaves the others
// in flight.
type Queue struct {
	mu       sync.Mutex
	pending  []model.JobMessage
	inflight map[string]model.JobMessage // by receipt
	signal   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{inflight: make(map[string]model.JobMessage), signal: make(chan struct{}, 1)}
}

func (q *Queue) Enqueue(ctx context.Context, msg model.JobMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()
	q.notify()
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*adapter.Delivery, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if d := q.pop(); d != nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.signal:
		}
	}
}

func (q *Queue) Ack(_ context.Context, d *adapter.Delivery) error {
	q.mu.Lock()
	delete(q.inflight, d.Receipt)
	q.mu.Unlock()
	return nil
}

func (q *Queue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	n := len(q.inflight)
	for receipt, msg := range q.inflight {
		q.pending = append(q.pending, msg)
		delete(q.inflight, receipt)
	}
	q.mu.Unlock()
	if n > 0 {
		q.notify()
	}
	return n, nil
}

// Len reports messages waiting and in flight.
func (q *Queue) Len() (pending, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.inflight)
}

func (q *Queue) pop() *adapter.Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	receipt := ulid.Make().String()
	q.inflight[receipt] = msg
	if len(q.pending) > 0 {
		q.notify()
	}
	return &adapter.Delivery{Message: msg, Receipt: receipt}
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
