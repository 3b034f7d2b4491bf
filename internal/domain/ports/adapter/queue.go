package adapter

import (
	"context"
	"time"

	"concept-forge/internal/domain/model"
)

// Delivery is a dequeued message plus the handle needed to ack it.
type Delivery struct {
	Message model.JobMessage
	Receipt string
}

// JobQueue is the job delivery system: at-least-once, unordered.
type JobQueue interface {
	Enqueue(ctx context.Context, msg model.JobMessage) error
	// Dequeue blocks up to wait for a message. It returns (nil, nil) on timeout.
	Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Recover re-queues messages that were delivered but never acked.
	Recover(ctx context.Context) (int, error)
}
