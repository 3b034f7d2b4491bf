package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
)

var _ adapter.JobQueue = (*JobQueue)(nil)

// JobQueue is a reliable list queue: BRPOPLPUSH moves each message onto a
// processing list, Ack removes it from there, and Recover pushes anything
// left on the processing list back onto the queue. Messages are therefore
// delivered at least once.
type JobQueue struct {
	cli        *redis.Client
	name       string
	processing string
}

func NewJobQueue(c *Client, name string) *JobQueue {
	return &JobQueue{cli: c.cli, name: name, processing: name + ":processing"}
}

func (q *JobQueue) Enqueue(ctx context.Context, msg model.JobMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode job: %v", domain.ErrInvalidArgument, err)
	}
	if err := q.cli.LPush(ctx, q.name, b).Err(); err != nil {
		return fmt.Errorf("%w: enqueue: %w", domain.ErrTransientIO, err)
	}
	return nil
}

func (q *JobQueue) Dequeue(ctx context.Context, wait time.Duration) (*adapter.Delivery, error) {
	raw, err := q.cli.BRPopLPush(ctx, q.name, q.processing, wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dequeue: %w", domain.ErrTransientIO, err)
	}
	var msg model.JobMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// unreadable messages would be recovered forever; drop them
		_ = q.cli.LRem(ctx, q.processing, 1, raw).Err()
		return nil, fmt.Errorf("%w: decode job: %v", domain.ErrOperationFailed, err)
	}
	return &adapter.Delivery{Message: msg, Receipt: raw}, nil
}

func (q *JobQueue) Ack(ctx context.Context, d *adapter.Delivery) error {
	if d == nil {
		return nil
	}
	if err := q.cli.LRem(ctx, q.processing, 1, d.Receipt).Err(); err != nil {
		return fmt.Errorf("%w: ack: %w", domain.ErrTransientIO, err)
	}
	return nil
}

// Recover must only run while no consumer of this queue holds unacked
// messages, typically once at process start.
func (q *JobQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.cli.RPopLPush(ctx, q.processing, q.name).Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("%w: recover: %w", domain.ErrTransientIO, err)
		}
		n++
	}
	return n, nil
}

// Len reports pending and in-flight counts.
func (q *JobQueue) Len(ctx context.Context) (int64, int64, error) {
	pending, err := q.cli.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, 0, err
	}
	inflight, err := q.cli.LLen(ctx, q.processing).Result()
	if err != nil {
		return 0, 0, err
	}
	return pending, inflight, nil
}
