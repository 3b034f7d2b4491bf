package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"concept-forge/internal/domain/ports/adapter"
	"concept-forge/internal/infra/metrics"
)

const (
	deferDelay = time.Second

	// dequeue error backoff doubles from minBackoff up to maxBackoff and
	// resets on the next successful dequeue
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// JobConsumer moves messages from the delivery queue into the pool. A
// message is acked once its handler returned, whatever the outcome, except
// deferred ones which go back on the queue first.
type JobConsumer struct {
	queue          adapter.JobQueue
	pool           *Pool
	handler        Handler
	pollWait       time.Duration
	recoverOnStart bool
	minBackoff     time.Duration
	maxBackoff     time.Duration
	log            *zerolog.Logger
}

func NewJobConsumer(queue adapter.JobQueue, pool *Pool, handler Handler, pollWait time.Duration, recoverOnStart bool, log *zerolog.Logger) *JobConsumer {
	if pollWait <= 0 {
		pollWait = 5 * time.Second
	}
	return &JobConsumer{
		queue:          queue,
		pool:           pool,
		handler:        handler,
		pollWait:       pollWait,
		recoverOnStart: recoverOnStart,
		minBackoff:     minBackoff,
		maxBackoff:     maxBackoff,
		log:            log,
	}
}

// Run blocks until ctx is cancelled or the pool stops.
func (c *JobConsumer) Run(ctx context.Context) error {
	c.log.Info().Msg("job consumer started")
	defer c.log.Info().Msg("job consumer stopped")

	if c.recoverOnStart {
		n, err := c.queue.Recover(ctx)
		if err != nil {
			c.log.Error().Err(err).Msg("recovering unacked messages failed")
		} else if n > 0 {
			metrics.AddRecovered(n)
			c.log.Warn().Int("count", n).Msg("requeued unacked messages from a previous run")
		}
	}

	backoff := c.minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := c.queue.Dequeue(ctx, c.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error().Err(err).Dur("backoff", backoff).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff
		if d == nil {
			continue
		}
		metrics.IncDequeued()
		if err := c.pool.Submit(ctx, c.job(d)); err != nil {
			// the message stays in flight and is recovered on the next start
			c.log.Warn().Err(err).Str("message_id", d.Message.ID).Msg("pool closed before the message was handled")
			return nil
		}
	}
}

func (c *JobConsumer) job(d *adapter.Delivery) Job {
	return func(ctx context.Context) error {
		if c.handler.Handle(ctx, d.Message) == OutcomeDeferred {
			select {
			case <-ctx.Done():
			case <-time.After(deferDelay):
			}
			if err := c.queue.Enqueue(ctx, d.Message); err != nil {
				return err
			}
		}
		return c.queue.Ack(ctx, d)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	if next := cur * 2; next < limit {
		return next
	}
	return limit
}
