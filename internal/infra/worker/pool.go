// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Job func(ctx context.Context) error

// Pool runs submitted jobs on a fixed number of goroutines. Submit blocks
// until a worker is free, which bounds the number of in-flight messages.
type Pool struct {
	wg       sync.WaitGroup
	jobs     chan Job
	quit     chan struct{}
	stopOnce sync.Once
	n        int
	log      *zerolog.Logger
}

func NewPool(workers int, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{jobs: make(chan Job), quit: make(chan struct{}), n: workers, log: log}
}

// Start launches the workers. Cancelling ctx stops intake; jobs already
// running finish on a context that ignores that cancellation.
func (p *Pool) Start(ctx context.Context) {
	jobCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case job := <-p.jobs:
					p.run(jobCtx, id, job)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("worker recovered panic")
		}
	}()
	if err := job(ctx); err != nil {
		p.log.Error().Int("worker", id).Err(err).Msg("job error")
	}
}

// Stop stops intake and waits for running jobs.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Submit hands job to a free worker, waiting until one is available.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
