package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"concept-forge/internal/infra/logging"
)

func TestPool_RunsJobsAndSurvivesPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(2, logging.Nop())
	p.Start(ctx)

	var ran atomic.Int32
	done := make(chan struct{}, 3)
	jobs := []Job{
		func(context.Context) error { panic("boom") },
		func(context.Context) error { ran.Add(1); done <- struct{}{}; return nil },
		func(context.Context) error { ran.Add(1); done <- struct{}{}; return errors.New("logged only") },
	}
	for _, j := range jobs {
		if err := p.Submit(ctx, j); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("jobs did not run")
		}
	}
	p.Stop()
	if ran.Load() != 2 {
		t.Errorf("expected 2 jobs after a panic, got %d", ran.Load())
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(1, logging.Nop())
	p.Start(context.Background())
	p.Stop()
	p.Stop() // idempotent
	if err := p.Submit(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_SubmitBlocksUntilWorkerFree(t *testing.T) {
	p := NewPool(1, logging.Nop())
	p.Start(context.Background())
	defer p.Stop()

	release := make(chan struct{})
	_ = p.Submit(context.Background(), func(context.Context) error { <-release; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected submit to block until the deadline, got %v", err)
	}
	close(release)
}

func TestPool_RunningJobOutlivesIntakeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(1, logging.Nop())
	p.Start(ctx)

	started := make(chan struct{})
	var jobErr atomic.Value
	_ = p.Submit(ctx, func(jctx context.Context) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		if err := jctx.Err(); err != nil {
			jobErr.Store(err)
		}
		return nil
	})
	<-started
	cancel()
	p.Stop()
	if v := jobErr.Load(); v != nil {
		t.Errorf("running job saw cancellation: %v", v)
	}
}
