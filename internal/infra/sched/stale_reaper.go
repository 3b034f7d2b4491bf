package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"concept-forge/internal/usecase"
)

// StaleTaskReaper fails tasks left in processing by a worker that died
// mid-pipeline. Redelivery cannot recover those: the claim only moves
// pending tasks.
type StaleTaskReaper struct {
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	tasks      usecase.TaskUseCase
	log        *zerolog.Logger
}

func NewStaleTaskReaper(interval, staleAfter time.Duration, tasks usecase.TaskUseCase, logger *zerolog.Logger) *StaleTaskReaper {
	l := logger.With().Str("component", "StaleTaskReaper").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleTaskReaper{
		interval:   interval,
		staleAfter: staleAfter,
		batch:      100,
		tasks:      tasks,
		log:        &l,
	}
}

func (w *StaleTaskReaper) Run(ctx context.Context) error {
	w.log.Info().Dur("stale_after", w.staleAfter).Msg("Starting stale task reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stale task reaper")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *StaleTaskReaper) sweep(ctx context.Context) {
	n, err := w.tasks.FailStale(ctx, w.staleAfter, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("stale task sweep failed")
	}
	if n > 0 {
		w.log.Warn().Int("count", n).Msg("stale tasks failed")
	}
}
