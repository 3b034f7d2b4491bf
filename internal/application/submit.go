package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
	"concept-forge/internal/infra/logging"
	"concept-forge/internal/usecase"
)

// Submitter is the submission boundary: it records a pending task and
// hands its job message to the delivery queue.
type Submitter struct {
	tasks usecase.TaskUseCase
	queue adapter.JobQueue
	log   *zerolog.Logger
}

func NewSubmitter(tasks usecase.TaskUseCase, queue adapter.JobQueue, log *zerolog.Logger) *Submitter {
	return &Submitter{tasks: tasks, queue: queue, log: log}
}

// Submit creates the task and enqueues it. If the enqueue fails the task
// is removed again so no pending row is left without a message.
func (s *Submitter) Submit(ctx context.Context, owner string, typ model.TaskType, params map[string]string) (*model.Task, error) {
	if err := requireParams(typ, params); err != nil {
		return nil, err
	}
	task, err := s.tasks.Create(ctx, owner, typ, params)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithTaskID(logging.WithOwnerID(ctx, owner), task.ID)
	l := logging.With(ctx, s.log)

	msg := model.NewJobMessage(task, params)
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		if derr := s.tasks.Delete(context.WithoutCancel(ctx), task.ID, owner); derr != nil {
			l.Error().Err(derr).Msg("removing unqueued task failed")
		}
		return nil, fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	l.Info().Str("type", string(typ)).Str("message_id", msg.ID).Msg("task submitted")
	return task, nil
}

func requireParams(typ model.TaskType, p map[string]string) error {
	switch typ {
	case model.TaskTypeGeneration:
		if strings.TrimSpace(p[usecase.ParamPrompt]) == "" {
			return fmt.Errorf("%w: prompt is required", domain.ErrInvalidArgument)
		}
	case model.TaskTypeRefinement:
		if p[usecase.ParamConceptID] == "" || strings.TrimSpace(p[usecase.ParamInstruction]) == "" {
			return fmt.Errorf("%w: concept_id and instruction are required", domain.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedTaskType, typ)
	}
	return nil
}

// Await polls until the task reaches a terminal status or ctx ends.
func Await(ctx context.Context, tasks usecase.TaskUseCase, taskID, owner string, every time.Duration) (*model.Task, error) {
	if every <= 0 {
		every = 250 * time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		task, err := tasks.Get(ctx, taskID, owner)
		if err != nil {
			return nil, err
		}
		if task.Status.IsTerminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-t.C:
		}
	}
}
