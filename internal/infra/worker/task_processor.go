package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
	"concept-forge/internal/domain/ports/usecase"
	"concept-forge/internal/infra/logging"
	"concept-forge/internal/infra/metrics"
)

type Outcome int

const (
	// OutcomeSkipped: the task was not ours (already claimed, terminal or missing).
	OutcomeSkipped Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	// OutcomeDeferred: the claim itself could not be attempted; redeliver.
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "skipped"
	}
}

// Handler processes one delivered job message.
type Handler interface {
	Handle(ctx context.Context, msg model.JobMessage) Outcome
}

// TaskProcessor is the only writer of terminal task status. Handle never
// panics and never returns an error to the delivery layer.
type TaskProcessor struct {
	tasks         usecase.TaskManager
	pipelines     usecase.PipelineRunner
	results       repository.ConceptRepository // optional; discards results of tasks failed meanwhile
	statusTimeout time.Duration
	log           *zerolog.Logger
}

var _ Handler = (*TaskProcessor)(nil)

func NewTaskProcessor(tasks usecase.TaskManager, pipelines usecase.PipelineRunner, results repository.ConceptRepository, statusTimeout time.Duration, log *zerolog.Logger) *TaskProcessor {
	if statusTimeout <= 0 {
		statusTimeout = 10 * time.Second
	}
	return &TaskProcessor{tasks: tasks, pipelines: pipelines, results: results, statusTimeout: statusTimeout, log: log}
}

func (p *TaskProcessor) Handle(ctx context.Context, msg model.JobMessage) (outcome Outcome) {
	ctx = logging.WithTraceID(ctx, msg.ID)
	ctx = logging.WithTaskID(ctx, msg.TaskID)
	ctx = logging.WithOwnerID(ctx, msg.OwnerID)
	log := logging.With(ctx, p.log)

	var task *model.Task
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("task handler panicked")
			outcome = OutcomeSkipped
			if task != nil {
				outcome = p.fail(ctx, task, fmt.Errorf("%w: panic: %v", domain.ErrOperationFailed, r))
			}
		}
	}()

	res, err := p.tasks.Claim(ctx, msg.TaskID, msg.OwnerID)
	if err != nil {
		log.Error().Err(err).Msg("claim failed; message will be redelivered")
		return OutcomeDeferred
	}
	if !res.Claimed() {
		log.Debug().Str("claim", res.Outcome.String()).Msg("task not claimed; skipping")
		return OutcomeSkipped
	}
	task = res.Task

	if msg.Type != "" && msg.Type != task.Type {
		log.Warn().Str("message_type", string(msg.Type)).Str("task_type", string(task.Type)).Msg("message type differs from stored task; using stored type")
	}

	log.Info().Str("type", string(task.Type)).Msg("processing task")
	start := time.Now()
	resultID, err := p.pipelines.Execute(ctx, task, msg.Payload)
	if err != nil {
		return p.fail(ctx, task, err)
	}
	return p.complete(ctx, task, resultID, time.Since(start))
}

func (p *TaskProcessor) complete(ctx context.Context, task *model.Task, resultID string, took time.Duration) Outcome {
	log := logging.With(ctx, p.log)
	stored, err := p.writeStatus(ctx, task.ID, model.TaskStatusCompleted, resultID, "")
	if err != nil {
		log.Error().Err(err).Str("result_id", resultID).Msg("could not record completed status; task left in processing")
	}
	if stored != nil && stored.Status != model.TaskStatusCompleted {
		// the task was failed while the pipeline ran (stale reaper); its
		// result must not outlive it
		p.discard(ctx, resultID, stored.Status)
		return OutcomeFailed
	}
	metrics.IncTaskProcessed(string(task.Type), string(model.TaskStatusCompleted))
	log.Info().Str("result_id", resultID).Dur("duration", took).Msg("task completed")
	return OutcomeCompleted
}

func (p *TaskProcessor) discard(ctx context.Context, resultID string, stored model.TaskStatus) {
	log := logging.With(ctx, p.log)
	if p.results == nil {
		log.Warn().Str("result_id", resultID).Str("stored", string(stored)).Msg("task already terminal; result left in place")
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.statusTimeout)
	defer cancel()
	removed, err := p.results.Delete(dctx, nil, resultID)
	metrics.IncCompensation(err == nil)
	if err != nil {
		log.Error().Err(err).Str("result_id", resultID).Msg("compensation failed: result of a terminal task left behind")
		return
	}
	log.Warn().
		Str("result_id", resultID).
		Str("stored", string(stored)).
		Bool("removed", removed).
		Msg("task already terminal; compensated by deleting its result")
}

// fail logs the raw cause and persists only the public message.
func (p *TaskProcessor) fail(ctx context.Context, task *model.Task, cause error) Outcome {
	log := logging.With(ctx, p.log)
	ev := log.Error().Err(cause).Str("type", string(task.Type))
	var se *domain.StageError
	if errors.As(cause, &se) {
		ev = ev.Str("stage", se.Stage)
	}
	var tf *domain.TransactionFailure
	if errors.As(cause, &tf) {
		ev = ev.Bool("compensated", tf.Compensated)
	}
	ev.Msg("task failed")

	if _, err := p.writeStatus(ctx, task.ID, model.TaskStatusFailed, "", domain.PublicMessage(cause)); err != nil {
		log.Error().Err(err).Msg("could not record failed status; task left in processing")
	}
	metrics.IncTaskProcessed(string(task.Type), string(model.TaskStatusFailed))
	return OutcomeFailed
}

// writeStatus runs on a context detached from the delivery context so a
// shutdown does not strand a claimed task.
// It returns the task as stored, which differs from status when another
// writer got there first.
func (p *TaskProcessor) writeStatus(ctx context.Context, taskID string, status model.TaskStatus, resultID, msg string) (*model.Task, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.statusTimeout)
	defer cancel()
	return p.tasks.UpdateStatus(sctx, taskID, status, resultID, msg)
}
