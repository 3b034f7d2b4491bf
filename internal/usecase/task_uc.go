// File: internal/usecase/task_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
	ucport "concept-forge/internal/domain/ports/usecase"
	"concept-forge/internal/infra/logging"
	"concept-forge/internal/infra/metrics"
)

// Compile-time check
var (
	_ TaskUseCase        = (*taskUC)(nil)
	_ ucport.TaskManager = (*taskUC)(nil)
)

type TaskUseCase interface {
	Create(ctx context.Context, owner string, typ model.TaskType, metadata map[string]string) (*model.Task, error)
	Claim(ctx context.Context, taskID, owner string) (model.ClaimResult, error)
	UpdateStatus(ctx context.Context, taskID string, status model.TaskStatus, resultID, errorMessage string) (*model.Task, error)
	Get(ctx context.Context, taskID, owner string) (*model.Task, error)
	List(ctx context.Context, owner string, status *model.TaskStatus, limit int) ([]*model.Task, error)
	Delete(ctx context.Context, taskID, owner string) error
	// FailStale fails tasks stuck in processing for longer than olderThan,
	// across all owners. It returns how many it failed.
	FailStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type taskUC struct {
	tasks      repository.TaskRepository
	privileged repository.TaskRepository // optional second access path
	errMax     int
	log        *zerolog.Logger
	now        func() time.Time
}

// NewTaskUseCase wires the task store. privileged may be nil, in which case
// store failures surface without a retry.
func NewTaskUseCase(tasks, privileged repository.TaskRepository, errMax int, log *zerolog.Logger) *taskUC {
	if errMax <= 0 {
		errMax = domain.DefaultErrorMessageMax
	}
	return &taskUC{
		tasks:      tasks,
		privileged: privileged,
		errMax:     errMax,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (u *taskUC) Create(ctx context.Context, owner string, typ model.TaskType, metadata map[string]string) (*model.Task, error) {
	t, err := model.NewTask(owner, typ, metadata)
	if err != nil {
		return nil, err
	}
	if err := u.withFallback(ctx, "create", t.ID, func(r repository.TaskRepository) error {
		return r.Create(ctx, nil, t)
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Claim moves a pending task to processing in a single conditional write.
// Losing the race is not an error. Each call carries a fresh claim token:
// when the primary write fails after it may have committed, the privileged
// retry recognizes the task as ours by that token.
func (u *taskUC) Claim(ctx context.Context, taskID, owner string) (model.ClaimResult, error) {
	var (
		claimed  *model.Task
		ok       bool
		attempts int
	)
	token := ulid.Make().String()
	err := u.withFallback(ctx, "claim", taskID, func(r repository.TaskRepository) error {
		attempts++
		var err error
		claimed, ok, err = r.ConditionalUpdate(ctx, nil, taskID, owner,
			[]model.TaskStatus{model.TaskStatusPending},
			model.TaskUpdate{Status: model.TaskStatusProcessing, ClaimToken: token})
		if err != nil || ok || attempts == 1 {
			return err
		}
		if cur, gerr := r.Get(ctx, nil, taskID, owner); gerr == nil &&
			cur.Status == model.TaskStatusProcessing && cur.ClaimToken == token {
			claimed, ok = cur, true
		}
		return nil
	})
	if err != nil {
		metrics.IncClaim("error")
		return model.ClaimResult{}, err
	}
	if ok {
		metrics.IncClaim(model.ClaimClaimed.String())
		return model.ClaimResult{Outcome: model.ClaimClaimed, Task: claimed}, nil
	}

	// Nothing matched. The follow-up read only labels the outcome; it
	// never changes who owns the task.
	res := model.ClaimResult{Outcome: model.ClaimNotClaimed}
	if _, gerr := u.tasks.Get(ctx, nil, taskID, owner); errors.Is(gerr, domain.ErrNotFound) {
		res.Outcome = model.ClaimNotFound
	} else if gerr != nil {
		logging.With(ctx, u.log).Debug().Err(gerr).Str("task_id", taskID).Msg("claim outcome lookup failed")
	}
	metrics.IncClaim(res.Outcome.String())
	return res, nil
}

// UpdateStatus writes a terminal status. A task that is already terminal
// is returned as stored, without a second write.
func (u *taskUC) UpdateStatus(ctx context.Context, taskID string, status model.TaskStatus, resultID, errorMessage string) (*model.Task, error) {
	upd, err := u.terminalUpdate(status, resultID, errorMessage)
	if err != nil {
		return nil, err
	}

	var (
		updated *model.Task
		ok      bool
	)
	if err := u.withFallback(ctx, "update_status", taskID, func(r repository.TaskRepository) error {
		var err error
		updated, ok, err = r.ConditionalUpdate(ctx, nil, taskID, "",
			[]model.TaskStatus{model.TaskStatusProcessing}, upd)
		return err
	}); err != nil {
		return nil, err
	}
	if ok {
		return updated, nil
	}

	var current *model.Task
	if err := u.withFallback(ctx, "get", taskID, func(r repository.TaskRepository) error {
		var err error
		current, err = r.Get(ctx, nil, taskID, "")
		return err
	}); err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		if current.Status != status {
			logging.With(ctx, u.log).Warn().
				Str("task_id", taskID).
				Str("stored", string(current.Status)).
				Str("requested", string(status)).
				Msg("terminal status already recorded; ignoring update")
		}
		return current, nil
	}
	return nil, fmt.Errorf("%w: task %s is %s, cannot move to %s", domain.ErrInvalidArgument, taskID, current.Status, status)
}

func (u *taskUC) terminalUpdate(status model.TaskStatus, resultID, errorMessage string) (model.TaskUpdate, error) {
	now := u.now()
	switch status {
	case model.TaskStatusCompleted:
		if resultID == "" {
			return model.TaskUpdate{}, fmt.Errorf("%w: completed task needs a result id", domain.ErrInvalidArgument)
		}
		return model.TaskUpdate{Status: status, ResultID: &resultID, CompletedAt: &now}, nil
	case model.TaskStatusFailed:
		msg := domain.SanitizeMessage(errorMessage, u.errMax)
		if msg == "" {
			msg = "task failed"
		}
		return model.TaskUpdate{Status: status, ErrorMessage: &msg, CompletedAt: &now}, nil
	}
	return model.TaskUpdate{}, fmt.Errorf("%w: %q is not a terminal status", domain.ErrInvalidArgument, status)
}

func (u *taskUC) Get(ctx context.Context, taskID, owner string) (*model.Task, error) {
	if owner == "" {
		return nil, domain.ErrInvalidArgument
	}
	var t *model.Task
	err := u.withFallback(ctx, "get", taskID, func(r repository.TaskRepository) error {
		var err error
		t, err = r.Get(ctx, nil, taskID, owner)
		return err
	})
	return t, err
}

func (u *taskUC) List(ctx context.Context, owner string, status *model.TaskStatus, limit int) ([]*model.Task, error) {
	if owner == "" || (status != nil && !status.Valid()) {
		return nil, domain.ErrInvalidArgument
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var out []*model.Task
	err := u.withFallback(ctx, "list", "", func(r repository.TaskRepository) error {
		var err error
		out, err = r.List(ctx, nil, model.TaskFilter{OwnerID: owner, Status: status, Limit: limit})
		return err
	})
	return out, err
}

func (u *taskUC) Delete(ctx context.Context, taskID, owner string) error {
	if owner == "" {
		return domain.ErrInvalidArgument
	}
	return u.withFallback(ctx, "delete", taskID, func(r repository.TaskRepository) error {
		return r.Delete(ctx, nil, taskID, owner)
	})
}

// staleMessage is what an abandoned task reports.
var staleMessage = domain.PublicMessage(domain.ErrStageTimeout)

func (u *taskUC) FailStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	now := u.now()
	cutoff := now.Add(-olderThan)
	processing := model.TaskStatusProcessing

	var stale []*model.Task
	if err := u.withFallback(ctx, "list_stale", "", func(r repository.TaskRepository) error {
		var err error
		stale, err = r.List(ctx, nil, model.TaskFilter{Status: &processing, UpdatedBefore: &cutoff, Limit: limit})
		return err
	}); err != nil {
		return 0, err
	}

	n := 0
	for _, t := range stale {
		msg := staleMessage
		upd := model.TaskUpdate{Status: model.TaskStatusFailed, ErrorMessage: &msg, CompletedAt: &now}
		var ok bool
		err := u.withFallback(ctx, "fail_stale", t.ID, func(r repository.TaskRepository) error {
			var err error
			_, ok, err = r.ConditionalUpdate(ctx, nil, t.ID, "", []model.TaskStatus{model.TaskStatusProcessing}, upd)
			return err
		})
		if err != nil {
			return n, err
		}
		if ok {
			n++
			metrics.IncTaskProcessed(string(t.Type), string(model.TaskStatusFailed))
			logging.With(ctx, u.log).Warn().
				Str("task_id", t.ID).
				Time("updated_at", t.UpdatedAt).
				Msg("failed stale processing task")
		}
	}
	return n, nil
}

// withFallback runs fn against the primary store and, on a store-level
// failure, exactly once more against the privileged store.
func (u *taskUC) withFallback(ctx context.Context, op, taskID string, fn func(repository.TaskRepository) error) error {
	err := fn(u.tasks)
	if err == nil || !retryable(ctx, err) {
		return err
	}
	if u.privileged == nil {
		return &domain.TaskError{Op: op, TaskID: taskID, Err: err}
	}

	logging.With(ctx, u.log).Warn().Err(err).Str("op", op).Str("task_id", taskID).Msg("task store failed; retrying on privileged path")
	err = fn(u.privileged)
	metrics.IncStoreFallback(op, err == nil)
	if err == nil {
		return nil
	}
	if !retryable(ctx, err) {
		return err
	}
	return &domain.TaskError{Op: op, TaskID: taskID, Err: err}
}

// retryable excludes outcomes the store reported on purpose.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, domain.ErrAlreadyExists) &&
		!errors.Is(err, domain.ErrInvalidArgument)
}
