package usecase

import (
	"context"

	"concept-forge/internal/domain/model"
)

// TaskManager is the slice of the task use case that background workers
// need: claiming and terminal status writes.
type TaskManager interface {
	Claim(ctx context.Context, taskID, owner string) (model.ClaimResult, error)
	UpdateStatus(ctx context.Context, taskID string, status model.TaskStatus, resultID, errorMessage string) (*model.Task, error)
}

// PipelineRunner runs the pipeline for a task's type and returns the id
// of the aggregate it produced.
type PipelineRunner interface {
	Execute(ctx context.Context, task *model.Task, payload map[string]string) (string, error)
}
