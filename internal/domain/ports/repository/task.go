package repository

import (
	"context"

	"concept-forge/internal/domain/model"
)

type TaskRepository interface {
	Create(ctx context.Context, tx Tx, task *model.Task) error
	// ConditionalUpdate writes upd only if the row matches id, owner (when
	// non-empty) and one of the expected statuses, in a single statement.
	// It returns the updated row and true, or nil and false when nothing matched.
	ConditionalUpdate(ctx context.Context, tx Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error)
	// Get returns domain.ErrNotFound when the task is absent or owned by
	// someone else. An empty owner skips the owner check.
	Get(ctx context.Context, tx Tx, id, owner string) (*model.Task, error)
	List(ctx context.Context, tx Tx, filter model.TaskFilter) ([]*model.Task, error)
	Delete(ctx context.Context, tx Tx, id, owner string) error
}
