// Package memory holds in-process implementations of the storage and
// delivery ports. They back dev mode and cross-package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.TaskRepository = (*TaskStore)(nil)

// TaskStore keeps tasks in a map. The mutex lives inside the store and
// plays the role of the database row lock: ConditionalUpdate is a single
// critical section, like the single UPDATE statement in postgres.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	now   func() time.Time
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*model.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *TaskStore) Create(ctx context.Context, _ repository.Tx, t *model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *TaskStore) ConditionalUpdate(ctx context.Context, _ repository.Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || (owner != "" && t.OwnerID != owner) || !statusIn(t.Status, expected) {
		return nil, false, nil
	}
	upd.Apply(t, s.now())
	return t.Clone(), true, nil
}

func (s *TaskStore) Get(ctx context.Context, _ repository.Tx, id, owner string) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || (owner != "" && t.OwnerID != owner) {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

// List returns tasks newest first.
func (s *TaskStore) List(ctx context.Context, _ repository.Tx, f model.TaskFilter) ([]*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*model.Task, 0)
	for _, t := range s.tasks {
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.UpdatedBefore != nil && !t.UpdatedAt.Before(*f.UpdatedBefore) {
			continue
		}
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *TaskStore) Delete(ctx context.Context, _ repository.Tx, id, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || (owner != "" && t.OwnerID != owner) {
		return domain.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func statusIn(s model.TaskStatus, set []model.TaskStatus) bool {
	for _, e := range set {
		if s == e {
			return true
		}
	}
	return false
}
