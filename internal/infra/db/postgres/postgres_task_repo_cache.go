package postgres

import (
	"context"
	"encoding/json"
	"time"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
	"concept-forge/internal/infra/metrics"
	red "concept-forge/internal/infra/redis"
)

var _ repository.TaskRepository = (*taskRepoCacheDecorator)(nil)

// taskRepoCacheDecorator caches Get results for tasks in a terminal state.
// Terminal rows never change, so the only invalidation needed is Delete.
// Pending and processing rows always go to the inner store; the claim and
// the terminal write must see the current status.
type taskRepoCacheDecorator struct {
	inner repository.TaskRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewTaskRepoCacheDecorator(inner repository.TaskRepository, cache red.RedisClient, ttl time.Duration) repository.TaskRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &taskRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func taskKey(id string) string { return "task:" + id }

func (d *taskRepoCacheDecorator) Get(ctx context.Context, tx repository.Tx, id, owner string) (*model.Task, error) {
	if tx == nil {
		val, err := d.cache.Get(ctx, taskKey(id))
		if err == nil {
			var t model.Task
			if json.Unmarshal([]byte(val), &t) == nil {
				metrics.IncCacheRequest("task", "hit")
				if owner != "" && t.OwnerID != owner {
					return nil, domain.ErrNotFound
				}
				return &t, nil
			}
		} else if !red.IsMiss(err) {
			metrics.IncCacheRequest("task", "error")
		}
	}

	metrics.IncCacheRequest("task", "miss")
	t, err := d.inner.Get(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	d.store(ctx, t)
	return t, nil
}

func (d *taskRepoCacheDecorator) store(ctx context.Context, t *model.Task) {
	if t == nil || !t.Status.IsTerminal() {
		return
	}
	if b, err := json.Marshal(t); err == nil {
		_ = d.cache.Set(ctx, taskKey(t.ID), b, d.ttl)
	}
}

func (d *taskRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	return d.inner.Create(ctx, tx, t)
}

func (d *taskRepoCacheDecorator) ConditionalUpdate(ctx context.Context, tx repository.Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error) {
	t, ok, err := d.inner.ConditionalUpdate(ctx, tx, id, owner, expected, upd)
	if err == nil && ok && tx == nil {
		d.store(ctx, t)
	}
	return t, ok, err
}

func (d *taskRepoCacheDecorator) List(ctx context.Context, tx repository.Tx, f model.TaskFilter) ([]*model.Task, error) {
	return d.inner.List(ctx, tx, f)
}

func (d *taskRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, id, owner string) error {
	if err := d.inner.Delete(ctx, tx, id, owner); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, taskKey(id))
	return nil
}
