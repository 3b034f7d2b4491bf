//go:build !integration

package postgres

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
	red "concept-forge/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerTaskRepo mocks the database repository that the task decorator wraps.
type mockInnerTaskRepo struct {
	CreateFunc            func(ctx context.Context, tx repository.Tx, t *model.Task) error
	ConditionalUpdateFunc func(ctx context.Context, tx repository.Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error)
	GetFunc               func(ctx context.Context, tx repository.Tx, id, owner string) (*model.Task, error)
	ListFunc              func(ctx context.Context, tx repository.Tx, f model.TaskFilter) ([]*model.Task, error)
	DeleteFunc            func(ctx context.Context, tx repository.Tx, id, owner string) error
}

func (m *mockInnerTaskRepo) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	return m.CreateFunc(ctx, tx, t)
}
func (m *mockInnerTaskRepo) ConditionalUpdate(ctx context.Context, tx repository.Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error) {
	return m.ConditionalUpdateFunc(ctx, tx, id, owner, expected, upd)
}
func (m *mockInnerTaskRepo) Get(ctx context.Context, tx repository.Tx, id, owner string) (*model.Task, error) {
	return m.GetFunc(ctx, tx, id, owner)
}
func (m *mockInnerTaskRepo) List(ctx context.Context, tx repository.Tx, f model.TaskFilter) ([]*model.Task, error) {
	return m.ListFunc(ctx, tx, f)
}
func (m *mockInnerTaskRepo) Delete(ctx context.Context, tx repository.Tx, id, owner string) error {
	return m.DeleteFunc(ctx, tx, id, owner)
}

// mockRedisClient mocks our Redis client wrapper with an in-memory map.
type mockRedisClient struct {
	data    map[string]string
	GetFunc func(ctx context.Context, key string) (string, error)
	deleted []string
}

var _ red.RedisClient = &mockRedisClient{}

func newMockRedis() *mockRedisClient { return &mockRedisClient{data: map[string]string{}} }

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	m.deleted = append(m.deleted, keys...)
	return nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Close() error                   { return nil }
