//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
)

func TestTaskRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostgresTaskRepo(testPool)

	newTask := func(t *testing.T, owner string) *model.Task {
		t.Helper()
		task, err := model.NewTask(owner, model.TaskTypeGeneration, map[string]string{"prompt": "a lighthouse"})
		if err != nil {
			t.Fatalf("new task: %v", err)
		}
		if err := repo.Create(ctx, nil, task); err != nil {
			t.Fatalf("create: %v", err)
		}
		return task
	}
	claim := model.TaskUpdate{Status: model.TaskStatusProcessing}
	pending := []model.TaskStatus{model.TaskStatusPending}

	t.Run("should create and read back a task", func(t *testing.T) {
		cleanup(t)
		task := newTask(t, "owner-1")
		got, err := repo.Get(ctx, nil, task.ID, "owner-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != model.TaskStatusPending || got.Metadata["prompt"] != "a lighthouse" {
			t.Errorf("unexpected task %+v", got)
		}
		if err := repo.Create(ctx, nil, task); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists on duplicate id, got %v", err)
		}
		if _, err := repo.Get(ctx, nil, task.ID, "someone-else"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for another owner, got %v", err)
		}
	})

	t.Run("claim token is written on claim and kept on terminal writes", func(t *testing.T) {
		cleanup(t)
		task := newTask(t, "owner-1")
		got, ok, err := repo.ConditionalUpdate(ctx, nil, task.ID, "owner-1", pending,
			model.TaskUpdate{Status: model.TaskStatusProcessing, ClaimToken: "tok-1"})
		if err != nil || !ok || got.ClaimToken != "tok-1" {
			t.Fatalf("claim: %+v, %v, %v", got, ok, err)
		}
		now := time.Now().UTC()
		msg := "task failed: timed out"
		got, ok, err = repo.ConditionalUpdate(ctx, nil, task.ID, "", []model.TaskStatus{model.TaskStatusProcessing},
			model.TaskUpdate{Status: model.TaskStatusFailed, ErrorMessage: &msg, CompletedAt: &now})
		if err != nil || !ok || got.ClaimToken != "tok-1" {
			t.Errorf("terminal write should keep the token: %+v, %v, %v", got, ok, err)
		}
	})

	t.Run("only one concurrent conditional update wins", func(t *testing.T) {
		cleanup(t)
		task := newTask(t, "owner-1")

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := repo.ConditionalUpdate(ctx, nil, task.ID, "owner-1", pending, claim)
				if err != nil {
					t.Errorf("conditional update: %v", err)
					return
				}
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins.Load())
		}
	})

	t.Run("terminal write sets result and completion time", func(t *testing.T) {
		cleanup(t)
		task := newTask(t, "owner-1")
		if _, ok, err := repo.ConditionalUpdate(ctx, nil, task.ID, "", pending, claim); err != nil || !ok {
			t.Fatalf("claim failed: ok=%v err=%v", ok, err)
		}
		now := time.Now().UTC()
		rid := "concept-9"
		got, ok, err := repo.ConditionalUpdate(ctx, nil, task.ID, "", []model.TaskStatus{model.TaskStatusProcessing},
			model.TaskUpdate{Status: model.TaskStatusCompleted, ResultID: &rid, CompletedAt: &now})
		if err != nil || !ok {
			t.Fatalf("complete failed: ok=%v err=%v", ok, err)
		}
		if got.ResultID == nil || *got.ResultID != rid || got.CompletedAt == nil {
			t.Errorf("terminal fields not persisted: %+v", got)
		}
		// a second attempt matches nothing
		if _, ok, _ := repo.ConditionalUpdate(ctx, nil, task.ID, "", pending, claim); ok {
			t.Error("completed task must not be reclaimed")
		}
	})

	t.Run("list filters and delete", func(t *testing.T) {
		cleanup(t)
		a := newTask(t, "owner-1")
		newTask(t, "owner-1")
		newTask(t, "owner-2")
		if _, ok, err := repo.ConditionalUpdate(ctx, nil, a.ID, "", pending, claim); err != nil || !ok {
			t.Fatalf("claim failed: %v", err)
		}

		all, err := repo.List(ctx, nil, model.TaskFilter{OwnerID: "owner-1", Limit: 10})
		if err != nil || len(all) != 2 {
			t.Fatalf("expected 2 tasks for owner-1, got %d (%v)", len(all), err)
		}
		st := model.TaskStatusProcessing
		proc, err := repo.List(ctx, nil, model.TaskFilter{OwnerID: "owner-1", Status: &st, Limit: 10})
		if err != nil || len(proc) != 1 || proc[0].ID != a.ID {
			t.Fatalf("expected only the claimed task, got %+v (%v)", proc, err)
		}

		if err := repo.Delete(ctx, nil, a.ID, "owner-2"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("delete by another owner should be ErrNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, nil, a.ID, "owner-1"); err != nil {
			t.Errorf("delete: %v", err)
		}
	})
}
