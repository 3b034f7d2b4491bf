//go:build !integration

package model

import (
	"errors"
	"testing"

	"concept-forge/internal/domain"
)

// --- Task Model Tests ---

func TestNewTask(t *testing.T) {
	t.Run("should create a pending task", func(t *testing.T) {
		md := map[string]string{"prompt": "a fox"}
		task, err := NewTask("owner-1", TaskTypeGeneration, md)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if task.ID == "" {
			t.Error("expected task ID to be non-empty")
		}
		if task.Status != TaskStatusPending {
			t.Errorf("expected status pending, got %s", task.Status)
		}
		if task.ResultID != nil || task.ErrorMessage != nil || task.CompletedAt != nil {
			t.Error("a new task must not carry terminal fields")
		}

		// metadata is copied, not aliased
		md["prompt"] = "changed"
		if task.Metadata["prompt"] != "a fox" {
			t.Error("task metadata should not alias the caller's map")
		}
	})

	t.Run("should reject missing owner or unknown type", func(t *testing.T) {
		if _, err := NewTask("", TaskTypeGeneration, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty owner, got %v", err)
		}
		if _, err := NewTask("o", TaskType("upscale"), nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown type, got %v", err)
		}
	})
}

func TestTaskStatusTransitions(t *testing.T) {
	all := []TaskStatus{TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed}
	allowed := map[[2]TaskStatus]bool{
		{TaskStatusPending, TaskStatusProcessing}:   true,
		{TaskStatusProcessing, TaskStatusCompleted}: true,
		{TaskStatusProcessing, TaskStatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]TaskStatus{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
	if !TaskStatusCompleted.IsTerminal() || !TaskStatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
	if TaskStatusPending.IsTerminal() || TaskStatusProcessing.IsTerminal() {
		t.Error("pending and processing must not be terminal")
	}
}

func TestTaskClone(t *testing.T) {
	id := "concept-1"
	task := &Task{ID: "t", Metadata: map[string]string{"k": "v"}, ResultID: &id}
	cp := task.Clone()
	cp.Metadata["k"] = "other"
	*cp.ResultID = "concept-2"
	if task.Metadata["k"] != "v" || *task.ResultID != "concept-1" {
		t.Error("Clone must deep copy metadata and pointer fields")
	}
}

func TestNewJobMessage(t *testing.T) {
	task, _ := NewTask("owner", TaskTypeRefinement, nil)
	a := NewJobMessage(task, map[string]string{"prompt": "x"})
	b := NewJobMessage(task, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("message ids must be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.TaskID != task.ID || a.OwnerID != "owner" || a.Type != TaskTypeRefinement {
		t.Errorf("message does not mirror task: %+v", a)
	}
}
