package model

import (
	"time"

	"github.com/google/uuid"

	"concept-forge/internal/domain"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// CanTransition encodes pending -> processing -> {completed, failed}.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	}
	return false
}

type TaskType string

const (
	TaskTypeGeneration TaskType = "generation"
	TaskTypeRefinement TaskType = "refinement"
)

func (t TaskType) Valid() bool {
	return t == TaskTypeGeneration || t == TaskTypeRefinement
}

// Task is a durable unit of background work owned by a single principal.
type Task struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	Type         TaskType          `json:"type"`
	Status       TaskStatus        `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	ResultID     *string           `json:"result_id,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	// ClaimToken identifies the claim attempt that moved the task to processing.
	ClaimToken string `json:"claim_token,omitempty"`
}

// NewTask creates a pending task.
func NewTask(ownerID string, typ TaskType, metadata map[string]string) (*Task, error) {
	if ownerID == "" || !typ.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &Task{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Type:      typ,
		Status:    TaskStatusPending,
		Metadata:  md,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.ResultID != nil {
		id := *t.ResultID
		cp.ResultID = &id
	}
	if t.ErrorMessage != nil {
		msg := *t.ErrorMessage
		cp.ErrorMessage = &msg
	}
	return &cp
}

// TaskUpdate is the set of fields a conditional update writes.
type TaskUpdate struct {
	Status       TaskStatus
	ResultID     *string
	ErrorMessage *string
	CompletedAt  *time.Time
	// ClaimToken is written only when non-empty.
	ClaimToken string
}

// Apply writes the update onto t.
func (u TaskUpdate) Apply(t *Task, now time.Time) {
	t.Status = u.Status
	t.ResultID = u.ResultID
	t.ErrorMessage = u.ErrorMessage
	t.CompletedAt = u.CompletedAt
	if u.ClaimToken != "" {
		t.ClaimToken = u.ClaimToken
	}
	t.UpdatedAt = now
}

// TaskFilter narrows List results.
type TaskFilter struct {
	OwnerID string
	Status  *TaskStatus
	// UpdatedBefore keeps only tasks last written before this instant.
	UpdatedBefore *time.Time
	Limit         int
}
