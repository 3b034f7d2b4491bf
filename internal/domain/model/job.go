package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobMessage is what the delivery system hands to a worker. Delivery is
// at-least-once with no ordering guarantee.
type JobMessage struct {
	ID         string            `json:"id"`
	TaskID     string            `json:"task_id"`
	OwnerID    string            `json:"owner_id"`
	Type       TaskType          `json:"type"`
	Payload    map[string]string `json:"payload,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// NewJobMessage builds the delivery message for a freshly created task.
func NewJobMessage(t *Task, payload map[string]string) JobMessage {
	now := time.Now().UTC()
	return JobMessage{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		TaskID:     t.ID,
		OwnerID:    t.OwnerID,
		Type:       t.Type,
		Payload:    payload,
		EnqueuedAt: now,
	}
}
