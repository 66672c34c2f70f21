// Package events defines the task-lifecycle events exchanged between the
// task service and the notification service, and the Kafka publisher used
// by the producing side.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notification-service/pkg/xerrors"
)

// Type identifies a task-lifecycle event.
type Type string

const (
	TypeTaskCreated    Type = "task.created"
	TypeTaskUpdated    Type = "task.updated"
	TypeStatusChanged  Type = "task.status.changed"
	TypeCommentCreated Type = "task.comment.created"
	TypeTaskDeleted    Type = "task.deleted"
	TypeCommentUpdated Type = "task.comment.updated"
	TypeCommentDeleted Type = "task.comment.deleted"
)

// Envelope is the wire form of a task-lifecycle event. Data holds the
// type-specific payload; Decode returns it as its concrete struct.
type Envelope struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// TaskCreatedData carries a task.created event.
type TaskCreatedData struct {
	TaskID      string   `json:"task_id"`
	OwnerID     string   `json:"owner_id"`
	AssigneeIDs []string `json:"assignee_ids"`
	Title       string   `json:"title"`
}

// TaskUpdatedData carries a task.updated event. Changes maps field name to
// its new value; the store treats it as opaque metadata.
type TaskUpdatedData struct {
	TaskID      string         `json:"task_id"`
	UserID      string         `json:"user_id"`
	Changes     map[string]any `json:"changes"`
	AssigneeIDs []string       `json:"assignee_ids"`
}

// StatusChangedData carries a task.status.changed event.
type StatusChangedData struct {
	TaskID         string   `json:"task_id"`
	UserID         string   `json:"user_id"`
	PreviousStatus string   `json:"previous_status"`
	NewStatus      string   `json:"new_status"`
	AssigneeIDs    []string `json:"assignee_ids"`
}

// CommentCreatedData carries a task.comment.created event. UserID is the
// commenting user and is excluded from the recipient set downstream.
type CommentCreatedData struct {
	TaskID      string   `json:"task_id"`
	CommentID   string   `json:"comment_id"`
	UserID      string   `json:"user_id"`
	Content     string   `json:"content"`
	AssigneeIDs []string `json:"assignee_ids"`
	OwnerID     string   `json:"owner_id"`
}

// TaskDeletedData carries a task.deleted event.
type TaskDeletedData struct {
	TaskID      string   `json:"task_id"`
	UserID      string   `json:"user_id"`
	Title       string   `json:"title"`
	AssigneeIDs []string `json:"assignee_ids"`
}

// CommentUpdatedData carries a task.comment.updated event. Published by the
// task service; the notification consumer currently has no handler for it.
type CommentUpdatedData struct {
	TaskID    string `json:"task_id"`
	CommentID string `json:"comment_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
}

// CommentDeletedData carries a task.comment.deleted event.
type CommentDeletedData struct {
	TaskID    string `json:"task_id"`
	CommentID string `json:"comment_id"`
	UserID    string `json:"user_id"`
}

// New wraps a typed payload in an Envelope with a fresh event id.
func New(t Type, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Envelope{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// Decode returns the envelope payload as its concrete type.
func (e *Envelope) Decode() (any, error) {
	var out any
	switch e.Type {
	case TypeTaskCreated:
		out = new(TaskCreatedData)
	case TypeTaskUpdated:
		out = new(TaskUpdatedData)
	case TypeStatusChanged:
		out = new(StatusChangedData)
	case TypeCommentCreated:
		out = new(CommentCreatedData)
	case TypeTaskDeleted:
		out = new(TaskDeletedData)
	case TypeCommentUpdated:
		out = new(CommentUpdatedData)
	case TypeCommentDeleted:
		out = new(CommentDeletedData)
	default:
		return nil, fmt.Errorf("%w: %s", xerrors.ErrUnknownEventType, e.Type)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", xerrors.ErrMalformedEvent, e.Type, err)
	}
	return out, nil
}
