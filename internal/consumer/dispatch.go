package consumer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"notification-service/internal/domain"
	"notification-service/pkg/events"
)

// Notifier is the fan-out entry point the dispatcher drives: persist one
// row per recipient, then one batched push.
type Notifier interface {
	CreateForRecipients(ctx context.Context, recipientIDs []string, notifType, title, body string, metadata map[string]any) ([]*domain.Notification, error)
}

// HandlerFunc turns one decoded event into notifications and reports how
// many were created. An empty recipient set yields (0, nil).
type HandlerFunc func(ctx context.Context, evt *events.Envelope) (int, error)

// Dispatcher routes events to their type handler. One handler per event
// type, registered in a table, so each recipient formula stays testable on
// its own.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	handlers map[events.Type]HandlerFunc
}

func NewDispatcher(n Notifier, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		notifier: n,
		logger:   logger,
	}
	d.handlers = map[events.Type]HandlerFunc{
		events.TypeTaskCreated:    d.handleTaskCreated,
		events.TypeTaskUpdated:    d.handleTaskUpdated,
		events.TypeStatusChanged:  d.handleStatusChanged,
		events.TypeCommentCreated: d.handleCommentCreated,
		events.TypeTaskDeleted:    d.handleTaskDeleted,
	}
	return d
}

// Dispatch runs the handler registered for the event type. Types without a
// handler (comment edits and removals, for now) are skipped, not failed, so
// the broker can acknowledge them.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *events.Envelope) (int, error) {
	h, ok := d.handlers[evt.Type]
	if !ok {
		d.logger.Debug("no handler for event type, skipping",
			zap.String("event_id", evt.ID),
			zap.String("type", string(evt.Type)))
		return 0, nil
	}
	return h(ctx, evt)
}

func (d *Dispatcher) handleTaskCreated(ctx context.Context, evt *events.Envelope) (int, error) {
	data, err := decodeAs[events.TaskCreatedData](evt)
	if err != nil {
		return 0, err
	}

	// Owner and assignees all get notified, the acting user included.
	recipients := resolveRecipients(append([]string{data.OwnerID}, data.AssigneeIDs...))

	created, err := d.notifier.CreateForRecipients(ctx, recipients,
		string(events.TypeTaskCreated),
		"New task created",
		fmt.Sprintf("The task %q was created and assigned to you.", data.Title),
		map[string]any{
			"task_id": data.TaskID,
			"title":   data.Title,
		},
	)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

func (d *Dispatcher) handleTaskUpdated(ctx context.Context, evt *events.Envelope) (int, error) {
	data, err := decodeAs[events.TaskUpdatedData](evt)
	if err != nil {
		return 0, err
	}

	recipients := resolveRecipients(data.AssigneeIDs)

	created, err := d.notifier.CreateForRecipients(ctx, recipients,
		string(events.TypeTaskUpdated),
		"Task updated",
		fmt.Sprintf("The task was updated: %s", changedFields(data.Changes)),
		map[string]any{
			"task_id":    data.TaskID,
			"changes":    data.Changes,
			"updated_by": data.UserID,
		},
	)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

func (d *Dispatcher) handleStatusChanged(ctx context.Context, evt *events.Envelope) (int, error) {
	data, err := decodeAs[events.StatusChangedData](evt)
	if err != nil {
		return 0, err
	}

	recipients := resolveRecipients(data.AssigneeIDs)

	created, err := d.notifier.CreateForRecipients(ctx, recipients,
		string(events.TypeStatusChanged),
		"Task status changed",
		fmt.Sprintf("Status changed from %q to %q", data.PreviousStatus, data.NewStatus),
		map[string]any{
			"task_id":         data.TaskID,
			"previous_status": data.PreviousStatus,
			"new_status":      data.NewStatus,
			"changed_by":      data.UserID,
		},
	)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

func (d *Dispatcher) handleCommentCreated(ctx context.Context, evt *events.Envelope) (int, error) {
	data, err := decodeAs[events.CommentCreatedData](evt)
	if err != nil {
		return 0, err
	}

	// The commenting user is never notified about their own comment, even
	// when they also own the task.
	recipients := resolveRecipients(append([]string{data.OwnerID}, data.AssigneeIDs...), data.UserID)

	created, err := d.notifier.CreateForRecipients(ctx, recipients,
		string(events.TypeCommentCreated),
		"New comment",
		fmt.Sprintf("New comment: %q", truncate(data.Content, 50)),
		map[string]any{
			"task_id":    data.TaskID,
			"comment_id": data.CommentID,
			"content":    data.Content,
		},
	)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

func (d *Dispatcher) handleTaskDeleted(ctx context.Context, evt *events.Envelope) (int, error) {
	data, err := decodeAs[events.TaskDeletedData](evt)
	if err != nil {
		return 0, err
	}

	recipients := resolveRecipients(data.AssigneeIDs)

	created, err := d.notifier.CreateForRecipients(ctx, recipients,
		string(events.TypeTaskDeleted),
		"Task removed",
		fmt.Sprintf("The task %q was removed", data.Title),
		map[string]any{
			"task_id":    data.TaskID,
			"title":      data.Title,
			"deleted_by": data.UserID,
		},
	)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

func decodeAs[T any](evt *events.Envelope) (*T, error) {
	payload, err := evt.Decode()
	if err != nil {
		return nil, err
	}
	data, ok := payload.(*T)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for event %s", payload, evt.Type)
	}
	return data, nil
}

// resolveRecipients drops blank ids, collapses duplicates preserving first
// occurrence, and removes the excluded ids. The result is the exact set of
// rows to create: one per recipient.
func resolveRecipients(ids []string, exclude ...string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := excluded[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func changedFields(changes map[string]any) string {
	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return strings.Join(fields, ", ")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
