package domain

import "time"

// NotificationFrame is the wire view of a Notification pushed to websocket
// clients.
type NotificationFrame struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Read      bool           `json:"read"`
}

// PushFrame is the outbound websocket message. One frame carries the whole
// batch an event produced for a recipient's user.
type PushFrame struct {
	Event         string               `json:"event"`
	Notifications []*NotificationFrame `json:"notifications"`
}

const PushEventNotification = "notification"

// NewPushFrame converts persisted rows into the outbound batch frame.
func NewPushFrame(rows []*Notification) *PushFrame {
	frames := make([]*NotificationFrame, 0, len(rows))
	for _, n := range rows {
		frames = append(frames, &NotificationFrame{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			Metadata:  n.Metadata,
			Timestamp: n.CreatedAt,
			Read:      n.Read,
		})
	}
	return &PushFrame{Event: PushEventNotification, Notifications: frames}
}
