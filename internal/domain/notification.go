package domain

import "time"

// Notification is the durable record of one event reaching one recipient.
// Multi-recipient fan-out produces one row per recipient, never a shared row.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Read        bool           `json:"read"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NotificationPage is the list query result: one page of rows plus the
// aggregates the client renders alongside them.
type NotificationPage struct {
	Notifications []*Notification `json:"notifications"`
	Total         int             `json:"total"`
	UnreadCount   int             `json:"unread_count"`
}
