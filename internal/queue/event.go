// Package queue defines message payloads exchanged over the message broker
// and the consumer that drains them.
package queue

// NotificationEvent is published when a lift or maintenance notice must
// reach users.  The moderation core records the event once per EventKey
// before publishing, so consumers may treat EventKey as an idempotency key.
type NotificationEvent struct {
	EventKey     string  `json:"event_key"`
	Kind         string  `json:"kind"`
	UserID       *uint64 `json:"user_id,omitempty"`
	SuspensionID *uint64 `json:"suspension_id,omitempty"`
	Title        string  `json:"title"`
	Message      string  `json:"message"`
	StartsAt     string  `json:"starts_at,omitempty"`
	EndsAt       string  `json:"ends_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
}
