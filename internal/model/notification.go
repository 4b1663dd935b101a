package model

import "time"

// NotificationKind identifies what a notification announces.
type NotificationKind string

const (
	NotificationSuspensionLifted NotificationKind = "suspension_lifted"
	NotificationMaintenance      NotificationKind = "maintenance"
)

// Notification mirrors the `notifications` table.  EventKey is unique so a
// given event is announced at most once.  UserID is nil for broadcasts.
type Notification struct {
	ID        uint64           `json:"id"`
	EventKey  string           `json:"event_key"`
	Kind      NotificationKind `json:"kind"`
	UserID    *uint64          `json:"user_id,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// AuditEntry mirrors the `audit_logs` table.
type AuditEntry struct {
	ID           uint64    `json:"id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	TargetUserID *uint64   `json:"target_user_id,omitempty"`
	TargetID     *uint64   `json:"target_id,omitempty"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}
