package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/moderation-escalation/internal/model"
)

// NotificationRepo records which notification events have been announced.
// The event_key column is unique, so a second insert for the same event
// fails with ErrDuplicate even when two callers race past ExistsByKey.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the given database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// ExistsByKey reports whether a notification with the key was recorded.
func (r *NotificationRepo) ExistsByKey(ctx context.Context, key string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE event_key = ?`, key).Scan(&n)
	return n > 0, err
}

// Create inserts n and populates its ID.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	const q = `INSERT INTO notifications (event_key, kind, user_id, title, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, n.EventKey, string(n.Kind), nullUint(n.UserID), n.Title, n.Message, n.CreatedAt)
	if err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	return nil
}

// GetByKey fetches the notification recorded for key.
func (r *NotificationRepo) GetByKey(ctx context.Context, key string) (model.Notification, error) {
	const q = `SELECT id, event_key, kind, user_id, title, message, created_at FROM notifications WHERE event_key = ?`
	var n model.Notification
	var kind string
	var userID sql.NullInt64
	err := r.db.QueryRowContext(ctx, q, key).Scan(&n.ID, &n.EventKey, &kind, &userID, &n.Title, &n.Message, &n.CreatedAt)
	if err != nil {
		return model.Notification{}, errNotFoundOr(err)
	}
	n.Kind = model.NotificationKind(kind)
	n.UserID = uintPtr(userID)
	return n, nil
}
