package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/model"
	q "github.com/iliyamo/moderation-escalation/internal/queue"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

// LiftEventKey is the idempotency key of the notification for a lifted
// suspension.
func LiftEventKey(suspensionID uint64) string {
	return fmt.Sprintf("%s:%d", model.NotificationSuspensionLifted, suspensionID)
}

// MaintenanceEventKey is the idempotency key of a maintenance notice for
// the window [start, end).
func MaintenanceEventKey(start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s", model.NotificationMaintenance,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}

// AckTracker sends each notification at most once per event key.  The
// notification row is inserted before publishing; the unique key on
// event_key decides which of two concurrent senders wins.
type AckTracker struct {
	repo     *repository.NotificationRepo
	notifier Notifier
	now      func() time.Time
}

// NewAckTracker returns an AckTracker publishing through n.  A nil n
// records notifications without delivering them.
func NewAckTracker(repo *repository.NotificationRepo, n Notifier) *AckTracker {
	if n == nil {
		n = NopNotifier{}
	}
	return &AckTracker{repo: repo, notifier: n, now: time.Now}
}

// NotifyLift notifies the owner of a lifted suspension.  It returns false
// when the notification had already been sent.
func (t *AckTracker) NotifyLift(ctx context.Context, s model.Suspension) (bool, error) {
	userID, suspensionID := s.UserID, s.ID
	msg := "Your account suspension has been lifted."
	if s.LiftedReason != nil && *s.LiftedReason != "" {
		msg = fmt.Sprintf("Your account suspension has been lifted. Reason: %s", *s.LiftedReason)
	}
	n := model.Notification{
		EventKey: LiftEventKey(s.ID),
		Kind:     model.NotificationSuspensionLifted,
		UserID:   &userID,
		Title:    "Suspension lifted",
		Message:  msg,
	}
	ev := q.NotificationEvent{SuspensionID: &suspensionID}
	return t.notifyOnce(ctx, n, ev)
}

// NotifyMaintenance broadcasts a maintenance notice for the window
// [start, end).  It returns false when the same window was already
// announced.
func (t *AckTracker) NotifyMaintenance(ctx context.Context, start, end time.Time, message string) (bool, error) {
	if start.IsZero() || end.IsZero() {
		return false, apperror.Validation("invalid_window", "start and end are required")
	}
	if !end.After(start) {
		return false, apperror.Validation("invalid_window", "end must be after start")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = fmt.Sprintf("Scheduled maintenance from %s to %s.",
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}
	n := model.Notification{
		EventKey: MaintenanceEventKey(start, end),
		Kind:     model.NotificationMaintenance,
		Title:    "Scheduled maintenance",
		Message:  message,
	}
	ev := q.NotificationEvent{
		StartsAt: start.UTC().Format(time.RFC3339),
		EndsAt:   end.UTC().Format(time.RFC3339),
	}
	return t.notifyOnce(ctx, n, ev)
}

func (t *AckTracker) notifyOnce(ctx context.Context, n model.Notification, ev q.NotificationEvent) (bool, error) {
	kind := string(n.Kind)
	exists, err := t.repo.ExistsByKey(ctx, n.EventKey)
	if err != nil {
		return false, persistErr("failed to check notification", err)
	}
	if exists {
		notificationsSent.WithLabelValues(kind, "duplicate").Inc()
		return false, nil
	}

	n.CreatedAt = t.now().UTC()
	if err := t.repo.Create(ctx, &n); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			notificationsSent.WithLabelValues(kind, "duplicate").Inc()
			return false, nil
		}
		return false, persistErr("failed to record notification", err)
	}

	ev.EventKey = n.EventKey
	ev.Kind = kind
	ev.UserID = n.UserID
	ev.Title = n.Title
	ev.Message = n.Message
	ev.CreatedAt = n.CreatedAt.Format(time.RFC3339)
	if err := t.notifier.Publish(ctx, ev); err != nil {
		notificationsSent.WithLabelValues(kind, "publish_failed").Inc()
		log.Warn().Err(err).
			Str("component", "notifications").
			Str("event_key", n.EventKey).
			Msg("notification recorded but publish failed")
		return true, nil
	}
	notificationsSent.WithLabelValues(kind, "sent").Inc()
	return true, nil
}
