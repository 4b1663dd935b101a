package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/model"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

// Ledger owns the suspension lifecycle: creation on behalf of the
// violation recorder, admin lifts, queries and user acknowledgment of
// lifts.
type Ledger struct {
	db          *sql.DB
	users       *repository.UserRepo
	suspensions *repository.SuspensionRepo
	tracker     *AckTracker
	audit       *Auditor
	now         func() time.Time
}

// NewLedger wires a Ledger.
func NewLedger(db *sql.DB, users *repository.UserRepo, suspensions *repository.SuspensionRepo, tracker *AckTracker, audit *Auditor) *Ledger {
	return &Ledger{db: db, users: users, suspensions: suspensions, tracker: tracker, audit: audit, now: time.Now}
}

// NewSuspension describes a suspension to open.
type NewSuspension struct {
	UserID              uint64
	Type                model.SuspensionType
	Reason              string
	ViolationIDs        []uint64
	SuspensionNumber    int
	StrikesAtSuspension int
	StartedAt           time.Time
	EndsAt              *time.Time
}

// CreateTx inserts an active suspension inside tx.  A second suspension
// with the same number for the user is a conflict.
func (l *Ledger) CreateTx(ctx context.Context, tx *sql.Tx, ns NewSuspension) (model.Suspension, error) {
	if ns.Type == model.SuspensionPermanent {
		ns.EndsAt = nil
	}
	ids := ns.ViolationIDs
	if ids == nil {
		ids = []uint64{}
	}
	s := model.Suspension{
		UserID:              ns.UserID,
		SuspensionType:      ns.Type,
		Reason:              ns.Reason,
		ViolationIDs:        ids,
		SuspensionNumber:    ns.SuspensionNumber,
		StrikesAtSuspension: ns.StrikesAtSuspension,
		StartedAt:           ns.StartedAt,
		EndsAt:              ns.EndsAt,
		Status:              model.SuspensionActive,
	}
	if err := l.suspensions.CreateTx(ctx, tx, &s); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Suspension{}, apperror.Conflict("concurrent_update", "suspension number already taken; retry")
		}
		return model.Suspension{}, persistErr("failed to create suspension", err)
	}
	return s, nil
}

// Lift lifts the suspension with the given id.
func (l *Ledger) Lift(ctx context.Context, suspensionID, adminID uint64, reason string) (model.Suspension, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Suspension{}, apperror.Validation("missing_reason", "reason is required")
	}
	var lifted model.Suspension
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		s, err := l.suspensions.GetForUpdateTx(ctx, tx, suspensionID)
		if err != nil {
			return storageErr(err, "suspension_not_found", "suspension not found")
		}
		lifted, err = l.liftTx(ctx, tx, s, adminID, reason)
		if err != nil {
			return err
		}
		return l.audit.InTx(ctx, tx, liftAudit(lifted, adminID))
	})
	if err != nil {
		return model.Suspension{}, err
	}
	l.afterLift(ctx, lifted, adminID)
	return lifted, nil
}

// LiftActiveForUser lifts the user's most recent active suspension.
func (l *Ledger) LiftActiveForUser(ctx context.Context, userID, adminID uint64, reason string) (model.Suspension, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Suspension{}, apperror.Validation("missing_reason", "reason is required")
	}
	var lifted model.Suspension
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := l.users.GetForUpdateTx(ctx, tx, userID); err != nil {
			return storageErr(err, "user_not_found", "user not found")
		}
		s, err := l.suspensions.LatestActiveForUserTx(ctx, tx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Conflict("not_active", "user has no active suspension")
		}
		if err != nil {
			return persistErr("failed to load active suspension", err)
		}
		lifted, err = l.liftTx(ctx, tx, s, adminID, reason)
		if err != nil {
			return err
		}
		return l.audit.InTx(ctx, tx, liftAudit(lifted, adminID))
	})
	if err != nil {
		return model.Suspension{}, err
	}
	l.afterLift(ctx, lifted, adminID)
	return lifted, nil
}

// liftTx lifts s and recomputes the owner's account status from the
// suspensions that remain active.  The suspension update is conditional
// on status=active so a concurrent lift loses with a conflict.
func (l *Ledger) liftTx(ctx context.Context, tx *sql.Tx, s model.Suspension, adminID uint64, reason string) (model.Suspension, error) {
	if s.Status != model.SuspensionActive {
		return model.Suspension{}, apperror.Conflict("not_active", "suspension is not active")
	}
	now := l.now().UTC()
	if err := l.suspensions.LiftTx(ctx, tx, s.ID, adminID, reason, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Suspension{}, apperror.Conflict("not_active", "suspension is not active")
		}
		return model.Suspension{}, persistErr("failed to lift suspension", err)
	}

	u, err := l.users.GetForUpdateTx(ctx, tx, s.UserID)
	if err != nil {
		return model.Suspension{}, storageErr(err, "user_not_found", "user not found")
	}
	remaining, err := l.suspensions.ListActiveForUserTx(ctx, tx, s.UserID)
	if err != nil {
		return model.Suspension{}, persistErr("failed to load active suspensions", err)
	}
	restoreStatus(&u, remaining)
	if err := l.users.UpdateModerationTx(ctx, tx, &u, now); err != nil {
		return model.Suspension{}, storageErr(err, "user_not_found", "user not found")
	}

	s.Status = model.SuspensionLifted
	s.LiftedAt = &now
	s.LiftedBy = &adminID
	s.LiftedReason = &reason
	s.LiftedAcknowledged = false
	return s, nil
}

// restoreStatus sets u's account status from the suspensions still active
// after a lift.  With none left the account is active again and the ban
// fields are cleared.
func restoreStatus(u *model.User, remaining []model.Suspension) {
	if len(remaining) == 0 {
		u.AccountStatus = model.AccountActive
		u.SuspensionEnd = nil
		u.BannedAt = nil
		u.BannedReason = nil
		return
	}
	status := model.AccountSuspended
	var end *time.Time
	for _, s := range remaining {
		if s.SuspensionType == model.SuspensionPermanent {
			status = model.AccountBanned
			continue
		}
		if s.EndsAt != nil && (end == nil || s.EndsAt.After(*end)) {
			end = s.EndsAt
		}
	}
	u.AccountStatus = status
	if status == model.AccountBanned {
		u.SuspensionEnd = nil
		return
	}
	u.SuspensionEnd = end
	u.BannedAt = nil
	u.BannedReason = nil
}

func liftAudit(s model.Suspension, adminID uint64) AuditEvent {
	userID, id := s.UserID, s.ID
	reason := ""
	if s.LiftedReason != nil {
		reason = *s.LiftedReason
	}
	return AuditEvent{
		Actor:        AdminActor(adminID),
		Action:       "lift_suspension",
		TargetUserID: &userID,
		TargetID:     &id,
		Details:      map[string]any{"reason": reason, "suspension_number": s.SuspensionNumber},
	}
}

// afterLift runs the post-commit side effects of a lift.
func (l *Ledger) afterLift(ctx context.Context, s model.Suspension, adminID uint64) {
	suspensionLifts.Inc()
	if _, err := l.tracker.NotifyLift(ctx, s); err != nil {
		secondaryFailures.WithLabelValues("lift_notification").Inc()
		log.Error().Err(err).
			Str("component", "ledger").
			Uint64("suspension_id", s.ID).
			Msg("failed to send lift notification")
	}
	l.audit.AfterCommit(ctx, liftAudit(s, adminID))
	log.Info().
		Str("component", "ledger").
		Uint64("suspension_id", s.ID).
		Uint64("user_id", s.UserID).
		Uint64("admin_id", adminID).
		Msg("suspension lifted")
}

// Query returns the user's suspensions, newest first.
func (l *Ledger) Query(ctx context.Context, userID uint64) ([]model.Suspension, error) {
	list, err := l.suspensions.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistErr("failed to list suspensions", err)
	}
	if list == nil {
		list = []model.Suspension{}
	}
	return list, nil
}

// Acknowledge records that the user has seen the lift of their suspension.
// It never sends a notification.
func (l *Ledger) Acknowledge(ctx context.Context, userID, suspensionID uint64) (model.Suspension, error) {
	err := l.suspensions.Acknowledge(ctx, suspensionID, userID)
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		return model.Suspension{}, persistErr("failed to acknowledge lift", err)
	}

	s, getErr := l.suspensions.GetByID(ctx, suspensionID)
	if getErr != nil || s.UserID != userID {
		if getErr != nil && !errors.Is(getErr, repository.ErrNotFound) {
			return model.Suspension{}, persistErr("failed to load suspension", getErr)
		}
		return model.Suspension{}, apperror.NotFound("suspension_not_found", "suspension not found")
	}
	if err == nil {
		l.audit.Record(ctx, AuditEvent{
			Actor:        UserActor(userID),
			Action:       "acknowledge_lift",
			TargetUserID: &userID,
			TargetID:     &suspensionID,
		})
		return s, nil
	}
	switch {
	case s.Status != model.SuspensionLifted:
		return model.Suspension{}, apperror.Conflict("not_lifted", "suspension has not been lifted")
	case s.LiftedAcknowledged:
		return model.Suspension{}, apperror.Conflict("already_acknowledged", "lift already acknowledged")
	}
	return model.Suspension{}, apperror.Conflict("concurrent_update", "suspension changed concurrently; retry")
}

// ModerationStatus is a user's current moderation state.
type ModerationStatus struct {
	UserID              uint64              `json:"user_id"`
	StrikeCount         int                 `json:"strike_count"`
	SuspensionCount     int                 `json:"suspension_count"`
	AccountStatus       model.AccountStatus `json:"account_status"`
	SuspensionEnd       *time.Time          `json:"suspension_end"`
	ActiveSuspension    *model.Suspension   `json:"active_suspension"`
	UnacknowledgedLifts []model.Suspension  `json:"unacknowledged_lifts"`
}

// GetStatus returns the user's counters, account status, the most recent
// active suspension and any lifts the user has not acknowledged yet.
func (l *Ledger) GetStatus(ctx context.Context, userID uint64) (ModerationStatus, error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return ModerationStatus{}, storageErr(err, "user_not_found", "user not found")
	}
	list, err := l.suspensions.ListByUser(ctx, userID)
	if err != nil {
		return ModerationStatus{}, persistErr("failed to list suspensions", err)
	}
	pending, err := l.suspensions.ListUnacknowledgedLifts(ctx, userID)
	if err != nil {
		return ModerationStatus{}, persistErr("failed to list lifts", err)
	}
	if pending == nil {
		pending = []model.Suspension{}
	}
	st := ModerationStatus{
		UserID:              u.ID,
		StrikeCount:         u.StrikeCount,
		SuspensionCount:     u.SuspensionCount,
		AccountStatus:       u.AccountStatus,
		SuspensionEnd:       u.SuspensionEnd,
		UnacknowledgedLifts: pending,
	}
	for i := range list {
		if list[i].Status == model.SuspensionActive {
			st.ActiveSuspension = &list[i]
			break
		}
	}
	return st, nil
}
