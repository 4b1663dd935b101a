package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/model"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

// Decision is an admin's verdict on an appeal.
type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionReject      Decision = "reject"
	DecisionUnderReview Decision = "under_review"
)

// ParseDecision accepts approve, reject and under_review, plus the past
// tense forms approved and rejected.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return DecisionApprove, nil
	case "reject", "rejected":
		return DecisionReject, nil
	case "under_review":
		return DecisionUnderReview, nil
	}
	return "", apperror.Validation("invalid_decision", "decision must be one of approve, reject, under_review")
}

// StatsCacheKey names the cached appeal statistics.  Submit and Review
// invalidate it after commit.
const StatsCacheKey = "appeals:stats"

// CacheInvalidator drops cached read models by name.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, names ...string)
}

type nopCache struct{}

func (nopCache) Invalidate(context.Context, ...string) {}

var openAppealStatuses = []model.AppealStatus{model.AppealPending, model.AppealUnderReview}

// Appeals runs the appeal workflow: pending, then optionally under_review,
// then approved or rejected.  Approval lifts the appealed suspension.
type Appeals struct {
	db          *sql.DB
	appeals     *repository.AppealRepo
	suspensions *repository.SuspensionRepo
	ledger      *Ledger
	audit       *Auditor
	cache       CacheInvalidator
	now         func() time.Time
}

// NewAppeals wires an Appeals workflow.  cache may be nil.
func NewAppeals(db *sql.DB, appeals *repository.AppealRepo, suspensions *repository.SuspensionRepo, ledger *Ledger, audit *Auditor, cache CacheInvalidator) *Appeals {
	if cache == nil {
		cache = nopCache{}
	}
	return &Appeals{db: db, appeals: appeals, suspensions: suspensions, ledger: ledger, audit: audit, cache: cache, now: time.Now}
}

// Submit files an appeal by userID against one of their active
// suspensions.  Only one open appeal per suspension is allowed.
func (a *Appeals) Submit(ctx context.Context, userID, suspensionID uint64, reason string) (model.Appeal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Appeal{}, apperror.Validation("missing_reason", "appeal_reason is required")
	}
	var appeal model.Appeal
	err := withTx(ctx, a.db, func(tx *sql.Tx) error {
		s, err := a.suspensions.GetForUpdateTx(ctx, tx, suspensionID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return persistErr("failed to load suspension", err)
		}
		if err != nil || s.UserID != userID {
			return apperror.NotFound("suspension_not_found", "suspension not found")
		}
		if s.Status != model.SuspensionActive {
			return apperror.Conflict("suspension_not_active", "only active suspensions can be appealed")
		}
		open, err := a.appeals.HasOpenTx(ctx, tx, suspensionID)
		if err != nil {
			return persistErr("failed to check open appeals", err)
		}
		if open {
			return apperror.Conflict("appeal_open", "an appeal for this suspension is already open")
		}
		appeal = model.Appeal{
			SuspensionID: suspensionID,
			UserID:       userID,
			AppealReason: reason,
			Status:       model.AppealPending,
			CreatedAt:    a.now().UTC(),
		}
		if err := a.appeals.CreateTx(ctx, tx, &appeal); err != nil {
			return persistErr("failed to create appeal", err)
		}
		return a.audit.InTx(ctx, tx, appealAudit(UserActor(userID), "submit_appeal", appeal, nil))
	})
	if err != nil {
		return model.Appeal{}, err
	}
	a.cache.Invalidate(ctx, StatsCacheKey)
	a.audit.AfterCommit(ctx, appealAudit(UserActor(userID), "submit_appeal", appeal, nil))
	return appeal, nil
}

// StartReview moves a pending appeal to under_review.
func (a *Appeals) StartReview(ctx context.Context, appealID, adminID uint64) (model.Appeal, error) {
	out, err := a.Review(ctx, appealID, adminID, DecisionUnderReview, "")
	return out.Appeal, err
}

// ReviewOutcome is the result of a review.  Lifted is set when approving
// the appeal lifted the suspension.
type ReviewOutcome struct {
	Appeal model.Appeal      `json:"appeal"`
	Lifted *model.Suspension `json:"lifted_suspension,omitempty"`
}

// Review applies an admin decision to an appeal.  Approving lifts the
// appealed suspension in the same transaction when it is still active.
func (a *Appeals) Review(ctx context.Context, appealID, adminID uint64, decision Decision, notes string) (ReviewOutcome, error) {
	var next model.AppealStatus
	from := openAppealStatuses
	switch decision {
	case DecisionApprove:
		next = model.AppealApproved
	case DecisionReject:
		next = model.AppealRejected
	case DecisionUnderReview:
		next = model.AppealUnderReview
		from = []model.AppealStatus{model.AppealPending}
	default:
		return ReviewOutcome{}, apperror.Validation("invalid_decision", "decision must be one of approve, reject, under_review")
	}
	notes = strings.TrimSpace(notes)
	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}

	var out ReviewOutcome
	err := withTx(ctx, a.db, func(tx *sql.Tx) error {
		ap, err := a.appeals.GetForUpdateTx(ctx, tx, appealID)
		if err != nil {
			return storageErr(err, "appeal_not_found", "appeal not found")
		}
		if !ap.Status.Open() {
			return apperror.Conflict("appeal_decided", "appeal has already been decided")
		}
		if ap.Status == next {
			return apperror.Conflict("appeal_under_review", "appeal is already under review")
		}
		now := a.now().UTC()
		if err := a.appeals.TransitionTx(ctx, tx, ap.ID, from, next, adminID, notesPtr, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperror.Conflict("appeal_decided", "appeal has already been decided")
			}
			return persistErr("failed to update appeal", err)
		}
		ap.Status = next
		ap.ReviewedBy = &adminID
		ap.ReviewedAt = &now
		ap.ReviewNotes = notesPtr
		out.Appeal = ap

		if next == model.AppealApproved {
			s, err := a.suspensions.GetForUpdateTx(ctx, tx, ap.SuspensionID)
			if err != nil {
				return storageErr(err, "suspension_not_found", "suspension not found")
			}
			if s.Status == model.SuspensionActive {
				lifted, err := a.ledger.liftTx(ctx, tx, s, adminID, liftReasonForAppeal(ap.ID, notes))
				if err != nil {
					return err
				}
				out.Lifted = &lifted
				if err := a.audit.InTx(ctx, tx, liftAudit(lifted, adminID)); err != nil {
					return err
				}
			}
		}
		return a.audit.InTx(ctx, tx, appealAudit(AdminActor(adminID), "review_appeal", ap, notesPtr))
	})
	if err != nil {
		return ReviewOutcome{}, err
	}

	a.cache.Invalidate(ctx, StatsCacheKey)
	appealDecisions.WithLabelValues(string(next)).Inc()
	a.audit.AfterCommit(ctx, appealAudit(AdminActor(adminID), "review_appeal", out.Appeal, notesPtr))
	if out.Lifted != nil {
		a.ledger.afterLift(ctx, *out.Lifted, adminID)
	}
	log.Info().
		Str("component", "appeals").
		Uint64("appeal_id", appealID).
		Uint64("admin_id", adminID).
		Str("status", string(next)).
		Msg("appeal reviewed")
	return out, nil
}

func appealAudit(actor, action string, ap model.Appeal, notes *string) AuditEvent {
	userID, id := ap.UserID, ap.ID
	details := map[string]any{"status": string(ap.Status), "suspension_id": ap.SuspensionID}
	if notes != nil {
		details["notes"] = *notes
	}
	return AuditEvent{Actor: actor, Action: action, TargetUserID: &userID, TargetID: &id, Details: details}
}

// Stats counts appeals per status.
func (a *Appeals) Stats(ctx context.Context) (model.AppealStats, error) {
	counts, err := a.appeals.CountByStatus(ctx)
	if err != nil {
		return model.AppealStats{}, persistErr("failed to count appeals", err)
	}
	st := model.AppealStats{
		Pending:     counts[model.AppealPending],
		UnderReview: counts[model.AppealUnderReview],
		Approved:    counts[model.AppealApproved],
		Rejected:    counts[model.AppealRejected],
	}
	st.Total = st.Pending + st.UnderReview + st.Approved + st.Rejected
	return st, nil
}

// List returns appeals, optionally filtered by status, newest first.
func (a *Appeals) List(ctx context.Context, status string, page, limit int) ([]model.Appeal, error) {
	var filter *model.AppealStatus
	if status != "" {
		st, ok := model.ParseAppealStatus(status)
		if !ok {
			return nil, apperror.Validation("invalid_status", fmt.Sprintf("unknown appeal status %q", status))
		}
		filter = &st
	}
	p := NewPage(page, limit)
	list, err := a.appeals.List(ctx, filter, p.Limit, p.Offset())
	if err != nil {
		return nil, persistErr("failed to list appeals", err)
	}
	if list == nil {
		list = []model.Appeal{}
	}
	return list, nil
}

// ListForUser returns the user's appeals, newest first.
func (a *Appeals) ListForUser(ctx context.Context, userID uint64) ([]model.Appeal, error) {
	list, err := a.appeals.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistErr("failed to list appeals", err)
	}
	if list == nil {
		list = []model.Appeal{}
	}
	return list, nil
}

func liftReasonForAppeal(appealID uint64, notes string) string {
	if notes == "" {
		return fmt.Sprintf("appeal #%d approved", appealID)
	}
	return fmt.Sprintf("appeal #%d approved: %s", appealID, notes)
}
