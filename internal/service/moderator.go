package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/model"
	"github.com/iliyamo/moderation-escalation/internal/policy"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

// ModerationRequest is a violation to record against a user, either
// detected by the classifier (ActionAutomatic) or issued by an admin.
type ModerationRequest struct {
	UserID            uint64
	ViolationType     string
	ContentID         string
	ContentText       string
	AdminReason       string
	Action            policy.Action
	ReportID          *uint64
	FlaggedCategories map[string]bool
	CategoryScores    map[string]float64
	ViolationSummary  string
	// AdminID is the acting admin; nil for the classifier.
	AdminID *uint64
}

// ModerationOutcome is the account state after a moderation action.
// Exactly one of Violation and Placeholder is set.
type ModerationOutcome struct {
	ActionTaken     model.ActionTaken           `json:"action_taken"`
	StrikeCount     int                         `json:"strike_count"`
	SuspensionCount int                         `json:"suspension_count"`
	AccountStatus   model.AccountStatus         `json:"account_status"`
	SuspensionEnd   *time.Time                  `json:"suspension_end"`
	Violation       *model.Violation            `json:"violation,omitempty"`
	Placeholder     *model.PlaceholderViolation `json:"placeholder_violation,omitempty"`
	Suspension      *model.Suspension           `json:"suspension,omitempty"`
}

// Degraded reports whether the violation record could not be persisted.
func (o ModerationOutcome) Degraded() bool { return o.Placeholder != nil }

// Moderator records violations and applies the escalation policy.
type Moderator struct {
	db         *sql.DB
	policy     policy.Policy
	users      *repository.UserRepo
	violations *repository.ViolationRepo
	reports    *repository.ReportRepo
	ledger     *Ledger
	audit      *Auditor
	// degraded allows the action to proceed with a placeholder when the
	// violation insert fails with a transient storage error.
	degraded bool
	now      func() time.Time
}

// ModeratorDeps groups the collaborators of a Moderator.
type ModeratorDeps struct {
	DB                  *sql.DB
	Policy              policy.Policy
	Users               *repository.UserRepo
	Violations          *repository.ViolationRepo
	Reports             *repository.ReportRepo
	Ledger              *Ledger
	Audit               *Auditor
	AllowDegradedWrites bool
}

// NewModerator wires a Moderator.
func NewModerator(d ModeratorDeps) *Moderator {
	return &Moderator{
		db:         d.DB,
		policy:     d.Policy,
		users:      d.Users,
		violations: d.Violations,
		reports:    d.Reports,
		ledger:     d.Ledger,
		audit:      d.Audit,
		degraded:   d.AllowDegradedWrites,
		now:        time.Now,
	}
}

// violationRecord is the result of recording a violation: either the
// persisted row or, in degraded mode, a placeholder.
type violationRecord struct {
	violation   *model.Violation
	placeholder *model.PlaceholderViolation
}

func (r violationRecord) ids() []uint64 {
	if r.violation == nil {
		return []uint64{}
	}
	return []uint64{r.violation.ID}
}

// ApplyModerationAction records a violation, updates the user's counters
// and status, opens a suspension when the policy requires one and writes
// the result back to the originating report, all in one transaction.
func (m *Moderator) ApplyModerationAction(ctx context.Context, req ModerationRequest) (ModerationOutcome, error) {
	vt, ok := model.ParseViolationType(req.ViolationType)
	if !ok {
		return ModerationOutcome{}, apperror.Validation("invalid_violation_type",
			fmt.Sprintf("unknown violation type %q", req.ViolationType))
	}
	action, err := policy.ParseAction(string(req.Action))
	if err != nil {
		return ModerationOutcome{}, err
	}
	req.Action = action
	req.AdminReason = strings.TrimSpace(req.AdminReason)
	if action != policy.ActionAutomatic {
		if req.AdminID == nil {
			return ModerationOutcome{}, apperror.Validation("invalid_action", "admin actions require an admin")
		}
		if req.AdminReason == "" {
			return ModerationOutcome{}, apperror.Validation("missing_reason", "admin_reason is required")
		}
	}

	now := m.now().UTC()
	var out ModerationOutcome
	var rec violationRecord
	err = withTx(ctx, m.db, func(tx *sql.Tx) error {
		u, err := m.users.GetForUpdateTx(ctx, tx, req.UserID)
		if err != nil {
			return storageErr(err, "user_not_found", "user not found")
		}
		res, err := m.policy.Decide(policy.Counters{Strikes: u.StrikeCount, Suspensions: u.SuspensionCount}, action, now)
		if err != nil {
			return err
		}

		if req.ReportID != nil {
			ok, err := m.reports.ExistsTx(ctx, tx, *req.ReportID)
			if err != nil {
				return persistErr("failed to load report", err)
			}
			if !ok {
				return apperror.NotFound("report_not_found", "report not found")
			}
		}

		rec, err = m.recordViolation(ctx, tx, req, vt, res, now)
		if err != nil {
			return err
		}

		reason := suspensionReason(req, res)
		u.StrikeCount = res.StrikeCountAfter
		u.SuspensionCount = res.SuspensionCountAfter
		applyResult(&u, res, reason, now)
		if err := m.users.UpdateModerationTx(ctx, tx, &u, now); err != nil {
			return storageErr(err, "user_not_found", "user not found")
		}

		out = ModerationOutcome{
			ActionTaken:     res.ActionTaken,
			StrikeCount:     u.StrikeCount,
			SuspensionCount: u.SuspensionCount,
			AccountStatus:   u.AccountStatus,
			SuspensionEnd:   u.SuspensionEnd,
			Violation:       rec.violation,
			Placeholder:     rec.placeholder,
		}

		if res.Suspension != nil {
			s, err := m.ledger.CreateTx(ctx, tx, NewSuspension{
				UserID:              u.ID,
				Type:                res.Suspension.Type,
				Reason:              reason,
				ViolationIDs:        rec.ids(),
				SuspensionNumber:    res.SuspensionCountAfter,
				StrikesAtSuspension: res.StrikesAtSuspension,
				StartedAt:           now,
				EndsAt:              res.Suspension.EndsAt,
			})
			if err != nil {
				return err
			}
			out.Suspension = &s
		}

		if req.ReportID != nil {
			m.resolveReport(ctx, tx, *req.ReportID, res.ActionTaken, rec, now)
		}
		return m.audit.InTx(ctx, tx, m.moderationAudit(req, out))
	})
	if err != nil {
		return ModerationOutcome{}, err
	}

	moderationActions.WithLabelValues(string(out.ActionTaken)).Inc()
	m.audit.AfterCommit(ctx, m.moderationAudit(req, out))
	log.Info().
		Str("component", "moderator").
		Uint64("user_id", req.UserID).
		Str("action", string(action)).
		Str("action_taken", string(out.ActionTaken)).
		Int("strike_count", out.StrikeCount).
		Int("suspension_count", out.SuspensionCount).
		Bool("degraded", out.Degraded()).
		Msg("moderation action applied")
	return out, nil
}

// recordViolation inserts the violation row.  When the insert fails with a
// transient storage error and degraded writes are allowed, it returns a
// placeholder instead so the account-state change still lands.
func (m *Moderator) recordViolation(ctx context.Context, tx *sql.Tx, req ModerationRequest, vt model.ViolationType, res policy.Result, now time.Time) (violationRecord, error) {
	summary := req.ViolationSummary
	if summary == "" {
		summary = req.AdminReason
	}
	v := &model.Violation{
		UserID:               req.UserID,
		ViolationType:        vt,
		ContentID:            req.ContentID,
		ContentText:          req.ContentText,
		FlaggedCategories:    req.FlaggedCategories,
		CategoryScores:       req.CategoryScores,
		ViolationSummary:     summary,
		ActionTaken:          res.ActionTaken,
		StrikeCountAfter:     res.StrikeCountAfter,
		SuspensionCountAfter: res.SuspensionCountAfter,
		ReportID:             req.ReportID,
		CreatedAt:            now,
	}
	err := m.violations.CreateTx(ctx, tx, v)
	if err == nil {
		return violationRecord{violation: v}, nil
	}
	if !m.degraded || !repository.IsTransient(err) {
		return violationRecord{}, persistErr("failed to record violation", err)
	}

	ph := &model.PlaceholderViolation{
		Ref:                  uuid.NewString(),
		UserID:               req.UserID,
		ViolationType:        vt,
		ContentID:            req.ContentID,
		ActionTaken:          res.ActionTaken,
		StrikeCountAfter:     res.StrikeCountAfter,
		SuspensionCountAfter: res.SuspensionCountAfter,
		Cause:                err.Error(),
	}
	degradedViolations.Inc()
	log.Warn().Err(err).
		Str("component", "moderator").
		Str("placeholder_ref", ph.Ref).
		Uint64("user_id", req.UserID).
		Str("content_id", req.ContentID).
		Msg("violation insert failed; continuing with placeholder, violation history will be incomplete")
	return violationRecord{placeholder: ph}, nil
}

// resolveReport writes the outcome back to the report.  Failures are
// logged and swallowed.
func (m *Moderator) resolveReport(ctx context.Context, tx *sql.Tx, reportID uint64, action model.ActionTaken, rec violationRecord, now time.Time) {
	var violationID *uint64
	if rec.violation != nil {
		violationID = &rec.violation.ID
	}
	err := m.reports.ResolveTx(ctx, tx, reportID, action, violationID, now)
	if err == nil {
		return
	}
	secondaryFailures.WithLabelValues("report_writeback").Inc()
	log.Error().Err(err).
		Str("component", "moderator").
		Uint64("report_id", reportID).
		Msg("failed to write moderation result back to report")
}

// applyResult sets the account status implied by res on u.  Status never
// moves to a weaker state here: a temporary suspension does not replace a
// ban, and the later suspension end wins.
func applyResult(u *model.User, res policy.Result, reason string, now time.Time) {
	if res.Suspension == nil {
		return
	}
	switch res.AccountStatus() {
	case model.AccountBanned:
		u.AccountStatus = model.AccountBanned
		u.SuspensionEnd = nil
		u.BannedAt = &now
		u.BannedReason = &reason
	case model.AccountSuspended:
		if u.AccountStatus == model.AccountBanned {
			return
		}
		u.AccountStatus = model.AccountSuspended
		ends := res.Suspension.EndsAt
		if ends != nil && (u.SuspensionEnd == nil || ends.After(*u.SuspensionEnd)) {
			u.SuspensionEnd = ends
		}
	}
}

func suspensionReason(req ModerationRequest, res policy.Result) string {
	if req.AdminReason != "" {
		return req.AdminReason
	}
	summary := req.ViolationSummary
	if summary == "" {
		summary = "content policy violation"
	}
	if res.ActionTaken == model.ActionBanned {
		return fmt.Sprintf("Permanent ban after %d suspensions: %s", res.SuspensionCountAfter, summary)
	}
	return fmt.Sprintf("Automatic suspension after %d strikes: %s", res.StrikesAtSuspension, summary)
}

func (m *Moderator) moderationAudit(req ModerationRequest, out ModerationOutcome) AuditEvent {
	actor := ActorSystem
	if req.AdminID != nil {
		actor = AdminActor(*req.AdminID)
	}
	userID := req.UserID
	details := map[string]any{
		"action":           string(req.Action),
		"action_taken":     string(out.ActionTaken),
		"strike_count":     out.StrikeCount,
		"suspension_count": out.SuspensionCount,
		"content_id":       req.ContentID,
	}
	if req.AdminReason != "" {
		details["reason"] = req.AdminReason
	}
	if req.ReportID != nil {
		details["report_id"] = *req.ReportID
	}
	var target *uint64
	if out.Violation != nil {
		id := out.Violation.ID
		target = &id
	}
	if out.Placeholder != nil {
		details["placeholder_ref"] = out.Placeholder.Ref
	}
	if out.Suspension != nil {
		details["suspension_id"] = out.Suspension.ID
	}
	return AuditEvent{
		Actor:        actor,
		Action:       "moderation_action",
		TargetUserID: &userID,
		TargetID:     target,
		Details:      details,
	}
}

// ViolationPage is one page of a user's violation history.
type ViolationPage struct {
	Items []model.Violation `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

// GetViolations returns the user's violations, newest first.
func (m *Moderator) GetViolations(ctx context.Context, userID uint64, page, limit int) (ViolationPage, error) {
	if _, err := m.users.GetByID(ctx, userID); err != nil {
		return ViolationPage{}, storageErr(err, "user_not_found", "user not found")
	}
	p := NewPage(page, limit)
	items, err := m.violations.ListByUser(ctx, userID, p.Limit, p.Offset())
	if err != nil {
		return ViolationPage{}, persistErr("failed to list violations", err)
	}
	total, err := m.violations.CountByUser(ctx, userID)
	if err != nil {
		return ViolationPage{}, persistErr("failed to count violations", err)
	}
	if items == nil {
		items = []model.Violation{}
	}
	return ViolationPage{Items: items, Page: p.Page, Limit: p.Limit, Total: total}, nil
}
