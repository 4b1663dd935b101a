package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/model"
)

// ReportStatusResolved is written to a report once a moderation action
// has been taken on it.
const ReportStatusResolved = "resolved"

// Report is the subset of a user report the moderation engine touches.
type Report struct {
	ID          uint64
	ContentID   string
	Status      string
	ActionTaken *string
	ViolationID *uint64
	ResolvedAt  *time.Time
}

// ReportRepo writes resolution metadata back to user reports.
type ReportRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewReportRepo returns a new ReportRepo bound to the given database.
func NewReportRepo(db *sql.DB, d database.Dialect) *ReportRepo { return &ReportRepo{db: db, dialect: d} }

// ExistsTx reports whether the report exists, locking it on MySQL.
func (r *ReportRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var got uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM reports WHERE id = ?`+r.dialect.ForUpdate(), id).Scan(&got)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ResolveTx marks the report resolved with the action and violation that
// settled it.  violationID is nil when the violation was not persisted.
func (r *ReportRepo) ResolveTx(ctx context.Context, tx *sql.Tx, id uint64, action model.ActionTaken, violationID *uint64, at time.Time) error {
	const q = `UPDATE reports SET status = ?, action_taken = ?, violation_id = ?, resolved_at = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, ReportStatusResolved, string(action), nullUint(violationID), at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches a report.
func (r *ReportRepo) GetByID(ctx context.Context, id uint64) (Report, error) {
	const q = `SELECT id, content_id, status, action_taken, violation_id, resolved_at FROM reports WHERE id = ?`
	var rep Report
	var action sql.NullString
	var violationID sql.NullInt64
	var resolvedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, q, id).Scan(&rep.ID, &rep.ContentID, &rep.Status, &action, &violationID, &resolvedAt)
	if err != nil {
		return Report{}, errNotFoundOr(err)
	}
	rep.ActionTaken = stringPtr(action)
	rep.ViolationID = uintPtr(violationID)
	rep.ResolvedAt = timePtr(resolvedAt)
	return rep, nil
}
