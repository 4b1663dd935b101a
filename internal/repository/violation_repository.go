package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/moderation-escalation/internal/model"
)

// ViolationRepo stores the immutable violation audit trail.  There is no
// update method: a violation is a point-in-time fact.
type ViolationRepo struct {
	db *sql.DB
}

// NewViolationRepo returns a new ViolationRepo bound to the given database.
func NewViolationRepo(db *sql.DB) *ViolationRepo { return &ViolationRepo{db: db} }

const violationColumns = `id, user_id, violation_type, content_id, content_text, flagged_categories,
       category_scores, violation_summary, action_taken, strike_count_after,
       suspension_count_after, report_id, created_at`

// CreateTx inserts v within tx and populates its generated ID.  The
// content text is truncated before it is written.
func (r *ViolationRepo) CreateTx(ctx context.Context, tx *sql.Tx, v *model.Violation) error {
	flags, err := encodeJSON(v.FlaggedCategories, "{}")
	if err != nil {
		return fmt.Errorf("encode flagged categories: %w", err)
	}
	scores, err := encodeJSON(v.CategoryScores, "{}")
	if err != nil {
		return fmt.Errorf("encode category scores: %w", err)
	}
	v.ContentText = model.TruncateContent(v.ContentText)
	const q = `INSERT INTO violations (user_id, violation_type, content_id, content_text, flagged_categories,
               category_scores, violation_summary, action_taken, strike_count_after,
               suspension_count_after, report_id, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		v.UserID, string(v.ViolationType), v.ContentID, v.ContentText, flags,
		scores, v.ViolationSummary, string(v.ActionTaken), v.StrikeCountAfter,
		v.SuspensionCountAfter, nullUint(v.ReportID), v.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// ListByUser returns a page of the user's violations, newest first.
func (r *ViolationRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Violation, error) {
	q := `SELECT ` + violationColumns + ` FROM violations WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Violation, 0)
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountByUser returns the total number of violations for the user.
func (r *ViolationRepo) CountByUser(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM violations WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// GetByID fetches one violation.
func (r *ViolationRepo) GetByID(ctx context.Context, id uint64) (model.Violation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+violationColumns+` FROM violations WHERE id = ?`, id)
	if err != nil {
		return model.Violation{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Violation{}, err
		}
		return model.Violation{}, ErrNotFound
	}
	return scanViolation(rows)
}

func scanViolation(rows *sql.Rows) (model.Violation, error) {
	var v model.Violation
	var vtype, action string
	var flags, scores []byte
	var reportID sql.NullInt64
	if err := rows.Scan(&v.ID, &v.UserID, &vtype, &v.ContentID, &v.ContentText, &flags,
		&scores, &v.ViolationSummary, &action, &v.StrikeCountAfter,
		&v.SuspensionCountAfter, &reportID, &v.CreatedAt); err != nil {
		return model.Violation{}, err
	}
	v.ViolationType = model.ViolationType(vtype)
	v.ActionTaken = model.ActionTaken(action)
	v.ReportID = uintPtr(reportID)
	if err := decodeJSON(flags, &v.FlaggedCategories); err != nil {
		return model.Violation{}, fmt.Errorf("decode flagged categories: %w", err)
	}
	if err := decodeJSON(scores, &v.CategoryScores); err != nil {
		return model.Violation{}, fmt.Errorf("decode category scores: %w", err)
	}
	return v, nil
}
