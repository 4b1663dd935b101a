package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/model"
)

// AppealRepo persists user appeals against suspensions.
type AppealRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewAppealRepo returns a new AppealRepo bound to the given database.
func NewAppealRepo(db *sql.DB, d database.Dialect) *AppealRepo { return &AppealRepo{db: db, dialect: d} }

const appealColumns = `id, suspension_id, user_id, appeal_reason, status, reviewed_by, reviewed_at, review_notes, created_at`

// CreateTx inserts a within tx and populates its generated ID.
func (r *AppealRepo) CreateTx(ctx context.Context, tx *sql.Tx, a *model.Appeal) error {
	const q = `INSERT INTO appeals (suspension_id, user_id, appeal_reason, status, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, a.SuspensionID, a.UserID, a.AppealReason, string(a.Status), a.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// HasOpenTx reports whether the suspension has a pending or under_review
// appeal.
func (r *AppealRepo) HasOpenTx(ctx context.Context, tx *sql.Tx, suspensionID uint64) (bool, error) {
	const q = `SELECT COUNT(*) FROM appeals WHERE suspension_id = ? AND status IN (?, ?)`
	var n int
	err := tx.QueryRowContext(ctx, q, suspensionID, string(model.AppealPending), string(model.AppealUnderReview)).Scan(&n)
	return n > 0, err
}

// GetByID fetches an appeal by id.
func (r *AppealRepo) GetByID(ctx context.Context, id uint64) (model.Appeal, error) {
	return scanAppeal(r.db.QueryRowContext(ctx, `SELECT `+appealColumns+` FROM appeals WHERE id = ?`, id))
}

// GetForUpdateTx fetches an appeal inside tx, locking it on MySQL.
func (r *AppealRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Appeal, error) {
	q := `SELECT ` + appealColumns + ` FROM appeals WHERE id = ?` + r.dialect.ForUpdate()
	return scanAppeal(tx.QueryRowContext(ctx, q, id))
}

// TransitionTx moves an appeal from one of the given statuses to next and
// records the reviewer.  It returns ErrConflict when the appeal is not in
// any of the allowed source statuses.
func (r *AppealRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from []model.AppealStatus, next model.AppealStatus, reviewer uint64, notes *string, at time.Time) error {
	placeholders := make([]string, 0, len(from))
	args := []any{string(next), reviewer, at, nullString(notes), id}
	for _, st := range from {
		placeholders = append(placeholders, "?")
		args = append(args, string(st))
	}
	q := `UPDATE appeals SET status = ?, reviewed_by = ?, reviewed_at = ?, review_notes = ?
          WHERE id = ? AND status IN (` + strings.Join(placeholders, ",") + `)`
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// List returns appeals, optionally filtered by status, newest first.
func (r *AppealRepo) List(ctx context.Context, status *model.AppealStatus, limit, offset int) ([]model.Appeal, error) {
	q := `SELECT ` + appealColumns + ` FROM appeals`
	args := []any{}
	if status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return r.many(ctx, q, args...)
}

// ListByUser returns the user's appeals, newest first.
func (r *AppealRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Appeal, error) {
	return r.many(ctx, `SELECT `+appealColumns+` FROM appeals WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// CountByStatus returns the number of appeals in each status.  Statuses
// without appeals are absent from the map.
func (r *AppealRepo) CountByStatus(ctx context.Context) (map[model.AppealStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM appeals GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.AppealStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[model.AppealStatus(st)] = n
	}
	return out, rows.Err()
}

func (r *AppealRepo) many(ctx context.Context, q string, args ...any) ([]model.Appeal, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Appeal, 0)
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppeal(row rowScanner) (model.Appeal, error) {
	var a model.Appeal
	var status string
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	var notes sql.NullString
	if err := row.Scan(&a.ID, &a.SuspensionID, &a.UserID, &a.AppealReason, &status,
		&reviewedBy, &reviewedAt, &notes, &a.CreatedAt); err != nil {
		return model.Appeal{}, errNotFoundOr(err)
	}
	a.Status = model.AppealStatus(status)
	a.ReviewedBy = uintPtr(reviewedBy)
	a.ReviewedAt = timePtr(reviewedAt)
	a.ReviewNotes = stringPtr(notes)
	return a, nil
}
