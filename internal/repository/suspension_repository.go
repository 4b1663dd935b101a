package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/model"
)

// SuspensionRepo persists numbered suspension records.  Status changes are
// conditional updates on the current status so that two concurrent lifts
// or acknowledgments cannot both succeed.
type SuspensionRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSuspensionRepo returns a new SuspensionRepo bound to the given database.
func NewSuspensionRepo(db *sql.DB, d database.Dialect) *SuspensionRepo {
	return &SuspensionRepo{db: db, dialect: d}
}

const suspensionColumns = `id, user_id, suspension_type, reason, violation_ids, suspension_number,
       strikes_at_suspension, started_at, ends_at, status, lifted_at, lifted_by,
       lifted_reason, lifted_acknowledged`

// CreateTx inserts s within tx and populates its generated ID.  The
// (user_id, suspension_number) pair is unique; a duplicate returns
// ErrDuplicate.
func (r *SuspensionRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Suspension) error {
	ids, err := encodeJSON(s.ViolationIDs, "[]")
	if err != nil {
		return fmt.Errorf("encode violation ids: %w", err)
	}
	const q = `INSERT INTO suspensions (user_id, suspension_type, reason, violation_ids, suspension_number,
               strikes_at_suspension, started_at, ends_at, status, lifted_acknowledged)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		s.UserID, string(s.SuspensionType), s.Reason, ids, s.SuspensionNumber,
		s.StrikesAtSuspension, s.StartedAt, nullTime(s.EndsAt), string(s.Status), false)
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
	s.ID = uint64(id)
	return nil
}

// GetByID fetches a suspension by id.
func (r *SuspensionRepo) GetByID(ctx context.Context, id uint64) (model.Suspension, error) {
	return r.one(ctx, r.db, `SELECT `+suspensionColumns+` FROM suspensions WHERE id = ?`, id)
}

// GetForUpdateTx fetches a suspension inside tx, locking it on MySQL.
func (r *SuspensionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Suspension, error) {
	return r.one(ctx, tx, `SELECT `+suspensionColumns+` FROM suspensions WHERE id = ?`+r.dialect.ForUpdate(), id)
}

// LatestActiveForUserTx returns the user's most recent active suspension,
// locking it on MySQL.
func (r *SuspensionRepo) LatestActiveForUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (model.Suspension, error) {
	q := `SELECT ` + suspensionColumns + ` FROM suspensions WHERE user_id = ? AND status = ?
          ORDER BY suspension_number DESC LIMIT 1` + r.dialect.ForUpdate()
	return r.one(ctx, tx, q, userID, string(model.SuspensionActive))
}

// ListActiveForUserTx returns every active suspension of the user, newest
// first.
func (r *SuspensionRepo) ListActiveForUserTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]model.Suspension, error) {
	q := `SELECT ` + suspensionColumns + ` FROM suspensions WHERE user_id = ? AND status = ?
          ORDER BY suspension_number DESC`
	return r.many(ctx, tx, q, userID, string(model.SuspensionActive))
}

// ListByUser returns all suspensions of the user ordered newest first.
func (r *SuspensionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Suspension, error) {
	q := `SELECT ` + suspensionColumns + ` FROM suspensions WHERE user_id = ?
          ORDER BY started_at DESC, suspension_number DESC`
	return r.many(ctx, r.db, q, userID)
}

// ListUnacknowledgedLifts returns lifted suspensions the user has not yet
// acknowledged.
func (r *SuspensionRepo) ListUnacknowledgedLifts(ctx context.Context, userID uint64) ([]model.Suspension, error) {
	q := `SELECT ` + suspensionColumns + ` FROM suspensions
          WHERE user_id = ? AND status = ? AND lifted_acknowledged = ?
          ORDER BY lifted_at DESC`
	return r.many(ctx, r.db, q, userID, string(model.SuspensionLifted), false)
}

// LiftTx moves an active suspension to lifted.  It returns ErrConflict
// when the row is missing or no longer active; callers that need to tell
// the two apart read the row first.
func (r *SuspensionRepo) LiftTx(ctx context.Context, tx *sql.Tx, id, adminID uint64, reason string, at time.Time) error {
	const q = `UPDATE suspensions
               SET status = ?, lifted_at = ?, lifted_by = ?, lifted_reason = ?, lifted_acknowledged = ?
               WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q,
		string(model.SuspensionLifted), at, adminID, reason, false,
		id, string(model.SuspensionActive))
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// Acknowledge flips lifted_acknowledged from false to true for a lifted
// suspension owned by userID.  It returns ErrConflict when no row matched.
func (r *SuspensionRepo) Acknowledge(ctx context.Context, id, userID uint64) error {
	const q = `UPDATE suspensions SET lifted_acknowledged = ?
               WHERE id = ? AND user_id = ? AND status = ? AND lifted_acknowledged = ?`
	res, err := r.db.ExecContext(ctx, q, true, id, userID, string(model.SuspensionLifted), false)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SuspensionRepo) one(ctx context.Context, qr querier, q string, args ...any) (model.Suspension, error) {
	list, err := r.many(ctx, qr, q, args...)
	if err != nil {
		return model.Suspension{}, err
	}
	if len(list) == 0 {
		return model.Suspension{}, ErrNotFound
	}
	return list[0], nil
}

func (r *SuspensionRepo) many(ctx context.Context, qr querier, q string, args ...any) ([]model.Suspension, error) {
	rows, err := qr.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Suspension, 0)
	for rows.Next() {
		var s model.Suspension
		var stype, status string
		var ids []byte
		var endsAt, liftedAt sql.NullTime
		var liftedBy sql.NullInt64
		var liftedReason sql.NullString
		if err := rows.Scan(&s.ID, &s.UserID, &stype, &s.Reason, &ids, &s.SuspensionNumber,
			&s.StrikesAtSuspension, &s.StartedAt, &endsAt, &status, &liftedAt, &liftedBy,
			&liftedReason, &s.LiftedAcknowledged); err != nil {
			return nil, err
		}
		s.SuspensionType = model.SuspensionType(stype)
		s.Status = model.SuspensionStatus(status)
		s.EndsAt = timePtr(endsAt)
		s.LiftedAt = timePtr(liftedAt)
		s.LiftedBy = uintPtr(liftedBy)
		s.LiftedReason = stringPtr(liftedReason)
		s.ViolationIDs = []uint64{}
		if err := decodeJSON(ids, &s.ViolationIDs); err != nil {
			return nil, fmt.Errorf("decode violation ids: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// errNotFoundOr maps sql.ErrNoRows to ErrNotFound.
func errNotFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
