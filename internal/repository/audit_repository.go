package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/moderation-escalation/internal/model"
)

// AuditRepo appends to and reads the operator audit log.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns a new AuditRepo bound to the given database.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create appends e outside of any transaction.
func (r *AuditRepo) Create(ctx context.Context, e *model.AuditEntry) error {
	return r.insert(ctx, r.db, e)
}

// CreateTx appends e within tx so it commits or rolls back with it.
func (r *AuditRepo) CreateTx(ctx context.Context, tx *sql.Tx, e *model.AuditEntry) error {
	return r.insert(ctx, tx, e)
}

func (r *AuditRepo) insert(ctx context.Context, ex execer, e *model.AuditEntry) error {
	const q = `INSERT INTO audit_logs (actor, action, target_user_id, target_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := ex.ExecContext(ctx, q, e.Actor, e.Action, nullUint(e.TargetUserID), nullUint(e.TargetID), e.Details, e.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// ListByUser returns the most recent entries about the user.
func (r *AuditRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.AuditEntry, error) {
	const q = `SELECT id, actor, action, target_user_id, target_id, details, created_at
               FROM audit_logs WHERE target_user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var targetUser, target sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &targetUser, &target, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetUserID = uintPtr(targetUser)
		e.TargetID = uintPtr(target)
		out = append(out, e)
	}
	return out, rows.Err()
}
