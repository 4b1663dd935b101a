package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/model"
)

// UserRepo reads and writes the moderation columns of the users table.
// Every write goes through UpdateModerationTx, which compares and bumps
// the version column so concurrent writers cannot lose updates.
type UserRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewUserRepo(db *sql.DB, d database.Dialect) *UserRepo { return &UserRepo{db: db, dialect: d} }

const userColumns = `id, strike_count, suspension_count, account_status, suspension_end, banned_at, banned_reason, version, updated_at`

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetForUpdateTx fetches a user inside tx and, on MySQL, locks the row
// until the transaction ends.
func (r *UserRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = ?` + r.dialect.ForUpdate()
	return scanUser(tx.QueryRowContext(ctx, q, id))
}

// UpdateModerationTx writes u's moderation fields when the stored version
// still equals u.Version, then bumps the version on u.  It returns
// ErrVersionConflict when another writer got there first.
func (r *UserRepo) UpdateModerationTx(ctx context.Context, tx *sql.Tx, u *model.User, now time.Time) error {
	const q = `UPDATE users
               SET strike_count = ?, suspension_count = ?, account_status = ?,
                   suspension_end = ?, banned_at = ?, banned_reason = ?,
                   version = version + 1, updated_at = ?
               WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, q,
		u.StrikeCount, u.SuspensionCount, string(u.AccountStatus),
		nullTime(u.SuspensionEnd), nullTime(u.BannedAt), nullString(u.BannedReason),
		now, u.ID, u.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	u.Version++
	u.UpdatedAt = now
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var status string
	var suspEnd, bannedAt sql.NullTime
	var bannedReason sql.NullString
	err := row.Scan(&u.ID, &u.StrikeCount, &u.SuspensionCount, &status,
		&suspEnd, &bannedAt, &bannedReason, &u.Version, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.AccountStatus = model.AccountStatus(status)
	u.SuspensionEnd = timePtr(suspEnd)
	u.BannedAt = timePtr(bannedAt)
	u.BannedReason = stringPtr(bannedReason)
	return u, nil
}
