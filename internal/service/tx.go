// Package service implements the moderation core: recording violations,
// the suspension ledger, appeals, lift notifications and the audit trail.
// Each state-changing operation runs in a single database transaction and
// reports failures as *apperror.Error values.
package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

// withTx runs fn in a transaction and commits when fn returns nil.  Any
// error from fn is returned unchanged after rollback.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err, "", "")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err, "", "")
	}
	committed = true
	return nil
}

var errConcurrentUpdate = apperror.Conflict("concurrent_update", "the user was modified concurrently; retry")

// storageErr maps a repository error to the application taxonomy.  Errors
// that are already *apperror.Error pass through.
func storageErr(err error, notFoundReason, notFoundMsg string) error {
	var appErr *apperror.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(notFoundReason, notFoundMsg)
	case errors.Is(err, repository.ErrVersionConflict), repository.IsLockContention(err):
		return errConcurrentUpdate
	}
	return persistErr("storage operation failed", err)
}

// persistErr wraps a storage failure.  Lock contention is reported as a
// retryable conflict rather than a server error.
func persistErr(msg string, err error) error {
	if repository.IsLockContention(err) {
		return errConcurrentUpdate
	}
	return apperror.Persistence(msg, err)
}

// Page normalizes pagination input: page starts at 1, limit defaults to 20
// and is capped at 100.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// NewPage clamps page and limit into range.
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }
