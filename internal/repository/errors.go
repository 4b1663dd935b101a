// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the service layer to
// distinguish between different failure scenarios and translate them into
// the application error taxonomy.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// the current state does not allow the transition (e.g. lifting a
// suspension that is no longer active).
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// ErrVersionConflict is returned when an optimistic concurrency check on
// the users table fails.
var ErrVersionConflict = errors.New("version conflict")

// MySQL server error numbers used for classification.
const (
	mysqlDuplicateEntry  = 1062
	mysqlUnknownColumn   = 1054
	mysqlNoSuchTable     = 1146
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsTransient reports whether err is a schema error that leaves the
// surrounding transaction usable: a missing table or column, typically
// while a migration is rolling out.
func IsTransient(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlUnknownColumn || me.Number == mysqlNoSuchTable
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrError {
		// SQLite reports schema errors under the generic code.
		msg := se.Error()
		return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
	}
	return false
}

// IsLockContention reports whether err means another transaction holds
// the rows or database lock this one needs.  Retrying the whole operation
// is safe.
func IsLockContention(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlLockWaitTimeout || me.Number == mysqlDeadlock
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
