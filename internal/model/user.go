package model

import "time"

// AccountStatus is the moderation state of a user account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountBanned    AccountStatus = "banned"
)

// severity orders account statuses so a weaker outcome never overwrites a
// stronger one.
func (s AccountStatus) severity() int {
	switch s {
	case AccountBanned:
		return 2
	case AccountSuspended:
		return 1
	}
	return 0
}

// Stronger reports whether s is a more restrictive status than other.
func (s AccountStatus) Stronger(other AccountStatus) bool {
	return s.severity() > other.severity()
}

// User represents the moderation columns of a row in the `users` table.
// Only the escalation engine mutates these fields.
//
// StrikeCount holds strikes since the last suspension and resets to zero
// when one is applied.  SuspensionCount counts every suspension and ban and
// never decreases.  SuspensionEnd is set only while a temporary suspension
// runs, BannedAt and BannedReason only for banned accounts.  Version is the
// optimistic concurrency token bumped on every update.
type User struct {
	ID              uint64        // users.id
	StrikeCount     int           // users.strike_count
	SuspensionCount int           // users.suspension_count
	AccountStatus   AccountStatus // users.account_status
	SuspensionEnd   *time.Time    // users.suspension_end (nullable)
	BannedAt        *time.Time    // users.banned_at (nullable)
	BannedReason    *string       // users.banned_reason (nullable)
	Version         uint64        // users.version
	UpdatedAt       time.Time     // users.updated_at
}
