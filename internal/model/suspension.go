package model

import "time"

// SuspensionType distinguishes time-boxed suspensions from bans.
type SuspensionType string

const (
	SuspensionTemporary SuspensionType = "temporary"
	SuspensionPermanent SuspensionType = "permanent"
)

// SuspensionStatus is the lifecycle state of a suspension record.
type SuspensionStatus string

const (
	SuspensionActive  SuspensionStatus = "active"
	SuspensionLifted  SuspensionStatus = "lifted"
	SuspensionExpired SuspensionStatus = "expired"
)

// CanTransition reports whether a suspension may move from s to next.
// Only active suspensions change state; lifted and expired are terminal.
func (s SuspensionStatus) CanTransition(next SuspensionStatus) bool {
	return s == SuspensionActive && (next == SuspensionLifted || next == SuspensionExpired)
}

// Suspension mirrors the `suspensions` table.
//
// SuspensionNumber is dense per user: the Nth suspension has number N.
// EndsAt is nil for permanent suspensions.  The Lifted* fields are set when
// an admin or an approved appeal lifts it, and LiftedAcknowledged records
// whether the user has seen the lift notice.
type Suspension struct {
	ID                  uint64           `json:"id"`
	UserID              uint64           `json:"user_id"`
	SuspensionType      SuspensionType   `json:"suspension_type"`
	Reason              string           `json:"reason"`
	ViolationIDs        []uint64         `json:"violation_ids"`
	SuspensionNumber    int              `json:"suspension_number"`
	StrikesAtSuspension int              `json:"strikes_at_suspension"`
	StartedAt           time.Time        `json:"started_at"`
	EndsAt              *time.Time       `json:"ends_at"`
	Status              SuspensionStatus `json:"status"`
	LiftedAt            *time.Time       `json:"lifted_at,omitempty"`
	LiftedBy            *uint64          `json:"lifted_by,omitempty"`
	LiftedReason        *string          `json:"lifted_reason,omitempty"`
	LiftedAcknowledged  bool             `json:"lifted_acknowledged"`
}
