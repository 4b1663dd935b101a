package model

import (
	"strings"
	"time"
)

// AppealStatus is the state of a user appeal.
type AppealStatus string

const (
	AppealPending     AppealStatus = "pending"
	AppealUnderReview AppealStatus = "under_review"
	AppealApproved    AppealStatus = "approved"
	AppealRejected    AppealStatus = "rejected"
)

// AppealStatuses lists every status in workflow order.
var AppealStatuses = []AppealStatus{AppealPending, AppealUnderReview, AppealApproved, AppealRejected}

// ParseAppealStatus normalizes s and reports whether it names a known status.
func ParseAppealStatus(s string) (AppealStatus, bool) {
	v := AppealStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AppealStatuses {
		if v == st {
			return v, true
		}
	}
	return "", false
}

// Open reports whether the appeal still awaits a decision.
func (s AppealStatus) Open() bool {
	return s == AppealPending || s == AppealUnderReview
}

// Appeal mirrors the `appeals` table.  At most one open appeal exists per
// suspension.
type Appeal struct {
	ID           uint64       `json:"id"`
	SuspensionID uint64       `json:"suspension_id"`
	UserID       uint64       `json:"user_id"`
	AppealReason string       `json:"appeal_reason"`
	Status       AppealStatus `json:"status"`
	ReviewedBy   *uint64      `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
	ReviewNotes  *string      `json:"review_notes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// AppealStats holds derived per-status counts.
type AppealStats struct {
	Pending     int `json:"pending"`
	UnderReview int `json:"under_review"`
	Approved    int `json:"approved"`
	Rejected    int `json:"rejected"`
	Total       int `json:"total"`
}
