package model

import (
	"strings"
	"time"
)

// MaxContentLength is the number of characters of offending content kept on
// a violation record.
const MaxContentLength = 1000

// ViolationType identifies the kind of content that was flagged.
type ViolationType string

const (
	ViolationPost   ViolationType = "post"
	ViolationReply  ViolationType = "reply"
	ViolationPrompt ViolationType = "prompt"
)

// ParseViolationType normalizes s and reports whether it names a known type.
func ParseViolationType(s string) (ViolationType, bool) {
	switch v := ViolationType(strings.ToLower(strings.TrimSpace(s))); v {
	case ViolationPost, ViolationReply, ViolationPrompt:
		return v, true
	}
	return "", false
}

// ActionTaken is the consequence recorded on a violation.
type ActionTaken string

const (
	ActionStrikeAdded ActionTaken = "strike_added"
	ActionSuspended   ActionTaken = "suspended"
	ActionBanned      ActionTaken = "banned"
)

// Violation mirrors the `violations` table.  Rows are immutable once
// written: they capture the classifier output and the counters as they
// were at the time of the action.
//
// ContentText is truncated to MaxContentLength characters.  ReportID is set
// when the action resolved a user report.  StrikeCountAfter and
// SuspensionCountAfter hold the user's counters once the action applied.
type Violation struct {
	ID                   uint64             `json:"id"`
	UserID               uint64             `json:"user_id"`
	ViolationType        ViolationType      `json:"violation_type"`
	ContentID            string             `json:"content_id"`
	ContentText          string             `json:"content_text"`
	FlaggedCategories    map[string]bool    `json:"flagged_categories"`
	CategoryScores       map[string]float64 `json:"category_scores"`
	ViolationSummary     string             `json:"violation_summary"`
	ActionTaken          ActionTaken        `json:"action_taken"`
	StrikeCountAfter     int                `json:"strike_count_after"`
	SuspensionCountAfter int                `json:"suspension_count_after"`
	ReportID             *uint64            `json:"report_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// PlaceholderViolation stands in for a violation whose insert failed while
// degraded writes are allowed.  It is never persisted; Ref is a random
// identifier that ties log lines and audit entries together.
type PlaceholderViolation struct {
	Ref                  string        `json:"ref"`
	UserID               uint64        `json:"user_id"`
	ViolationType        ViolationType `json:"violation_type"`
	ContentID            string        `json:"content_id"`
	ActionTaken          ActionTaken   `json:"action_taken"`
	StrikeCountAfter     int           `json:"strike_count_after"`
	SuspensionCountAfter int           `json:"suspension_count_after"`
	Cause                string        `json:"cause"`
}

// TruncateContent cuts s to at most MaxContentLength runes.
func TruncateContent(s string) string {
	if len(s) <= MaxContentLength {
		return s
	}
	r := []rune(s)
	if len(r) <= MaxContentLength {
		return s
	}
	return string(r[:MaxContentLength])
}
