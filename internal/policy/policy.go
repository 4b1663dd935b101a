// Package policy holds the escalation rules that map a user's current
// strike and suspension counters plus a requested action to the next
// counters and the consequence.  It performs no I/O.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/model"
)

// Action is the requested moderation action.
type Action string

const (
	// ActionAutomatic is a classifier-detected violation.
	ActionAutomatic Action = "automatic"
	// ActionStrike is an admin-issued strike; it follows the automatic path.
	ActionStrike Action = "strike"
	// ActionSuspend7Days forces a temporary suspension.
	ActionSuspend7Days Action = "suspend_7days"
	// ActionPermanentBan forces a permanent ban.
	ActionPermanentBan Action = "permanent_ban"
)

// ParseAction normalizes s into an Action.  An empty string means automatic.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionAutomatic, nil
	case ActionAutomatic, ActionStrike, ActionSuspend7Days, ActionPermanentBan:
		return a, nil
	}
	return "", apperror.Validation("invalid_action", fmt.Sprintf("unknown moderation action %q", s))
}

// ParseAdminAction is ParseAction restricted to the admin override tags.
func ParseAdminAction(s string) (Action, error) {
	a, err := ParseAction(s)
	if err != nil {
		return "", err
	}
	if a == ActionAutomatic {
		return "", apperror.Validation("invalid_action", "action must be one of strike, suspend_7days, permanent_ban")
	}
	return a, nil
}

// Counters are the escalation-relevant fields of a user.
type Counters struct {
	Strikes     int
	Suspensions int
}

// SuspensionSpec describes the suspension a decision requires.  EndsAt is
// nil for permanent bans.
type SuspensionSpec struct {
	Type   model.SuspensionType
	EndsAt *time.Time
}

// Result is the outcome of a decision.  Suspension is nil when only a
// strike was added.
type Result struct {
	ActionTaken          model.ActionTaken
	StrikeCountAfter     int
	SuspensionCountAfter int
	StrikesAtSuspension  int
	Suspension           *SuspensionSpec
}

// AccountStatus returns the account status the result implies on its own.
func (r Result) AccountStatus() model.AccountStatus {
	switch r.ActionTaken {
	case model.ActionBanned:
		return model.AccountBanned
	case model.ActionSuspended:
		return model.AccountSuspended
	}
	return model.AccountActive
}

// AdminSuspensionDuration is the fixed term of a suspend_7days action.
const AdminSuspensionDuration = 7 * 24 * time.Hour

// Policy is the configurable escalation policy.  SuspensionDuration
// applies to suspensions reached through strikes only.
type Policy struct {
	StrikesPerSuspension int
	SuspensionsBeforeBan int
	SuspensionDuration   time.Duration
	// AdminSuspendEscalates makes suspend_7days ban like the automatic
	// path once the suspension threshold is reached.  Off by default.
	AdminSuspendEscalates bool
}

// Default returns the standard policy: three strikes per suspension, ban
// on the third suspension, seven day suspensions.
func Default() Policy {
	return Policy{
		StrikesPerSuspension: 3,
		SuspensionsBeforeBan: 3,
		SuspensionDuration:   7 * 24 * time.Hour,
	}
}

// Decide computes the next counters and consequence for action applied to
// counters c at time now.
func (p Policy) Decide(c Counters, action Action, now time.Time) (Result, error) {
	switch action {
	case ActionAutomatic, ActionStrike:
		strikes := c.Strikes + 1
		if strikes < p.StrikesPerSuspension {
			return Result{
				ActionTaken:          model.ActionStrikeAdded,
				StrikeCountAfter:     strikes,
				SuspensionCountAfter: c.Suspensions,
			}, nil
		}
		return p.suspend(c.Suspensions+1, strikes, true, now.Add(p.SuspensionDuration)), nil
	case ActionSuspend7Days:
		return p.suspend(c.Suspensions+1, c.Strikes, p.AdminSuspendEscalates, now.Add(AdminSuspensionDuration)), nil
	case ActionPermanentBan:
		return p.ban(c.Suspensions+1, c.Strikes), nil
	}
	return Result{}, apperror.Validation("invalid_action", fmt.Sprintf("unknown moderation action %q", action))
}

func (p Policy) suspend(suspensions, strikes int, escalate bool, ends time.Time) Result {
	if escalate && suspensions >= p.SuspensionsBeforeBan {
		return p.ban(suspensions, strikes)
	}
	return Result{
		ActionTaken:          model.ActionSuspended,
		StrikeCountAfter:     0,
		SuspensionCountAfter: suspensions,
		StrikesAtSuspension:  strikes,
		Suspension:           &SuspensionSpec{Type: model.SuspensionTemporary, EndsAt: &ends},
	}
}

func (p Policy) ban(suspensions, strikes int) Result {
	return Result{
		ActionTaken:          model.ActionBanned,
		StrikeCountAfter:     0,
		SuspensionCountAfter: suspensions,
		StrikesAtSuspension:  strikes,
		Suspension:           &SuspensionSpec{Type: model.SuspensionPermanent},
	}
}
