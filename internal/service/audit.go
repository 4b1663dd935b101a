package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/model"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

// Actor strings recorded on audit entries.
const ActorSystem = "system"

// AdminActor returns the audit actor for an admin user.
func AdminActor(id uint64) string { return fmt.Sprintf("admin:%d", id) }

// UserActor returns the audit actor for an end user.
func UserActor(id uint64) string { return fmt.Sprintf("user:%d", id) }

// AuditEvent is an action to record in the audit trail.
type AuditEvent struct {
	Actor        string
	Action       string
	TargetUserID *uint64
	TargetID     *uint64
	Details      map[string]any
}

// Auditor appends audit entries.  In the default mode entries are written
// after the primary transaction commits and failures are logged and
// counted.  In strict mode entries are written inside the transaction and a
// failure aborts the operation.
type Auditor struct {
	repo   *repository.AuditRepo
	strict bool
	now    func() time.Time
}

// NewAuditor returns an Auditor.
func NewAuditor(repo *repository.AuditRepo, strict bool) *Auditor {
	return &Auditor{repo: repo, strict: strict, now: time.Now}
}

// InTx writes ev inside tx when the auditor is strict and does nothing
// otherwise.
func (a *Auditor) InTx(ctx context.Context, tx *sql.Tx, ev AuditEvent) error {
	if !a.strict {
		return nil
	}
	e, err := a.entry(ev)
	if err != nil {
		return apperror.Persistence("failed to encode audit entry", err)
	}
	if err := a.repo.CreateTx(ctx, tx, &e); err != nil {
		return persistErr("failed to write audit entry", err)
	}
	return nil
}

// AfterCommit writes ev best-effort when the auditor is not strict.
func (a *Auditor) AfterCommit(ctx context.Context, ev AuditEvent) {
	if a.strict {
		return
	}
	a.Record(ctx, ev)
}

// Record writes ev outside any transaction.  Errors are logged and never
// returned.
func (a *Auditor) Record(ctx context.Context, ev AuditEvent) {
	e, err := a.entry(ev)
	if err == nil {
		err = a.repo.Create(ctx, &e)
	}
	if err != nil {
		secondaryFailures.WithLabelValues("audit").Inc()
		log.Error().Err(err).
			Str("component", "audit").
			Str("actor", ev.Actor).
			Str("action", ev.Action).
			Msg("failed to write audit entry")
	}
}

// ListForUser returns the most recent entries that target userID.
func (a *Auditor) ListForUser(ctx context.Context, userID uint64, limit int) ([]model.AuditEntry, error) {
	if limit < 1 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	entries, err := a.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, persistErr("failed to list audit entries", err)
	}
	return entries, nil
}

func (a *Auditor) entry(ev AuditEvent) (model.AuditEntry, error) {
	details := "{}"
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return model.AuditEntry{}, err
		}
		details = string(b)
	}
	return model.AuditEntry{
		Actor:        ev.Actor,
		Action:       ev.Action,
		TargetUserID: ev.TargetUserID,
		TargetID:     ev.TargetID,
		Details:      details,
		CreatedAt:    a.now().UTC(),
	}, nil
}
