package service

import (
	"database/sql"

	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/policy"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

// Options configures New.
type Options struct {
	Policy              policy.Policy
	AllowDegradedWrites bool
	StrictAudit         bool
	// Notifier delivers lift and maintenance notices; nil records them
	// without delivery.
	Notifier Notifier
	// Cache is told when cached read models go stale; nil disables it.
	Cache CacheInvalidator
}

// Services is the fully wired moderation core.
type Services struct {
	Moderator *Moderator
	Ledger    *Ledger
	Appeals   *Appeals
	Tracker   *AckTracker
	Audit     *Auditor
}

// New builds the repositories and services over db.
func New(db *sql.DB, d database.Dialect, opts Options) *Services {
	users := repository.NewUserRepo(db, d)
	suspensions := repository.NewSuspensionRepo(db, d)

	audit := NewAuditor(repository.NewAuditRepo(db), opts.StrictAudit)
	tracker := NewAckTracker(repository.NewNotificationRepo(db), opts.Notifier)
	ledger := NewLedger(db, users, suspensions, tracker, audit)
	moderator := NewModerator(ModeratorDeps{
		DB:                  db,
		Policy:              opts.Policy,
		Users:               users,
		Violations:          repository.NewViolationRepo(db),
		Reports:             repository.NewReportRepo(db, d),
		Ledger:              ledger,
		Audit:               audit,
		AllowDegradedWrites: opts.AllowDegradedWrites,
	})
	appeals := NewAppeals(db, repository.NewAppealRepo(db, d), suspensions, ledger, audit, opts.Cache)

	return &Services{
		Moderator: moderator,
		Ledger:    ledger,
		Appeals:   appeals,
		Tracker:   tracker,
		Audit:     audit,
	}
}
