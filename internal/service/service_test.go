package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/moderation-escalation/internal/apperror"
	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/database/dbtest"
	"github.com/iliyamo/moderation-escalation/internal/model"
	"github.com/iliyamo/moderation-escalation/internal/policy"
	q "github.com/iliyamo/moderation-escalation/internal/queue"
	"github.com/iliyamo/moderation-escalation/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu     sync.Mutex
	events []q.NotificationEvent
	err    error
}

func (f *fakeNotifier) Publish(_ context.Context, ev q.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type recordingCache struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingCache) Invalidate(_ context.Context, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, names...)
}

func (r *recordingCache) invalidated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

type fixture struct {
	db          *sql.DB
	users       *repository.UserRepo
	violations  *repository.ViolationRepo
	suspensions *repository.SuspensionRepo
	reports     *repository.ReportRepo
	audits      *repository.AuditRepo
	notifier    *fakeNotifier
	audit       *Auditor
	tracker     *AckTracker
	ledger      *Ledger
	moderator   *Moderator
	appeals     *Appeals
	cache       *recordingCache
}

type fixtureOption func(*ModeratorDeps)

func strictAudit(d *ModeratorDeps) { d.Audit.strict = true }
func noDegradedWrites(d *ModeratorDeps) { d.AllowDegradedWrites = false }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	clock := func() time.Time { return t0 }

	f := &fixture{
		db:          db,
		users:       repository.NewUserRepo(db, database.SQLite),
		violations:  repository.NewViolationRepo(db),
		suspensions: repository.NewSuspensionRepo(db, database.SQLite),
		reports:     repository.NewReportRepo(db, database.SQLite),
		audits:      repository.NewAuditRepo(db),
		notifier:    &fakeNotifier{},
		cache:       &recordingCache{},
	}
	f.audit = NewAuditor(f.audits, false)
	f.audit.now = clock
	f.tracker = NewAckTracker(repository.NewNotificationRepo(db), f.notifier)
	f.tracker.now = clock
	f.ledger = NewLedger(db, f.users, f.suspensions, f.tracker, f.audit)
	f.ledger.now = clock

	deps := ModeratorDeps{
		DB:                  db,
		Policy:              policy.Default(),
		Users:               f.users,
		Violations:          f.violations,
		Reports:             f.reports,
		Ledger:              f.ledger,
		Audit:               f.audit,
		AllowDegradedWrites: true,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.moderator = NewModerator(deps)
	f.moderator.now = clock
	f.appeals = NewAppeals(db, repository.NewAppealRepo(db, database.SQLite), f.suspensions, f.ledger, f.audit, f.cache)
	f.appeals.now = clock
	return f
}

func (f *fixture) classify(t *testing.T, userID uint64) ModerationOutcome {
	t.Helper()
	out, err := f.moderator.ApplyModerationAction(context.Background(), ModerationRequest{
		UserID:            userID,
		ViolationType:     "post",
		ContentID:         "post-1",
		ContentText:       "offending text",
		Action:            policy.ActionAutomatic,
		FlaggedCategories: map[string]bool{"harassment": true},
		CategoryScores:    map[string]float64{"harassment": 0.97},
		ViolationSummary:  "harassment",
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) admin(t *testing.T, userID uint64, action policy.Action) ModerationOutcome {
	t.Helper()
	out, err := f.moderator.ApplyModerationAction(context.Background(), adminRequest(userID, action))
	require.NoError(t, err)
	return out
}

func adminRequest(userID uint64, action policy.Action) ModerationRequest {
	adminID := uint64(900)
	return ModerationRequest{
		UserID:        userID,
		ViolationType: "reply",
		ContentID:     "reply-7",
		ContentText:   "text",
		AdminReason:   "manual review",
		Action:        action,
		AdminID:       &adminID,
	}
}

func (f *fixture) user(t *testing.T, id uint64) model.User {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func requireKind(t *testing.T, err error, kind apperror.Kind, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperror.KindOf(err), "error: %v", err)
	if reason != "" {
		assert.Equal(t, reason, apperror.ReasonOf(err))
	}
}

func TestThreeStrikesSuspend(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)

	out := f.classify(t, uid)
	assert.Equal(t, model.ActionStrikeAdded, out.ActionTaken)
	assert.Equal(t, 1, out.StrikeCount)
	assert.Nil(t, out.Suspension)

	out = f.classify(t, uid)
	assert.Equal(t, 2, out.StrikeCount)

	out = f.classify(t, uid)
	assert.Equal(t, model.ActionSuspended, out.ActionTaken)
	assert.Equal(t, 0, out.StrikeCount)
	assert.Equal(t, 1, out.SuspensionCount)
	assert.Equal(t, model.AccountSuspended, out.AccountStatus)
	require.NotNil(t, out.SuspensionEnd)
	assert.True(t, t0.Add(7*24*time.Hour).Equal(*out.SuspensionEnd))

	require.NotNil(t, out.Suspension)
	require.NotNil(t, out.Violation)
	s, err := f.suspensions.GetByID(context.Background(), out.Suspension.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuspensionTemporary, s.SuspensionType)
	assert.Equal(t, 1, s.SuspensionNumber)
	assert.Equal(t, 3, s.StrikesAtSuspension)
	assert.Equal(t, []uint64{out.Violation.ID}, s.ViolationIDs)
	assert.Contains(t, s.Reason, "harassment")

	u := f.user(t, uid)
	assert.Equal(t, model.AccountSuspended, u.AccountStatus)
	assert.Equal(t, 0, u.StrikeCount)
	assert.Equal(t, 1, u.SuspensionCount)
	assert.Equal(t, uint64(3), u.Version)
}

func TestSuspensionViolationsMatchNumber(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		f.classify(t, uid)
	}
	list, err := f.suspensions.ListByUser(ctx, uid)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, s := range list {
		require.Len(t, s.ViolationIDs, 1)
		v, err := f.violations.GetByID(ctx, s.ViolationIDs[0])
		require.NoError(t, err)
		assert.Equal(t, s.SuspensionNumber, v.SuspensionCountAfter)
		assert.Equal(t, uid, v.UserID)
	}
	assert.Equal(t, 3, list[0].SuspensionNumber)
	assert.Equal(t, model.SuspensionPermanent, list[0].SuspensionType)
	assert.Nil(t, list[0].EndsAt)
}

func TestThirdSuspensionBans(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 2, 2)

	out := f.classify(t, uid)
	assert.Equal(t, model.ActionBanned, out.ActionTaken)
	assert.Equal(t, 3, out.SuspensionCount)
	assert.Equal(t, model.AccountBanned, out.AccountStatus)
	assert.Nil(t, out.SuspensionEnd)
	require.NotNil(t, out.Suspension)
	assert.Equal(t, model.SuspensionPermanent, out.Suspension.SuspensionType)

	u := f.user(t, uid)
	assert.Equal(t, model.AccountBanned, u.AccountStatus)
	require.NotNil(t, u.BannedAt)
	require.NotNil(t, u.BannedReason)
	assert.Contains(t, *u.BannedReason, "Permanent ban")
}

func TestAdminSuspendDoesNotEscalate(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 1, 2)

	out := f.admin(t, uid, policy.ActionSuspend7Days)
	assert.Equal(t, model.ActionSuspended, out.ActionTaken)
	assert.Equal(t, 3, out.SuspensionCount)
	assert.Equal(t, 0, out.StrikeCount)
	require.NotNil(t, out.Suspension)
	assert.Equal(t, model.SuspensionTemporary, out.Suspension.SuspensionType)
	assert.Equal(t, "manual review", out.Suspension.Reason)
	assert.Equal(t, 1, out.Suspension.StrikesAtSuspension)
}

func TestTemporarySuspensionKeepsBan(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)

	f.admin(t, uid, policy.ActionPermanentBan)
	out := f.admin(t, uid, policy.ActionSuspend7Days)
	assert.Equal(t, model.ActionSuspended, out.ActionTaken)
	assert.Equal(t, model.AccountBanned, out.AccountStatus)
	assert.Equal(t, 2, out.SuspensionCount)
	assert.Equal(t, model.AccountBanned, f.user(t, uid).AccountStatus)
}

func TestConcurrentViolationsSerialize(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	const writers = 8
	errs := make([]error, writers)
	outs := make([]ModerationOutcome, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = f.moderator.ApplyModerationAction(ctx, ModerationRequest{
				UserID:            uid,
				ViolationType:     "post",
				ContentID:         "post-1",
				ContentText:       "offending text",
				Action:            policy.ActionAutomatic,
				FlaggedCategories: map[string]bool{"spam": true},
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for i, err := range errs {
		if err != nil {
			requireKind(t, err, apperror.KindConflict, "concurrent_update")
			continue
		}
		ok++
		assert.False(t, outs[i].Degraded())
	}
	require.Positive(t, ok)

	u := f.user(t, uid)
	assert.Equal(t, ok, u.StrikeCount+3*u.SuspensionCount)
	assert.Equal(t, uint64(ok), u.Version)

	page, err := f.moderator.GetViolations(ctx, uid, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, ok, page.Total)
	for _, v := range page.Items {
		assert.NotZero(t, v.ID)
	}

	list, err := f.suspensions.ListByUser(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, list, u.SuspensionCount)
}

func TestModerationValidation(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	req := adminRequest(uid, policy.ActionStrike)
	req.ViolationType = "comment"
	_, err := f.moderator.ApplyModerationAction(ctx, req)
	requireKind(t, err, apperror.KindValidation, "invalid_violation_type")

	req = adminRequest(uid, "mute")
	_, err = f.moderator.ApplyModerationAction(ctx, req)
	requireKind(t, err, apperror.KindValidation, "invalid_action")

	req = adminRequest(uid, policy.ActionStrike)
	req.AdminReason = "  "
	_, err = f.moderator.ApplyModerationAction(ctx, req)
	requireKind(t, err, apperror.KindValidation, "missing_reason")

	_, err = f.moderator.ApplyModerationAction(ctx, adminRequest(uid+50, policy.ActionStrike))
	requireKind(t, err, apperror.KindNotFound, "user_not_found")

	assert.Equal(t, 0, f.user(t, uid).StrikeCount)
}

func TestReportWriteBack(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	rid := dbtest.CreateReport(t, f.db, "reply-7")
	ctx := context.Background()

	req := adminRequest(uid, policy.ActionStrike)
	req.ReportID = &rid
	out, err := f.moderator.ApplyModerationAction(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, out.Violation)
	require.NotNil(t, out.Violation.ReportID)

	rep, err := f.reports.GetByID(ctx, rid)
	require.NoError(t, err)
	assert.Equal(t, repository.ReportStatusResolved, rep.Status)
	require.NotNil(t, rep.ActionTaken)
	assert.Equal(t, string(model.ActionStrikeAdded), *rep.ActionTaken)
	require.NotNil(t, rep.ViolationID)
	assert.Equal(t, out.Violation.ID, *rep.ViolationID)
}

func TestUnknownReportRollsBack(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	missing := uint64(404)
	req := adminRequest(uid, policy.ActionStrike)
	req.ReportID = &missing
	_, err := f.moderator.ApplyModerationAction(ctx, req)
	requireKind(t, err, apperror.KindNotFound, "report_not_found")

	n, err := f.violations.CountByUser(ctx, uid)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, f.user(t, uid).StrikeCount)
}

func TestDegradedViolationWrite(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 2, 0)
	_, err := f.db.Exec(`DROP TABLE violations`)
	require.NoError(t, err)

	out := f.classify(t, uid)
	assert.True(t, out.Degraded())
	assert.Nil(t, out.Violation)
	require.NotNil(t, out.Placeholder)
	assert.NotEmpty(t, out.Placeholder.Ref)
	assert.Equal(t, model.ActionSuspended, out.Placeholder.ActionTaken)
	assert.Contains(t, out.Placeholder.Cause, "no such table")

	require.NotNil(t, out.Suspension)
	assert.Empty(t, out.Suspension.ViolationIDs)
	u := f.user(t, uid)
	assert.Equal(t, model.AccountSuspended, u.AccountStatus)
	assert.Equal(t, 1, u.SuspensionCount)
}

func TestDegradedWritesDisabled(t *testing.T) {
	f := newFixture(t, noDegradedWrites)
	uid := dbtest.CreateUser(t, f.db, 1, 0)
	_, err := f.db.Exec(`DROP TABLE violations`)
	require.NoError(t, err)

	_, err = f.moderator.ApplyModerationAction(context.Background(), adminRequest(uid, policy.ActionStrike))
	requireKind(t, err, apperror.KindPersistence, "persistence_error")
	assert.Equal(t, 1, f.user(t, uid).StrikeCount)
}

func TestAuditBestEffort(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	f.admin(t, uid, policy.ActionStrike)
	entries, err := f.audit.ListForUser(ctx, uid, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin:900", entries[0].Actor)
	assert.Equal(t, "moderation_action", entries[0].Action)
	assert.Contains(t, entries[0].Details, `"action_taken":"strike_added"`)

	_, err = f.db.Exec(`DROP TABLE audit_logs`)
	require.NoError(t, err)
	out := f.admin(t, uid, policy.ActionStrike)
	assert.Equal(t, 2, out.StrikeCount)
}

func TestStrictAuditRollsBack(t *testing.T) {
	f := newFixture(t, strictAudit)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	f.admin(t, uid, policy.ActionStrike)
	entries, err := f.audits.ListByUser(ctx, uid, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = f.db.Exec(`DROP TABLE audit_logs`)
	require.NoError(t, err)
	_, err = f.moderator.ApplyModerationAction(ctx, adminRequest(uid, policy.ActionStrike))
	requireKind(t, err, apperror.KindPersistence, "")
	assert.Equal(t, 1, f.user(t, uid).StrikeCount)
}

func TestLiftRestoresAccountAndNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	out := f.admin(t, uid, policy.ActionPermanentBan)
	require.NotNil(t, out.Suspension)

	_, err := f.ledger.Lift(ctx, out.Suspension.ID, 7, "")
	requireKind(t, err, apperror.KindValidation, "missing_reason")

	lifted, err := f.ledger.Lift(ctx, out.Suspension.ID, 7, "overturned")
	require.NoError(t, err)
	assert.Equal(t, model.SuspensionLifted, lifted.Status)
	require.NotNil(t, lifted.LiftedBy)
	assert.Equal(t, uint64(7), *lifted.LiftedBy)

	u := f.user(t, uid)
	assert.Equal(t, model.AccountActive, u.AccountStatus)
	assert.Nil(t, u.SuspensionEnd)
	assert.Nil(t, u.BannedAt)
	assert.Nil(t, u.BannedReason)
	assert.Equal(t, 1, u.SuspensionCount)

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, LiftEventKey(lifted.ID), f.notifier.events[0].EventKey)
	require.NotNil(t, f.notifier.events[0].UserID)
	assert.Equal(t, uid, *f.notifier.events[0].UserID)

	_, err = f.ledger.Lift(ctx, out.Suspension.ID, 7, "again")
	requireKind(t, err, apperror.KindConflict, "not_active")
	assert.Equal(t, 1, f.notifier.count())

	_, err = f.ledger.Lift(ctx, 9999, 7, "nope")
	requireKind(t, err, apperror.KindNotFound, "suspension_not_found")
}

func TestLiftKeepsRemainingSuspension(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	first := f.admin(t, uid, policy.ActionSuspend7Days)
	f.admin(t, uid, policy.ActionSuspend7Days)

	_, err := f.ledger.Lift(ctx, first.Suspension.ID, 7, "first one was wrong")
	require.NoError(t, err)
	u := f.user(t, uid)
	assert.Equal(t, model.AccountSuspended, u.AccountStatus)
	require.NotNil(t, u.SuspensionEnd)

	lifted, err := f.ledger.LiftActiveForUser(ctx, uid, 7, "all clear")
	require.NoError(t, err)
	assert.Equal(t, 2, lifted.SuspensionNumber)
	assert.Equal(t, model.AccountActive, f.user(t, uid).AccountStatus)

	_, err = f.ledger.LiftActiveForUser(ctx, uid, 7, "nothing left")
	requireKind(t, err, apperror.KindConflict, "not_active")
	assert.Equal(t, 2, f.notifier.count())
}

func TestAcknowledgeLift(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	other := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	out := f.admin(t, uid, policy.ActionSuspend7Days)
	sid := out.Suspension.ID

	_, err := f.ledger.Acknowledge(ctx, uid, sid)
	requireKind(t, err, apperror.KindConflict, "not_lifted")

	_, err = f.ledger.Lift(ctx, sid, 7, "appeal accepted offline")
	require.NoError(t, err)

	st, err := f.ledger.GetStatus(ctx, uid)
	require.NoError(t, err)
	assert.Nil(t, st.ActiveSuspension)
	require.Len(t, st.UnacknowledgedLifts, 1)

	_, err = f.ledger.Acknowledge(ctx, other, sid)
	requireKind(t, err, apperror.KindNotFound, "suspension_not_found")

	s, err := f.ledger.Acknowledge(ctx, uid, sid)
	require.NoError(t, err)
	assert.True(t, s.LiftedAcknowledged)

	_, err = f.ledger.Acknowledge(ctx, uid, sid)
	requireKind(t, err, apperror.KindConflict, "already_acknowledged")

	st, err = f.ledger.GetStatus(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, st.UnacknowledgedLifts)
	assert.Equal(t, 1, f.notifier.count())
}

func TestNotificationPublishFailureStillRecords(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	ctx := context.Background()
	start := t0.Add(24 * time.Hour)
	end := start.Add(2 * time.Hour)

	sent, err := f.tracker.NotifyMaintenance(ctx, start, end, "")
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = f.tracker.NotifyMaintenance(ctx, start, end, "again")
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, "maintenance:2026-03-02T12:00:00Z:2026-03-02T14:00:00Z", f.notifier.events[0].EventKey)
}

func TestMaintenanceWindowValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.NotifyMaintenance(context.Background(), t0, t0, "")
	requireKind(t, err, apperror.KindValidation, "invalid_window")
	_, err = f.tracker.NotifyMaintenance(context.Background(), time.Time{}, t0, "")
	requireKind(t, err, apperror.KindValidation, "invalid_window")
	assert.Zero(t, f.notifier.count())
}

func TestLiftNotificationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	s := model.Suspension{ID: 41, UserID: 3}

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sent, err := f.tracker.NotifyLift(context.Background(), s)
			if err == nil {
				results[i] = sent
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r {
			wins++
		}
	}
	assert.LessOrEqual(t, wins, 1)
	assert.Equal(t, wins, f.notifier.count())
}

func TestAppealApprovalLiftsSuspension(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	other := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	out := f.admin(t, uid, policy.ActionSuspend7Days)
	sid := out.Suspension.ID

	_, err := f.appeals.Submit(ctx, uid, sid, "")
	requireKind(t, err, apperror.KindValidation, "missing_reason")
	_, err = f.appeals.Submit(ctx, other, sid, "not mine")
	requireKind(t, err, apperror.KindNotFound, "suspension_not_found")

	ap, err := f.appeals.Submit(ctx, uid, sid, "I was quoting someone")
	require.NoError(t, err)
	assert.Equal(t, model.AppealPending, ap.Status)

	_, err = f.appeals.Submit(ctx, uid, sid, "second try")
	requireKind(t, err, apperror.KindConflict, "appeal_open")

	ap, err = f.appeals.StartReview(ctx, ap.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, model.AppealUnderReview, ap.Status)

	res, err := f.appeals.Review(ctx, ap.ID, 5, DecisionApprove, "context checks out")
	require.NoError(t, err)
	assert.Equal(t, model.AppealApproved, res.Appeal.Status)
	require.NotNil(t, res.Lifted)
	require.NotNil(t, res.Lifted.LiftedReason)
	assert.Equal(t, "appeal #1 approved: context checks out", *res.Lifted.LiftedReason)

	assert.Equal(t, model.AccountActive, f.user(t, uid).AccountStatus)
	assert.Equal(t, 1, f.notifier.count())

	_, err = f.appeals.Review(ctx, ap.ID, 5, DecisionReject, "")
	requireKind(t, err, apperror.KindConflict, "appeal_decided")

	_, err = f.appeals.Submit(ctx, uid, sid, "again")
	requireKind(t, err, apperror.KindConflict, "suspension_not_active")

	stats, err := f.appeals.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.AppealStats{Approved: 1, Total: 1}, stats)
}

func TestAppealRejectionKeepsSuspension(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	out := f.admin(t, uid, policy.ActionSuspend7Days)
	ap, err := f.appeals.Submit(ctx, uid, out.Suspension.ID, "please")
	require.NoError(t, err)

	res, err := f.appeals.Review(ctx, ap.ID, 5, DecisionReject, "upheld")
	require.NoError(t, err)
	assert.Equal(t, model.AppealRejected, res.Appeal.Status)
	assert.Nil(t, res.Lifted)
	assert.Equal(t, model.AccountSuspended, f.user(t, uid).AccountStatus)
	assert.Zero(t, f.notifier.count())

	// a rejected appeal no longer blocks a new one
	_, err = f.appeals.Submit(ctx, uid, out.Suspension.ID, "new evidence")
	require.NoError(t, err)

	list, err := f.appeals.ListForUser(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	pending, err := f.appeals.List(ctx, "pending", 1, 20)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.appeals.List(ctx, "closed", 1, 20)
	requireKind(t, err, apperror.KindValidation, "invalid_status")

	_, err = f.appeals.Review(ctx, 999, 5, DecisionApprove, "")
	requireKind(t, err, apperror.KindNotFound, "appeal_not_found")
}

func TestAppealWritesInvalidateStats(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	out := f.admin(t, uid, policy.ActionSuspend7Days)
	_, err := f.appeals.Submit(ctx, uid, out.Suspension.ID, "")
	require.Error(t, err)
	assert.Empty(t, f.cache.invalidated())

	ap, err := f.appeals.Submit(ctx, uid, out.Suspension.ID, "please")
	require.NoError(t, err)
	assert.Equal(t, []string{StatsCacheKey}, f.cache.invalidated())

	_, err = f.appeals.Stats(ctx)
	require.NoError(t, err)
	assert.Len(t, f.cache.invalidated(), 1)

	_, err = f.appeals.Review(ctx, ap.ID, 5, DecisionApprove, "")
	require.NoError(t, err)
	_, err = f.appeals.Review(ctx, ap.ID, 5, DecisionReject, "")
	require.Error(t, err)
	assert.Equal(t, []string{StatsCacheKey, StatsCacheKey}, f.cache.invalidated())
}

func TestGetViolationsPaginates(t *testing.T) {
	f := newFixture(t)
	uid := dbtest.CreateUser(t, f.db, 0, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.moderator.now = func() time.Time { return t0.Add(time.Duration(i) * time.Minute) }
		f.classify(t, uid)
	}

	page, err := f.moderator.GetViolations(ctx, uid, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Items[0].StrikeCountAfter) // fifth violation
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))

	page, err = f.moderator.GetViolations(ctx, uid, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
	assert.Len(t, page.Items, 5)

	_, err = f.moderator.GetViolations(ctx, uid+10, 1, 20)
	requireKind(t, err, apperror.KindNotFound, "user_not_found")
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("Approved")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)
	_, err = ParseDecision("maybe")
	requireKind(t, err, apperror.KindValidation, "invalid_decision")
}
