package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/database/dbtest"
	"github.com/iliyamo/moderation-escalation/internal/model"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func withTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func TestUserVersionCheck(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewUserRepo(db, database.SQLite)
	id := dbtest.CreateUser(t, db, 1, 0)

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, u.StrikeCount)
	assert.Equal(t, model.AccountActive, u.AccountStatus)
	assert.Nil(t, u.SuspensionEnd)

	stale := u
	withTx(t, db, func(tx *sql.Tx) {
		u.StrikeCount = 2
		require.NoError(t, repo.UpdateModerationTx(ctx, tx, &u, t0))
		assert.Equal(t, stale.Version+1, u.Version)

		stale.StrikeCount = 0
		assert.ErrorIs(t, repo.UpdateModerationTx(ctx, tx, &stale, t0), ErrVersionConflict)
	})

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StrikeCount)

	_, err = repo.GetByID(ctx, 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestViolationTruncatesAndRoundTrips(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewViolationRepo(db)
	uid := dbtest.CreateUser(t, db, 0, 0)

	v := &model.Violation{
		UserID:            uid,
		ViolationType:     model.ViolationPost,
		ContentID:         "post-1",
		ContentText:       strings.Repeat("é", 1500),
		FlaggedCategories: map[string]bool{"harassment": true},
		CategoryScores:    map[string]float64{"harassment": 0.93},
		ViolationSummary:  "harassment",
		ActionTaken:       model.ActionStrikeAdded,
		StrikeCountAfter:  1,
		CreatedAt:         t0,
	}
	withTx(t, db, func(tx *sql.Tx) { require.NoError(t, repo.CreateTx(ctx, tx, v)) })
	require.NotZero(t, v.ID)

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000, len([]rune(got.ContentText)))
	assert.True(t, got.FlaggedCategories["harassment"])
	assert.InDelta(t, 0.93, got.CategoryScores["harassment"], 1e-9)
	assert.Nil(t, got.ReportID)
	assert.True(t, t0.Equal(got.CreatedAt))

	n, err := repo.CountByUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSuspensionLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewSuspensionRepo(db, database.SQLite)
	uid := dbtest.CreateUser(t, db, 0, 1)
	ends := t0.Add(7 * 24 * time.Hour)

	s := &model.Suspension{
		UserID:              uid,
		SuspensionType:      model.SuspensionTemporary,
		Reason:              "three strikes",
		ViolationIDs:        []uint64{7, 8},
		SuspensionNumber:    1,
		StrikesAtSuspension: 3,
		StartedAt:           t0,
		EndsAt:              &ends,
		Status:              model.SuspensionActive,
	}
	withTx(t, db, func(tx *sql.Tx) { require.NoError(t, repo.CreateTx(ctx, tx, s)) })

	dup := *s
	withTx(t, db, func(tx *sql.Tx) { assert.ErrorIs(t, repo.CreateTx(ctx, tx, &dup), ErrDuplicate) })

	// acknowledging an active suspension matches nothing
	assert.ErrorIs(t, repo.Acknowledge(ctx, s.ID, uid), ErrConflict)

	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.LiftTx(ctx, tx, s.ID, 1, "mistake", t0.Add(time.Hour)))
		assert.ErrorIs(t, repo.LiftTx(ctx, tx, s.ID, 1, "again", t0.Add(time.Hour)), ErrConflict)
	})

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuspensionLifted, got.Status)
	assert.Equal(t, []uint64{7, 8}, got.ViolationIDs)
	require.NotNil(t, got.LiftedBy)
	assert.Equal(t, uint64(1), *got.LiftedBy)
	assert.False(t, got.LiftedAcknowledged)

	pending, err := repo.ListUnacknowledgedLifts(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	assert.ErrorIs(t, repo.Acknowledge(ctx, s.ID, uid+1), ErrConflict)
	require.NoError(t, repo.Acknowledge(ctx, s.ID, uid))
	assert.ErrorIs(t, repo.Acknowledge(ctx, s.ID, uid), ErrConflict)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppealTransitions(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewAppealRepo(db, database.SQLite)

	a := &model.Appeal{SuspensionID: 5, UserID: 3, AppealReason: "not me", Status: model.AppealPending, CreatedAt: t0}
	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.CreateTx(ctx, tx, a))
		open, err := repo.HasOpenTx(ctx, tx, 5)
		require.NoError(t, err)
		assert.True(t, open)
	})

	notes := "looks fine"
	withTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.TransitionTx(ctx, tx, a.ID,
			[]model.AppealStatus{model.AppealPending, model.AppealUnderReview}, model.AppealApproved, 9, &notes, t0))
		err := repo.TransitionTx(ctx, tx, a.ID,
			[]model.AppealStatus{model.AppealPending, model.AppealUnderReview}, model.AppealRejected, 9, nil, t0)
		assert.ErrorIs(t, err, ErrConflict)
		open, err := repo.HasOpenTx(ctx, tx, 5)
		require.NoError(t, err)
		assert.False(t, open)
	})

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppealApproved, got.Status)
	require.NotNil(t, got.ReviewNotes)
	assert.Equal(t, notes, *got.ReviewNotes)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.AppealApproved])
	assert.Zero(t, counts[model.AppealPending])

	_, err = repo.GetByID(ctx, 77)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationKeyIsUnique(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewNotificationRepo(db)

	n := &model.Notification{EventKey: "suspension_lifted:1", Kind: model.NotificationSuspensionLifted, Title: "t", Message: "m", CreatedAt: t0}
	require.NoError(t, repo.Create(ctx, n))
	exists, err := repo.ExistsByKey(ctx, n.EventKey)
	require.NoError(t, err)
	assert.True(t, exists)

	again := *n
	assert.ErrorIs(t, repo.Create(ctx, &again), ErrDuplicate)
}

func TestReportResolve(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewReportRepo(db, database.SQLite)
	rid := dbtest.CreateReport(t, db, "post-9")
	vid := uint64(12)

	withTx(t, db, func(tx *sql.Tx) {
		ok, err := repo.ExistsTx(ctx, tx, rid)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.ExistsTx(ctx, tx, rid+100)
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, repo.ResolveTx(ctx, tx, rid, model.ActionSuspended, &vid, t0))
		assert.ErrorIs(t, repo.ResolveTx(ctx, tx, rid+100, model.ActionSuspended, nil, t0), ErrNotFound)
	})

	rep, err := repo.GetByID(ctx, rid)
	require.NoError(t, err)
	assert.Equal(t, ReportStatusResolved, rep.Status)
	require.NotNil(t, rep.ViolationID)
	assert.Equal(t, vid, *rep.ViolationID)
}

func TestAuditAppend(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewAuditRepo(db)
	uid := uint64(4)
	require.NoError(t, repo.Create(ctx, &model.AuditEntry{Actor: "admin:1", Action: "lift", TargetUserID: &uid, Details: "{}", CreatedAt: t0}))
	require.NoError(t, repo.Create(ctx, &model.AuditEntry{Actor: "admin:1", Action: "moderate", TargetUserID: &uid, Details: "{}", CreatedAt: t0.Add(time.Minute)}))

	list, err := repo.ListByUser(ctx, uid, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "moderate", list[0].Action)
}

func TestErrorClassification(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO notifications (event_key, kind, title, message, created_at) VALUES ('k', 'maintenance', 't', 'm', ?)`, t0)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO notifications (event_key, kind, title, message, created_at) VALUES ('k', 'maintenance', 't', 'm', ?)`, t0)
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.True(t, IsDuplicate(fmt.Errorf("insert: %w", err)))
	assert.False(t, IsTransient(err))
	assert.False(t, IsLockContention(err))

	_, err = db.ExecContext(ctx, `SELECT * FROM no_such_table`)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsDuplicate(err))
	assert.False(t, IsLockContention(err))

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.True(t, IsLockContention(busy))
	assert.True(t, IsLockContention(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, IsTransient(busy))

	assert.True(t, IsDuplicate(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsDuplicate(&mysql.MySQLError{Number: 1146}))
	assert.True(t, IsTransient(&mysql.MySQLError{Number: 1146}))
	assert.False(t, IsTransient(&mysql.MySQLError{Number: 1205}))
	assert.True(t, IsLockContention(&mysql.MySQLError{Number: 1205}))
	assert.True(t, IsLockContention(&mysql.MySQLError{Number: 1213}))

	assert.False(t, IsDuplicate(nil))
	assert.False(t, IsTransient(errors.New("no such table: violations")))
}
