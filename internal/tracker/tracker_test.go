package tracker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/internal/connectivity"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/testutil"
	"github.com/example/learnsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir     string
	local   queue.Local
	remote  *testutil.FakeRemote
	gate    *connectivity.Gate
	clock   *testutil.Clock
	tracker *Tracker
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	local, err := queue.Open(queue.Config{Backend: queue.BackendSQLite, DataDir: dir})
	require.NoError(t, err)

	f := &fixture{
		dir:    dir,
		local:  local,
		remote: testutil.NewFakeRemote(),
		gate:   connectivity.NewGate(online, nil),
		clock:  testutil.NewClock(time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)),
	}
	f.tracker = New(local, f.remote, f.gate, Options{
		Location:  time.UTC,
		Now:       f.clock.Now,
		LogOutput: io.Discard,
	})
	t.Cleanup(func() {
		f.tracker.Close()
		f.local.Close()
	})
	return f
}

func intent(user, asset string, score int) AttemptIntent {
	return AttemptIntent{
		UserID:   user,
		AssetID:  asset,
		LessonID: "l1",
		Mode:     models.ModeSpeak,
		Score:    &score,
	}
}

func TestRecordAttemptOnlineUploadsImmediately(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 90))
	require.NoError(t, err)
	assert.True(t, a.Synced)
	assert.NotEmpty(t, a.ID)
	assert.True(t, f.remote.HasAttempt(a.ID))

	stats, err := f.tracker.QueueStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Synced: 1}, stats)
}

func TestRecordAttemptOfflineQueues(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 50))
		require.NoError(t, err)
		assert.False(t, a.Synced)
	}
	assert.Equal(t, 0, f.remote.UpsertCalls)

	report, err := f.tracker.SyncOfflineAttempts(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	f.gate.Set(true)
	report, err = f.tracker.SyncOfflineAttempts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, f.remote.AttemptCount())
	assert.LessOrEqual(t, len(report.Synced), 3)
}

func TestRecordAttemptRemoteFailureKeepsAttempt(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.SetUnavailable(true)

	a, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 50))
	require.NoError(t, err)
	assert.False(t, a.Synced)

	pending, err := f.local.ListUnsynced(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)
}

func TestRecordAttemptValidates(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tests := []struct {
		name   string
		intent AttemptIntent
	}{
		{name: "missing user", intent: intent("", "hello", 50)},
		{name: "missing asset", intent: intent("u1", "", 50)},
		{name: "score too high", intent: intent("u1", "hello", 101)},
		{name: "unknown mode", intent: AttemptIntent{UserID: "u1", AssetID: "hello", Mode: "sing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tracker.RecordAttempt(ctx, tt.intent)
			assert.ErrorIs(t, err, apperrors.ErrInvalidAttempt)
		})
	}

	stats, err := f.tracker.QueueStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{}, stats)
}

func TestRecordAttemptSurvivesRestart(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	a, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 50))
	require.NoError(t, err)
	f.tracker.Close()
	require.NoError(t, f.local.Close())

	local, err := queue.Open(queue.Config{Backend: queue.BackendSQLite, DataDir: f.dir})
	require.NoError(t, err)

	pending, err := local.ListUnsynced(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	// reopened store replaces the closed one for cleanup
	f.local = local
	f.tracker = New(local, f.remote, f.gate, Options{LogOutput: io.Discard})
}

func TestLoginSyncsAndLoadsStreak(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.remote.SetProfileStreak(models.ProfileStreak{UserID: "u1", StreakCount: 5, LastActiveDate: "2024-01-10"})

	_, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 80))
	require.NoError(t, err)

	f.gate.Set(true)
	streak, err := f.tracker.Login(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, streak.StreakCount)

	pending, err := f.local.ListUnsynced(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	res, err := f.tracker.UpdateStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Streak.StreakCount)

	require.NoError(t, f.tracker.Logout(ctx, "u1"))
}

func TestUpdateStreakOpensSession(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.tracker.UpdateStreak(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak.StreakCount)
}

func TestCompleteLesson(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.remote.UpsertLesson(ctx, models.Lesson{ID: "l1", Title: "Greetings", Status: models.LessonStatusPublished}))
	require.NoError(t, f.remote.UpsertAsset(ctx, models.Asset{ID: "hello", LessonID: "l1", Status: models.AssetStatusApproved}))
	require.NoError(t, f.remote.UpsertAsset(ctx, models.Asset{ID: "bye", LessonID: "l1", Status: models.AssetStatusApproved}))

	_, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 90))
	require.NoError(t, err)

	// queued after a failed upload, still counted
	f.remote.SetUnavailable(true)
	_, err = f.tracker.RecordAttempt(ctx, intent("u1", "bye", 80))
	require.NoError(t, err)
	f.remote.SetUnavailable(false)

	pending, err := f.local.ListUnsynced(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	p, err := f.tracker.CompleteLesson(ctx, "u1", "l1")
	require.NoError(t, err)
	assert.True(t, p.IsCompleted)
	assert.Equal(t, []string{"bye", "hello"}, p.CompletedAssetIDs)

	snapshot, err := f.tracker.ComputeProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.LessonsCompleted)
	assert.Equal(t, 2, snapshot.WordsLearned)
}

func TestDeadLettersCanBeRequeued(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	a, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 50))
	require.NoError(t, err)
	require.NoError(t, f.local.DeadLetter(ctx, []string{a.ID}))

	dead, err := f.tracker.DeadLetters(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, dead, 1)

	require.NoError(t, f.tracker.Requeue(ctx, []string{a.ID}))
	dead, err = f.tracker.DeadLetters(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestCompleteLessonRequiresConnectivity(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.tracker.CompleteLesson(context.Background(), "u1", "l1")
	assert.ErrorIs(t, err, apperrors.ErrOffline)
}

func TestRecordAttemptReportsLocalStorageFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.local.Close())

	_, err := f.tracker.RecordAttempt(ctx, intent("u1", "hello", 90))
	require.Error(t, err)
	require.True(t, apperrors.IsLocalStorage(err))
	assert.Equal(t, 0, f.remote.UpsertCalls)

	_, err = f.tracker.SyncOfflineAttempts(ctx, "u1")
	require.Error(t, err)
	require.True(t, apperrors.IsLocalStorage(err))

	// cleanup closes a working store
	f.local, err = queue.Open(queue.Config{Backend: queue.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
}

func TestTriggerAfterCloseIsNoop(t *testing.T) {
	f := newFixture(t, true)
	f.tracker.Close()

	res, err := f.tracker.UpdateStreak(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak.StreakCount)
	f.tracker.wg.Wait()
}
