package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/learnsync/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backends = []string{BackendSQLite, BackendBadger}

func openQueue(t *testing.T, backend, dir string) Local {
	t.Helper()
	q, err := Open(Config{Backend: backend, DataDir: dir})
	require.NoError(t, err)
	return q
}

func newAttempt(user string, created time.Time) models.Attempt {
	score := 80
	return models.Attempt{
		ID:        uuid.NewString(),
		UserID:    user,
		AssetID:   "asset-" + uuid.NewString()[:8],
		LessonID:  "lesson-1",
		Mode:      models.ModeSpeak,
		Score:     &score,
		Metadata:  map[string]any{"device": "phone"},
		CreatedAt: created,
	}
}

func ids(attempts []models.Attempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.ID)
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, backend string)) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			fn(t, backend)
		})
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		dir := t.TempDir()
		a := newAttempt("u1", time.Now().UTC())

		q := openQueue(t, backend, dir)
		require.NoError(t, q.Enqueue(ctx, a))
		require.NoError(t, q.Close())

		q = openQueue(t, backend, dir)
		pending, err := q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, a.ID, pending[0].ID)
		assert.Equal(t, a.AssetID, pending[0].AssetID)
		assert.Equal(t, 80, *pending[0].Score)
		assert.Equal(t, "phone", pending[0].Metadata["device"])
		assert.True(t, a.CreatedAt.Equal(pending[0].CreatedAt))

		require.NoError(t, q.MarkSynced(ctx, []string{a.ID}))
		require.NoError(t, q.Close())

		q = openQueue(t, backend, dir)
		defer q.Close()
		pending, err = q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, pending)

		stats, err := q.Stats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, models.QueueStats{Synced: 1}, stats)
	})
}

func TestQueueKeepsLargeMetadataNumbers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		q := openQueue(t, backend, t.TempDir())
		defer q.Close()

		a := newAttempt("u1", time.Now().UTC())
		a.Metadata = map[string]any{"session_id": int64(9007199254740993), "duration_ms": 1250}
		require.NoError(t, q.Enqueue(ctx, a))

		pending, err := q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, json.Number("9007199254740993"), pending[0].Metadata["session_id"])
		assert.Equal(t, json.Number("1250"), pending[0].Metadata["duration_ms"])
	})
}

func TestQueueOrdersByCreationThenInsertion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		q := openQueue(t, backend, t.TempDir())
		defer q.Close()

		base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
		late := newAttempt("u1", base.Add(time.Minute))
		early := newAttempt("u1", base)
		tieA := newAttempt("u1", base.Add(30*time.Second))
		tieB := newAttempt("u1", base.Add(30*time.Second))
		other := newAttempt("u2", base)

		for _, a := range []models.Attempt{late, early, tieA, tieB, other} {
			require.NoError(t, q.Enqueue(ctx, a))
		}

		pending, err := q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{early.ID, tieA.ID, tieB.ID, late.ID}, ids(pending))

		all, err := q.ListUnsynced(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 5)

		users, err := q.PendingUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, users)
	})
}

func TestQueueEnqueueIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		q := openQueue(t, backend, t.TempDir())
		defer q.Close()

		a := newAttempt("u1", time.Now())
		require.NoError(t, q.Enqueue(ctx, a))
		require.NoError(t, q.Enqueue(ctx, a))

		pending, err := q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}

func TestQueueMarkSyncedIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		q := openQueue(t, backend, t.TempDir())
		defer q.Close()

		a := newAttempt("u1", time.Now())
		b := newAttempt("u1", time.Now().Add(time.Second))
		require.NoError(t, q.Enqueue(ctx, a))
		require.NoError(t, q.Enqueue(ctx, b))

		require.NoError(t, q.MarkSynced(ctx, []string{a.ID}))
		require.NoError(t, q.MarkSynced(ctx, []string{a.ID, "unknown-id"}))
		require.NoError(t, q.MarkSynced(ctx, nil))

		pending, err := q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{b.ID}, ids(pending))
	})
}

func TestQueueDeadLetterAndRequeue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		q := openQueue(t, backend, t.TempDir())
		defer q.Close()

		a := newAttempt("u1", time.Now())
		require.NoError(t, q.Enqueue(ctx, a))

		cause := errors.New("score out of range")
		retries, err := q.RecordFailure(ctx, a.ID, cause, true)
		require.NoError(t, err)
		assert.Equal(t, 1, retries)

		retries, err = q.RecordFailure(ctx, a.ID, cause, false)
		require.NoError(t, err)
		assert.Equal(t, 1, retries, "uncounted failures keep the retry count")

		retries, err = q.RecordFailure(ctx, a.ID, cause, true)
		require.NoError(t, err)
		assert.Equal(t, 2, retries)

		require.NoError(t, q.DeadLetter(ctx, []string{a.ID}))

		pending, err := q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, pending)

		dead, err := q.ListDeadLetters(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, a.ID, dead[0].ID)
		assert.Equal(t, 2, dead[0].RetryCount)
		assert.Equal(t, cause.Error(), dead[0].LastError)

		stats, err := q.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, models.QueueStats{DeadLettered: 1}, stats)

		require.NoError(t, q.Requeue(ctx, []string{a.ID}))
		pending, err = q.ListUnsynced(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID}, ids(pending))

		retries, err = q.RecordFailure(ctx, a.ID, cause, true)
		require.NoError(t, err)
		assert.Equal(t, 1, retries, "requeue resets the retry budget")
	})
}

func TestQueueProfileCache(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		ctx := context.Background()
		dir := t.TempDir()
		q := openQueue(t, backend, dir)

		cached, err := q.GetStreak(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, cached)

		want := models.CachedStreak{
			Committed: models.ProfileStreak{UserID: "u1", StreakCount: 5, LastActiveDate: "2024-01-10"},
			Proposed:  &models.ProfileStreak{UserID: "u1", StreakCount: 6, LastActiveDate: "2024-01-11"},
		}
		require.NoError(t, q.SaveStreak(ctx, want))
		require.NoError(t, q.Close())

		q = openQueue(t, backend, dir)
		defer q.Close()
		cached, err = q.GetStreak(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, want, *cached)
		assert.Equal(t, 6, cached.Current().StreakCount)

		want.Committed = *want.Proposed
		want.Proposed = nil
		require.NoError(t, q.SaveStreak(ctx, want))
		cached, err = q.GetStreak(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, want, *cached)
	})
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "etcd", DataDir: t.TempDir()})
	assert.Error(t, err)
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
