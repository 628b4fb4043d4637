package progress

import (
	"context"
	"testing"
	"time"

	"github.com/example/learnsync/internal/testutil"
	"github.com/example/learnsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

var now = time.Date(2024, 1, 14, 18, 0, 0, 0, time.UTC)

func attempt(id, asset string, created time.Time, correct *bool, score *int) models.Attempt {
	return models.Attempt{
		ID:        id,
		UserID:    "u1",
		AssetID:   asset,
		LessonID:  "l1",
		Mode:      models.ModeRead,
		IsCorrect: correct,
		Score:     score,
		CreatedAt: created,
	}
}

func TestCorrectnessNormalization(t *testing.T) {
	tests := []struct {
		name    string
		correct *bool
		score   *int
		want    bool
	}{
		{name: "score at threshold", score: intPtr(70), want: true},
		{name: "flag only", correct: boolPtr(true), want: true},
		{name: "false flag with high score", correct: boolPtr(false), score: intPtr(95), want: true},
		{name: "score below threshold", score: intPtr(69), want: false},
		{name: "false flag", correct: boolPtr(false), want: false},
		{name: "no signal", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := attempt("a", "x", now, tt.correct, tt.score)
			assert.Equal(t, tt.want, a.Correct())

			s := Compute(Input{UserID: "u1", Attempts: []models.Attempt{a}, Now: now, Location: time.UTC})
			assert.Equal(t, tt.want, s.CorrectAttempts == 1)
		})
	}
}

func TestWeeklyActivity(t *testing.T) {
	day := func(offset int) time.Time { return now.AddDate(0, 0, -offset) }

	attempts := []models.Attempt{
		attempt("a1", "x", day(6), boolPtr(true), nil),
		attempt("a2", "y", day(2), nil, intPtr(10)),
		attempt("a3", "y", day(2), nil, intPtr(20)),
		attempt("old", "z", day(7), boolPtr(true), nil),
	}
	progress := []models.LessonProgress{
		{UserID: "u1", LessonID: "l1", LastPracticedAt: day(4)},
	}

	week := WeeklyActivity(attempts, progress, now, time.UTC)
	require.Len(t, week, 7)
	assert.Equal(t, "2024-01-08", week[0].Date)
	assert.Equal(t, "2024-01-14", week[6].Date)

	active := 0
	for _, d := range week {
		if d.Active {
			active++
		}
	}
	assert.Equal(t, 3, active)
	assert.True(t, week[0].Active)
	assert.Equal(t, 1, week[0].Attempts)
	assert.True(t, week[2].Active)
	assert.Equal(t, 0, week[2].Attempts)
	assert.Equal(t, 2, week[4].Attempts)
}

func TestWeeklyActivityUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 03:00 UTC on the 14th is still the 13th in New York
	a := attempt("a1", "x", time.Date(2024, 1, 14, 3, 0, 0, 0, time.UTC), boolPtr(true), nil)

	week := WeeklyActivity([]models.Attempt{a}, nil, now, ny)
	assert.Equal(t, "2024-01-13", week[5].Date)
	assert.True(t, week[5].Active)
	assert.False(t, week[6].Active)
}

func TestComputeSnapshot(t *testing.T) {
	lessons := []models.Lesson{
		{ID: "l1", Title: "Greetings", Status: models.LessonStatusPublished, Position: 1},
		{ID: "l2", Title: "Numbers", Status: models.LessonStatusPublished, Position: 2},
	}
	assets := []models.Asset{
		{ID: "hello", LessonID: "l1", Status: models.AssetStatusApproved},
		{ID: "bye", LessonID: "l1", Status: models.AssetStatusApproved},
		{ID: "one", LessonID: "l2", Status: models.AssetStatusApproved},
		{ID: "two", LessonID: "l2", Status: models.AssetStatusApproved},
		{ID: "three", LessonID: "l2", Status: models.AssetStatusApproved},
		{ID: "four", LessonID: "l2", Status: models.AssetStatusApproved},
	}
	progress := []models.LessonProgress{
		{UserID: "u1", LessonID: "l1", CompletedAssetIDs: []string{"hello", "bye"}, IsCompleted: true, AccuracyRate: 80, LastPracticedAt: now},
		{UserID: "u1", LessonID: "l2", CompletedAssetIDs: []string{"one"}, AccuracyRate: 50, LastPracticedAt: now},
	}
	attempts := []models.Attempt{
		attempt("a1", "hello", now, boolPtr(true), nil),
		attempt("a2", "hello", now, nil, intPtr(90)),
		attempt("a3", "two", now, nil, intPtr(75)),
		attempt("a4", "three", now, boolPtr(false), nil),
	}

	s := Compute(Input{
		UserID:      "u1",
		Attempts:    attempts,
		Progress:    progress,
		Lessons:     lessons,
		Assets:      assets,
		StreakCount: 7,
		Now:         now,
		Location:    time.UTC,
	})

	assert.Equal(t, 4, s.TotalAttempts)
	assert.Equal(t, 3, s.CorrectAttempts)
	assert.InDelta(t, 0.75, s.Accuracy, 1e-9)
	// hello, two from attempts; hello, bye, one from progress
	assert.Equal(t, 4, s.WordsLearned)
	assert.Equal(t, 1, s.LessonsCompleted)
	assert.Equal(t, 2, s.TotalLessons)
	assert.Equal(t, 3*XPPerCorrectAttempt+1*XPPerAttempt+1*XPPerLesson, s.TotalXP)

	require.Len(t, s.Lessons, 2)
	assert.Equal(t, 100.0, s.Lessons[0].CompletionPercent)
	assert.InDelta(t, 25.0, s.Lessons[1].CompletionPercent, 1e-9)
	assert.Equal(t, 50.0, s.Lessons[1].AccuracyRate)

	unlocked := make(map[string]bool)
	for _, a := range s.Achievements {
		unlocked[a.Key] = a.Unlocked
	}
	assert.True(t, unlocked["first_steps"])
	assert.True(t, unlocked["first_lesson"])
	assert.True(t, unlocked["week_streak"])
	assert.False(t, unlocked["month_streak"])
	assert.False(t, unlocked["course_complete"])
	assert.False(t, unlocked["words_100"])
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(Input{UserID: "u1", Now: now, Location: time.UTC})
	assert.Equal(t, 0.0, s.Accuracy)
	assert.Equal(t, 0, s.TotalXP)
	assert.Len(t, s.WeeklyActivity, 7)
	assert.Len(t, s.Achievements, len(achievements))
	for _, a := range s.Achievements {
		assert.False(t, a.Unlocked, a.Key)
	}
}

func TestMergeAttemptsDeduplicates(t *testing.T) {
	early := attempt("a1", "x", now.Add(-time.Hour), nil, nil)
	late := attempt("a2", "y", now, nil, nil)
	dup := early
	dup.Synced = false

	merged := MergeAttempts([]models.Attempt{late, early}, []models.Attempt{dup})
	require.Len(t, merged, 2)
	assert.Equal(t, "a1", merged[0].ID)
	assert.Equal(t, "a2", merged[1].ID)
}

func TestLessonProgressFor(t *testing.T) {
	assets := []models.Asset{
		{ID: "hello", LessonID: "l1"},
		{ID: "bye", LessonID: "l1"},
		{ID: "one", LessonID: "l2"},
	}
	attempts := []models.Attempt{
		attempt("a1", "hello", now, boolPtr(true), nil),
		attempt("a2", "bye", now, nil, intPtr(40)),
	}

	p := LessonProgressFor("u1", "l1", attempts, assets, now)
	assert.Equal(t, []string{"hello"}, p.CompletedAssetIDs)
	assert.False(t, p.IsCompleted)
	assert.Equal(t, 50.0, p.AccuracyRate)

	attempts = append(attempts, attempt("a3", "bye", now, nil, intPtr(85)))
	p = LessonProgressFor("u1", "l1", attempts, assets, now)
	assert.Equal(t, []string{"bye", "hello"}, p.CompletedAssetIDs)
	assert.True(t, p.IsCompleted)
}

type fixedStreak int

func (f fixedStreak) CurrentStreak(ctx context.Context, userID string) (int, error) {
	return int(f), nil
}

type pendingList []models.Attempt

func (p pendingList) ListUnsynced(ctx context.Context, userID string) ([]models.Attempt, error) {
	return p, nil
}

func TestComputeProgressMergesRemoteAndQueued(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewFakeRemote()
	require.NoError(t, r.UpsertLesson(ctx, models.Lesson{ID: "l1", Title: "Greetings", Status: models.LessonStatusPublished}))
	require.NoError(t, r.UpsertAsset(ctx, models.Asset{ID: "hello", LessonID: "l1", Status: models.AssetStatusApproved}))

	synced := attempt("a1", "hello", now, boolPtr(true), nil)
	_, err := r.UpsertAttempts(ctx, []models.Attempt{synced})
	require.NoError(t, err)

	queued := attempt("a2", "bye", now, nil, intPtr(30))
	agg := New(r, pendingList{queued, synced}, fixedStreak(3), time.UTC, func() time.Time { return now })

	s, err := agg.ComputeProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalAttempts)
	assert.Equal(t, 1, s.CorrectAttempts)
	assert.Equal(t, 3, s.StreakCount)
	assert.Equal(t, 1, s.TotalLessons)
	assert.True(t, s.WeeklyActivity[6].Active)
}

func TestComputeProgressPropagatesRemoteErrors(t *testing.T) {
	r := testutil.NewFakeRemote()
	r.SetUnavailable(true)
	agg := New(r, pendingList{}, fixedStreak(0), time.UTC, nil)

	_, err := agg.ComputeProgress(context.Background(), "u1")
	assert.Error(t, err)
}
