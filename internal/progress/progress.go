// Package progress derives learner progress summaries from attempts, lesson
// progress rows and the published catalog. Nothing it computes is stored.
package progress

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/pkg/models"
)

// DateLayout is the calendar date format used in weekly activity
const DateLayout = "2006-01-02"

// XP awards
const (
	XPPerCorrectAttempt = 10
	XPPerAttempt        = 2
	XPPerLesson         = 50
)

// WeekDays is the length of the weekly activity window
const WeekDays = 7

// PendingSource lists attempts recorded on the device but not yet uploaded
type PendingSource interface {
	ListUnsynced(ctx context.Context, userID string) ([]models.Attempt, error)
}

// StreakSource returns the displayed streak count
type StreakSource interface {
	CurrentStreak(ctx context.Context, userID string) (int, error)
}

// Aggregator computes progress snapshots
type Aggregator struct {
	remote  remote.ProgressReader
	pending PendingSource
	streaks StreakSource
	loc     *time.Location
	now     func() time.Time
}

// New creates an aggregator. Weekly activity is bucketed by calendar days in
// loc; a nil loc means time.Local and a nil now means time.Now.
func New(r remote.ProgressReader, pending PendingSource, streaks StreakSource, loc *time.Location, now func() time.Time) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{remote: r, pending: pending, streaks: streaks, loc: loc, now: now}
}

// Input is everything a snapshot is derived from
type Input struct {
	UserID      string
	Attempts    []models.Attempt
	Progress    []models.LessonProgress
	Lessons     []models.Lesson
	Assets      []models.Asset
	StreakCount int
	Now         time.Time
	Location    *time.Location
}

// ComputeProgress gathers the inputs of userID and derives the snapshot.
// Attempts are the remote ones plus those still queued on the device.
func (a *Aggregator) ComputeProgress(ctx context.Context, userID string) (models.ProgressSnapshot, error) {
	remoteAttempts, err := a.remote.ListAttempts(ctx, userID)
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("failed to load attempts: %w", err)
	}
	local, err := a.pending.ListUnsynced(ctx, userID)
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("failed to load queued attempts: %w", err)
	}
	progress, err := a.remote.ListLessonProgress(ctx, userID)
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("failed to load lesson progress: %w", err)
	}
	lessons, err := a.remote.ListPublishedLessons(ctx)
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("failed to load lessons: %w", err)
	}
	assets, err := a.remote.ListApprovedAssets(ctx)
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("failed to load assets: %w", err)
	}
	streak, err := a.streaks.CurrentStreak(ctx, userID)
	if err != nil {
		return models.ProgressSnapshot{}, fmt.Errorf("failed to load streak: %w", err)
	}

	return Compute(Input{
		UserID:      userID,
		Attempts:    MergeAttempts(remoteAttempts, local),
		Progress:    progress,
		Lessons:     lessons,
		Assets:      assets,
		StreakCount: streak,
		Now:         a.now(),
		Location:    a.loc,
	}), nil
}

// MergeAttempts returns the union of both lists deduplicated by id, ordered
// by creation time. The first occurrence of an id wins.
func MergeAttempts(lists ...[]models.Attempt) []models.Attempt {
	seen := make(map[string]bool)
	var out []models.Attempt
	for _, list := range lists {
		for _, a := range list {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Compute derives a snapshot from in. It is a pure function.
func Compute(in Input) models.ProgressSnapshot {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}

	s := models.ProgressSnapshot{
		UserID:       in.UserID,
		StreakCount:  in.StreakCount,
		TotalLessons: len(in.Lessons),
	}

	learned := make(map[string]bool)
	for _, a := range in.Attempts {
		s.TotalAttempts++
		if a.Correct() {
			s.CorrectAttempts++
			learned[a.AssetID] = true
		}
	}
	for _, p := range in.Progress {
		for _, id := range p.CompletedAssetIDs {
			learned[id] = true
		}
	}
	s.WordsLearned = len(learned)

	if s.TotalAttempts > 0 {
		s.Accuracy = float64(s.CorrectAttempts) / float64(s.TotalAttempts)
	}

	s.Lessons = summarizeLessons(in.Lessons, in.Assets, in.Progress)
	for _, l := range s.Lessons {
		if l.IsCompleted {
			s.LessonsCompleted++
		}
	}

	s.TotalXP = s.CorrectAttempts*XPPerCorrectAttempt +
		(s.TotalAttempts-s.CorrectAttempts)*XPPerAttempt +
		s.LessonsCompleted*XPPerLesson

	s.WeeklyActivity = WeeklyActivity(in.Attempts, in.Progress, in.Now, loc)
	s.Achievements = evaluate(s)
	return s
}

func summarizeLessons(lessons []models.Lesson, assets []models.Asset, progress []models.LessonProgress) []models.LessonSummary {
	assetsPerLesson := make(map[string]map[string]bool)
	for _, a := range assets {
		if assetsPerLesson[a.LessonID] == nil {
			assetsPerLesson[a.LessonID] = make(map[string]bool)
		}
		assetsPerLesson[a.LessonID][a.ID] = true
	}

	byLesson := make(map[string]models.LessonProgress, len(progress))
	for _, p := range progress {
		byLesson[p.LessonID] = p
	}

	summaries := make([]models.LessonSummary, 0, len(lessons))
	for _, l := range lessons {
		summary := models.LessonSummary{LessonID: l.ID, Title: l.Title}

		p, ok := byLesson[l.ID]
		if ok {
			summary.IsCompleted = p.IsCompleted
			summary.AccuracyRate = p.AccuracyRate

			lessonAssets := assetsPerLesson[l.ID]
			switch {
			case p.IsCompleted:
				summary.CompletionPercent = 100
			case len(lessonAssets) > 0:
				done := 0
				for _, id := range p.CompletedAssetIDs {
					if lessonAssets[id] {
						done++
					}
				}
				summary.CompletionPercent = float64(done) / float64(len(lessonAssets)) * 100
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// WeeklyActivity returns the seven calendar days ending today in loc, oldest
// first. A day is active when it has an attempt or a lesson practiced on it.
func WeeklyActivity(attempts []models.Attempt, progress []models.LessonProgress, now time.Time, loc *time.Location) []models.DayActivity {
	today := now.In(loc)
	days := make([]models.DayActivity, WeekDays)
	index := make(map[string]int, WeekDays)
	for i := 0; i < WeekDays; i++ {
		date := today.AddDate(0, 0, i-(WeekDays-1)).Format(DateLayout)
		days[i] = models.DayActivity{Date: date}
		index[date] = i
	}

	for _, a := range attempts {
		if i, ok := index[a.CreatedAt.In(loc).Format(DateLayout)]; ok {
			days[i].Attempts++
			days[i].Active = true
		}
	}
	for _, p := range progress {
		if p.LastPracticedAt.IsZero() {
			continue
		}
		if i, ok := index[p.LastPracticedAt.In(loc).Format(DateLayout)]; ok {
			days[i].Active = true
		}
	}
	return days
}

// LessonProgressFor builds the progress row of one lesson from the learner's
// attempts in it. An asset counts as completed once it has a correct attempt;
// the lesson is completed when every approved asset is.
func LessonProgressFor(userID, lessonID string, attempts []models.Attempt, assets []models.Asset, practicedAt time.Time) models.LessonProgress {
	lessonAssets := make(map[string]bool)
	for _, a := range assets {
		if a.LessonID == lessonID {
			lessonAssets[a.ID] = true
		}
	}

	p := models.LessonProgress{
		UserID:            userID,
		LessonID:          lessonID,
		CompletedAssetIDs: []string{},
		LastPracticedAt:   practicedAt,
	}

	completed := make(map[string]bool)
	total, correct := 0, 0
	for _, a := range attempts {
		if a.LessonID != lessonID {
			continue
		}
		total++
		if !a.Correct() {
			continue
		}
		correct++
		if lessonAssets[a.AssetID] && !completed[a.AssetID] {
			completed[a.AssetID] = true
			p.CompletedAssetIDs = append(p.CompletedAssetIDs, a.AssetID)
		}
	}
	sort.Strings(p.CompletedAssetIDs)

	if total > 0 {
		p.AccuracyRate = float64(correct) / float64(total) * 100
	}
	p.IsCompleted = len(lessonAssets) > 0 && len(completed) == len(lessonAssets)
	return p
}
