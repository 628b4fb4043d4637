// Package testutil provides fakes shared by package tests
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/pkg/models"
)

// FakeRemote is an in-memory remote.Store.
// It can be switched unavailable and told to reject specific attempt ids.
type FakeRemote struct {
	mu sync.Mutex

	attempts map[string]models.Attempt
	profiles map[string]models.ProfileStreak
	chats    map[string]int64
	progress map[string]models.LessonProgress
	lessons  map[string]models.Lesson
	assets   map[string]models.Asset

	unavailable       bool
	rejected          map[string]bool
	failProfileWrites int

	// BeforeUpsert, when set, runs at the start of every UpsertAttempts call
	BeforeUpsert func()

	UpsertCalls   int
	ProfileWrites int
}

// NewFakeRemote returns an empty, reachable fake
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		attempts: make(map[string]models.Attempt),
		profiles: make(map[string]models.ProfileStreak),
		chats:    make(map[string]int64),
		progress: make(map[string]models.LessonProgress),
		lessons:  make(map[string]models.Lesson),
		assets:   make(map[string]models.Asset),
		rejected: make(map[string]bool),
	}
}

// SetUnavailable makes every call fail with ErrRemoteUnavailable
func (f *FakeRemote) SetUnavailable(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable = down
}

// Reject makes uploads of the given attempt ids fail validation
func (f *FakeRemote) Reject(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.rejected[id] = true
	}
}

// Accept clears a rejection
func (f *FakeRemote) Accept(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.rejected, id)
	}
}

// FailProfileWrites makes the next n profile writes fail as unavailable
func (f *FakeRemote) FailProfileWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failProfileWrites = n
}

func (f *FakeRemote) down(op string) error {
	if f.unavailable {
		return fmt.Errorf("%s: %w", op, apperrors.ErrRemoteUnavailable)
	}
	return nil
}

// AttemptCount returns the number of stored attempts
func (f *FakeRemote) AttemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

// HasAttempt reports whether an attempt with id is stored
func (f *FakeRemote) HasAttempt(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.attempts[id]
	return ok
}

func (f *FakeRemote) UpsertAttempts(ctx context.Context, attempts []models.Attempt) (remote.BatchResult, error) {
	if f.BeforeUpsert != nil {
		f.BeforeUpsert()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpsertCalls++

	result := remote.BatchResult{Failed: make(map[string]error)}
	if err := f.down("upsert attempts"); err != nil {
		return result, err
	}
	for _, a := range attempts {
		if f.rejected[a.ID] {
			result.Failed[a.ID] = fmt.Errorf("attempt %s: %w", a.ID, apperrors.ErrRemoteValidation)
			continue
		}
		a.Synced = true
		f.attempts[a.ID] = a
		result.Acked = append(result.Acked, a.ID)
	}
	return result, nil
}

func (f *FakeRemote) ListAttempts(ctx context.Context, userID string) ([]models.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("list attempts"); err != nil {
		return nil, err
	}

	var out []models.Attempt
	for _, a := range f.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SetProfileStreak seeds a profile without counting as a write
func (f *FakeRemote) SetProfileStreak(streak models.ProfileStreak) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[streak.UserID] = streak
}

func (f *FakeRemote) GetProfileStreak(ctx context.Context, userID string) (models.ProfileStreak, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("get profile"); err != nil {
		return models.ProfileStreak{}, err
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return models.ProfileStreak{UserID: userID}, nil
}

func (f *FakeRemote) UpdateProfileStreak(ctx context.Context, streak models.ProfileStreak) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("update profile"); err != nil {
		return err
	}
	if f.failProfileWrites > 0 {
		f.failProfileWrites--
		return fmt.Errorf("update profile: %w", apperrors.ErrRemoteUnavailable)
	}
	f.ProfileWrites++
	f.profiles[streak.UserID] = streak
	return nil
}

func (f *FakeRemote) LinkTelegramChat(ctx context.Context, userID string, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("link chat"); err != nil {
		return err
	}
	f.chats[userID] = chatID
	return nil
}

func (f *FakeRemote) ListReminderTargets(ctx context.Context, lastActiveDate string) ([]models.ReminderTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("list reminder targets"); err != nil {
		return nil, err
	}

	var out []models.ReminderTarget
	for userID, p := range f.profiles {
		chatID, ok := f.chats[userID]
		if !ok || p.LastActiveDate != lastActiveDate || p.StreakCount == 0 {
			continue
		}
		out = append(out, models.ReminderTarget{
			UserID:         userID,
			ChatID:         chatID,
			StreakCount:    p.StreakCount,
			LastActiveDate: p.LastActiveDate,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func progressKey(userID, lessonID string) string {
	return userID + "/" + lessonID
}

func (f *FakeRemote) UpsertLessonProgress(ctx context.Context, p models.LessonProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("upsert lesson progress"); err != nil {
		return err
	}
	f.progress[progressKey(p.UserID, p.LessonID)] = p
	return nil
}

func (f *FakeRemote) ListLessonProgress(ctx context.Context, userID string) ([]models.LessonProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("list lesson progress"); err != nil {
		return nil, err
	}

	var out []models.LessonProgress
	for _, p := range f.progress {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

func (f *FakeRemote) ListPublishedLessons(ctx context.Context) ([]models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("list lessons"); err != nil {
		return nil, err
	}

	var out []models.Lesson
	for _, l := range f.lessons {
		if l.Status == models.LessonStatusPublished {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *FakeRemote) ListApprovedAssets(ctx context.Context) ([]models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("list assets"); err != nil {
		return nil, err
	}

	var out []models.Asset
	for _, a := range f.assets {
		if a.Status == models.AssetStatusApproved {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeRemote) UpsertLesson(ctx context.Context, l models.Lesson) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("upsert lesson"); err != nil {
		return err
	}
	f.lessons[l.ID] = l
	return nil
}

func (f *FakeRemote) UpsertAsset(ctx context.Context, a models.Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down("upsert asset"); err != nil {
		return err
	}
	if _, ok := f.lessons[a.LessonID]; !ok {
		return fmt.Errorf("asset %s references unknown lesson %s: %w", a.ID, a.LessonID, apperrors.ErrRemoteValidation)
	}
	f.assets[a.ID] = a
	return nil
}

func (f *FakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down("ping")
}

func (f *FakeRemote) EnsureSchema(ctx context.Context) error { return nil }

func (f *FakeRemote) Close() error { return nil }

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at now
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ remote.Store = (*FakeRemote)(nil)
