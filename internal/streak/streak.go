// Package streak maintains the consecutive-day practice streak.
//
// Streak state lives in a Session opened at login (Load) and closed at logout
// (Flush). A change is first stored on the device as a proposal and then
// written to the remote profile. If that write fails the proposal stays
// authoritative for display and the next UpdateStreak retries it without
// counting the day again.
package streak

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/pkg/models"
)

// DateLayout is the calendar date format of LastActiveDate
const DateLayout = "2006-01-02"

// Result is the outcome of UpdateStreak
type Result struct {
	Streak models.ProfileStreak `json:"streak" yaml:"streak"`
	// Changed is false when the learner was already counted today
	Changed bool `json:"changed" yaml:"changed"`
	// Pending is true while the value is not yet stored remotely
	Pending bool `json:"pending" yaml:"pending"`
}

// Aggregator owns the streak sessions of logged-in learners
type Aggregator struct {
	cache  queue.ProfileCache
	remote remote.ProfileStore
	loc    *time.Location
	now    func() time.Time
	logger *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithLocation sets the zone whose calendar days are counted
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an aggregator. Days are counted in the local zone unless
// WithLocation says otherwise.
func New(cache queue.ProfileCache, r remote.ProfileStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		cache:    cache,
		remote:   r,
		loc:      time.Local,
		now:      time.Now,
		logger:   log.New(os.Stderr, "[streak] ", log.LstdFlags),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session is the streak state of one logged-in learner
type Session struct {
	mu     sync.Mutex
	userID string
	cached models.CachedStreak
}

// Current returns the value to display
func (s *Session) Current() models.ProfileStreak {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached.Current()
}

// Pending reports whether a proposal is waiting for the remote write
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached.Proposed != nil
}

// Load opens the session for userID, merging the device copy with the remote
// profile. An unreachable remote store is not an error: the device copy is
// used, or an empty streak if there is none.
func (a *Aggregator) Load(ctx context.Context, userID string) (*Session, error) {
	cached, err := a.cache.GetStreak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached streak: %w", err)
	}
	if cached == nil {
		cached = &models.CachedStreak{Committed: models.ProfileStreak{UserID: userID}}
	}

	remoteStreak, err := a.remote.GetProfileStreak(ctx, userID)
	switch {
	case err == nil:
		merge(cached, remoteStreak)
		if err := a.cache.SaveStreak(ctx, *cached); err != nil {
			return nil, fmt.Errorf("failed to cache streak: %w", err)
		}
	case errors.Is(err, apperrors.ErrRemoteUnavailable):
		a.logger.Printf("remote profile of %s unavailable, using device copy: %v", userID, err)
	default:
		return nil, fmt.Errorf("failed to read profile streak: %w", err)
	}

	s := &Session{userID: userID, cached: *cached}

	a.mu.Lock()
	a.sessions[userID] = s
	a.mu.Unlock()
	return s, nil
}

// merge adopts the remote value as committed. A pending proposal is dropped
// when the remote profile has moved past its day; otherwise its count is
// rebased on the remote run, which may be longer than the one the device
// knew when the proposal was made.
func merge(cached *models.CachedStreak, remoteStreak models.ProfileStreak) {
	cached.Committed = remoteStreak
	if cached.Proposed == nil {
		return
	}
	if remoteStreak.LastActiveDate > cached.Proposed.LastActiveDate {
		cached.Proposed = nil
		return
	}

	rebased := *cached.Proposed
	rebased.StreakCount = chainCount(remoteStreak, rebased)
	if rebased == remoteStreak {
		cached.Proposed = nil
		return
	}
	cached.Proposed = &rebased
}

// chainCount joins the remote run of active days with the proposed run when
// they touch or overlap and returns the length of the proposed run otherwise.
func chainCount(remoteStreak, proposed models.ProfileStreak) int {
	if remoteStreak.StreakCount <= 0 || remoteStreak.LastActiveDate == "" {
		return proposed.StreakCount
	}
	remoteLast, err1 := dayNumber(remoteStreak.LastActiveDate)
	last, err2 := dayNumber(proposed.LastActiveDate)
	if err1 != nil || err2 != nil {
		return proposed.StreakCount
	}

	start := last - proposed.StreakCount + 1
	if remoteLast < start-1 {
		return proposed.StreakCount
	}
	if remoteStart := remoteLast - remoteStreak.StreakCount + 1; remoteStart < start {
		start = remoteStart
	}
	return last - start + 1
}

// dayNumber counts calendar days since the Unix epoch for a DateLayout date
func dayNumber(day string) (int, error) {
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return 0, err
	}
	return int(t.Unix() / 86400), nil
}

// Session returns the open session of userID
func (a *Aggregator) Session(userID string) (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[userID]
	return s, ok
}

// Flush tries once more to store a pending proposal and closes the session.
// The session is closed even when the write fails; the proposal stays on the
// device and is picked up by the next Load.
func (a *Aggregator) Flush(ctx context.Context, userID string) error {
	a.mu.Lock()
	s, ok := a.sessions[userID]
	delete(a.sessions, userID)
	a.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached.Proposed == nil {
		return nil
	}
	return a.reconcile(ctx, s)
}

// UpdateStreak counts today for userID. Call it once per session start or
// app foreground; repeated calls on the same day change nothing.
func (a *Aggregator) UpdateStreak(ctx context.Context, userID string) (Result, error) {
	s, ok := a.Session(userID)
	if !ok {
		return Result{}, fmt.Errorf("update streak for %s: %w", userID, apperrors.ErrNoSession)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	today := a.now().In(a.loc).Format(DateLayout)
	current := s.cached.Current()

	if current.LastActiveDate == today {
		if s.cached.Proposed != nil {
			if err := a.reconcile(ctx, s); err != nil && apperrors.IsLocalStorage(err) {
				return Result{}, err
			}
		}
		return Result{Streak: s.cached.Current(), Pending: s.cached.Proposed != nil}, nil
	}

	next := models.ProfileStreak{
		UserID:         userID,
		StreakCount:    NextCount(current, today, a.loc),
		LastActiveDate: today,
	}
	s.cached.Proposed = &next
	if err := a.cache.SaveStreak(ctx, s.cached); err != nil {
		return Result{}, fmt.Errorf("failed to cache streak proposal: %w", err)
	}

	if err := a.reconcile(ctx, s); err != nil && apperrors.IsLocalStorage(err) {
		return Result{}, err
	}
	return Result{Streak: next, Changed: true, Pending: s.cached.Proposed != nil}, nil
}

// reconcile writes the pending proposal remotely. A remote failure keeps the
// proposal and is only logged; local cache failures are returned.
// Callers hold s.mu.
func (a *Aggregator) reconcile(ctx context.Context, s *Session) error {
	proposed := *s.cached.Proposed
	if err := a.remote.UpdateProfileStreak(ctx, proposed); err != nil {
		a.logger.Printf("failed to store streak of %s, keeping proposal: %v", s.userID, err)
		return err
	}

	s.cached.Committed = proposed
	s.cached.Proposed = nil
	if err := a.cache.SaveStreak(ctx, s.cached); err != nil {
		return fmt.Errorf("failed to cache committed streak: %w", err)
	}
	return nil
}

// CurrentStreak returns the displayed streak count of userID from the open
// session, the device cache or the remote profile, in that order.
func (a *Aggregator) CurrentStreak(ctx context.Context, userID string) (int, error) {
	if s, ok := a.Session(userID); ok {
		return s.Current().StreakCount, nil
	}

	cached, err := a.cache.GetStreak(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read cached streak: %w", err)
	}
	if cached != nil {
		return cached.Current().StreakCount, nil
	}

	streak, err := a.remote.GetProfileStreak(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read profile streak: %w", err)
	}
	return streak.StreakCount, nil
}

// NextCount is the streak count after practicing on today, given the last
// recorded value. Days are compared as calendar dates in loc.
func NextCount(last models.ProfileStreak, today string, loc *time.Location) int {
	if last.LastActiveDate == "" {
		return 1
	}
	if last.LastActiveDate == today {
		return last.StreakCount
	}
	if last.LastActiveDate == Yesterday(today, loc) {
		return last.StreakCount + 1
	}
	return 1
}

// Yesterday returns the calendar date before day, or "" if day is malformed
func Yesterday(day string, loc *time.Location) string {
	t, err := time.ParseInLocation(DateLayout, day, loc)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DateLayout)
}
