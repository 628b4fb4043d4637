// Package tracker is the entry point used by the application layer. It ties
// the durable queue, the sync coordinator and the aggregators together.
//
// Every operation is safe to call speculatively: recording never depends on
// the network, and repeated streak or sync calls are no-ops when there is
// nothing to do.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/internal/connectivity"
	"github.com/example/learnsync/internal/progress"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/internal/streak"
	"github.com/example/learnsync/internal/syncer"
	"github.com/example/learnsync/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Automatic sync triggers (connectivity regained, app foreground) are
// throttled to this rate
const (
	DefaultTriggerInterval = 30 * time.Second
	DefaultTriggerBurst    = 1
)

// AttemptIntent is what the application knows when a learner answers
type AttemptIntent struct {
	UserID    string
	AssetID   string
	LessonID  string
	Mode      models.Mode
	Score     *int
	IsCorrect *bool
	Metadata  map[string]any
}

// Options configures a Tracker
type Options struct {
	Sync     syncer.Config
	Location *time.Location
	Now      func() time.Time
	// TriggerInterval is the minimum spacing of automatic syncs
	TriggerInterval time.Duration
	// LogOutput receives every component log; nil means stderr
	LogOutput io.Writer
}

// Tracker records attempts and serves streak and progress
type Tracker struct {
	queue    queue.Local
	remote   remote.Store
	gate     *connectivity.Gate
	syncer   *syncer.Coordinator
	streaks  *streak.Aggregator
	progress *progress.Aggregator

	validate *validator.Validate
	limiter  *rate.Limiter
	now      func() time.Time
	loc      *time.Location
	logger   *log.Logger

	subscription string
	ctx          context.Context
	cancel       context.CancelFunc
	// mu orders wg.Add in trigger against Close
	mu sync.Mutex
	wg sync.WaitGroup
}

// New wires a tracker over an open local store and remote store. It
// subscribes to gate so that regaining connectivity pushes pending attempts.
func New(local queue.Local, r remote.Store, gate *connectivity.Gate, opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TriggerInterval <= 0 {
		opts.TriggerInterval = DefaultTriggerInterval
	}
	var out io.Writer = os.Stderr
	if opts.LogOutput != nil {
		out = opts.LogOutput
	}

	streaks := streak.New(local, r,
		streak.WithClock(opts.Now),
		streak.WithLocation(opts.Location),
		streak.WithLogger(log.New(out, "[streak] ", log.LstdFlags)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		queue:    local,
		remote:   r,
		gate:     gate,
		syncer:   syncer.New(local, r, gate, opts.Sync, log.New(out, "[sync] ", log.LstdFlags)),
		streaks:  streaks,
		progress: progress.New(r, local, streaks, opts.Location, opts.Now),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		limiter:  rate.NewLimiter(rate.Every(opts.TriggerInterval), DefaultTriggerBurst),
		now:      opts.Now,
		loc:      opts.Location,
		logger:   log.New(out, "[tracker] ", log.LstdFlags),
		ctx:      ctx,
		cancel:   cancel,
	}

	t.subscription = gate.Subscribe(func(online bool) {
		if online {
			t.trigger("connectivity regained")
		}
	})
	return t
}

// Close stops background syncs and waits for running ones. Triggers after
// Close do nothing.
func (t *Tracker) Close() {
	t.gate.Unsubscribe(t.subscription)
	t.mu.Lock()
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
}

// Syncer exposes the coordinator to schedulers
func (t *Tracker) Syncer() *syncer.Coordinator {
	return t.syncer
}

// RecordAttempt stores an attempt on the device and, when online, uploads it
// right away. Only validation and local storage failures are returned; an
// upload failure leaves the attempt queued for a later pass.
func (t *Tracker) RecordAttempt(ctx context.Context, intent AttemptIntent) (models.Attempt, error) {
	a := models.Attempt{
		ID:        uuid.NewString(),
		UserID:    intent.UserID,
		AssetID:   intent.AssetID,
		LessonID:  intent.LessonID,
		Mode:      intent.Mode,
		Score:     intent.Score,
		IsCorrect: intent.IsCorrect,
		Metadata:  intent.Metadata,
		CreatedAt: t.now().UTC(),
	}
	if err := t.validate.Struct(a); err != nil {
		return models.Attempt{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidAttempt, err)
	}

	if err := t.queue.Enqueue(ctx, a); err != nil {
		return models.Attempt{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	if !t.gate.Online() {
		return a, nil
	}
	if err := t.syncer.SyncOne(ctx, a); err != nil {
		t.logger.Printf("attempt %s queued for later sync: %v", a.ID, err)
		return a, nil
	}
	a.Synced = true
	return a, nil
}

// Login opens the streak session of userID and pushes attempts left from
// earlier sessions. It returns the streak to display.
func (t *Tracker) Login(ctx context.Context, userID string) (models.ProfileStreak, error) {
	s, err := t.streaks.Load(ctx, userID)
	if err != nil {
		return models.ProfileStreak{}, fmt.Errorf("failed to load streak session: %w", err)
	}

	if _, err := t.syncer.SyncAll(ctx, userID); err != nil {
		t.logger.Printf("login sync for %s failed: %v", userID, err)
	}
	return s.Current(), nil
}

// Logout flushes the streak session of userID. A failed remote write is
// logged; the value stays on the device for the next login.
func (t *Tracker) Logout(ctx context.Context, userID string) error {
	if err := t.streaks.Flush(ctx, userID); err != nil {
		if apperrors.IsLocalStorage(err) {
			return fmt.Errorf("failed to flush streak session: %w", err)
		}
		t.logger.Printf("streak of %s kept on device: %v", userID, err)
	}
	return nil
}

// UpdateStreak counts today for userID, opening the session if needed, and
// kicks off a throttled background sync.
func (t *Tracker) UpdateStreak(ctx context.Context, userID string) (streak.Result, error) {
	if _, ok := t.streaks.Session(userID); !ok {
		if _, err := t.streaks.Load(ctx, userID); err != nil {
			return streak.Result{}, fmt.Errorf("failed to load streak session: %w", err)
		}
	}

	res, err := t.streaks.UpdateStreak(ctx, userID)
	if err != nil {
		return res, err
	}
	t.trigger("foreground")
	return res, nil
}

// SyncOfflineAttempts pushes every pending attempt of userID
func (t *Tracker) SyncOfflineAttempts(ctx context.Context, userID string) (syncer.Report, error) {
	return t.syncer.SyncAll(ctx, userID)
}

// ComputeProgress derives the progress snapshot of userID
func (t *Tracker) ComputeProgress(ctx context.Context, userID string) (models.ProgressSnapshot, error) {
	return t.progress.ComputeProgress(ctx, userID)
}

// CompleteLesson records the end of a practice session in lessonID. The
// progress row is rebuilt from all attempts in the lesson, including queued
// ones, and upserted remotely.
func (t *Tracker) CompleteLesson(ctx context.Context, userID, lessonID string) (models.LessonProgress, error) {
	if !t.gate.Online() {
		return models.LessonProgress{}, fmt.Errorf("complete lesson %s: %w", lessonID, apperrors.ErrOffline)
	}

	remoteAttempts, err := t.remote.ListAttempts(ctx, userID)
	if err != nil {
		return models.LessonProgress{}, fmt.Errorf("failed to load attempts: %w", err)
	}
	local, err := t.queue.ListUnsynced(ctx, userID)
	if err != nil {
		return models.LessonProgress{}, fmt.Errorf("failed to load queued attempts: %w", err)
	}
	assets, err := t.remote.ListApprovedAssets(ctx)
	if err != nil {
		return models.LessonProgress{}, fmt.Errorf("failed to load assets: %w", err)
	}

	p := progress.LessonProgressFor(userID, lessonID, progress.MergeAttempts(remoteAttempts, local), assets, t.now().UTC())
	if err := t.remote.UpsertLessonProgress(ctx, p); err != nil {
		return models.LessonProgress{}, fmt.Errorf("failed to store lesson progress: %w", err)
	}
	return p, nil
}

// QueueStats counts queued attempts of userID (every user when empty)
func (t *Tracker) QueueStats(ctx context.Context, userID string) (models.QueueStats, error) {
	return t.queue.Stats(ctx, userID)
}

// DeadLetters lists attempts withdrawn from automatic sync
func (t *Tracker) DeadLetters(ctx context.Context, userID string) ([]models.QueuedAttempt, error) {
	return t.queue.ListDeadLetters(ctx, userID)
}

// Requeue returns dead-lettered attempts to the pending queue
func (t *Tracker) Requeue(ctx context.Context, ids []string) error {
	return t.queue.Requeue(ctx, ids)
}

// trigger starts a background pass over every user with pending attempts
// unless one ran too recently
func (t *Tracker) trigger(reason string) {
	if !t.gate.Online() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx.Err() != nil || !t.limiter.Allow() {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		reports, err := t.syncer.SyncPending(t.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Printf("background sync (%s) failed: %v", reason, err)
			return
		}
		synced := 0
		for _, r := range reports {
			synced += len(r.Synced)
		}
		if synced > 0 {
			t.logger.Printf("background sync (%s) pushed %d attempts", reason, synced)
		}
	}()
}
