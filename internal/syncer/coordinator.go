// Package syncer drains the durable attempt queue into the remote store.
//
// An attempt leaves the queue only after the remote store acknowledged it.
// Anything that goes wrong leaves the attempt queued for the next pass.
// Remote rejections of the record itself are counted and, after
// Config.MaxValidationRetries, the attempt is dead-lettered: kept on the
// device but no longer retried automatically.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/pkg/models"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBatchSize            = 100
	DefaultMaxValidationRetries = 5
)

// Config tunes the coordinator
type Config struct {
	// BatchSize is the number of attempts sent per remote call
	BatchSize int
	// MaxValidationRetries is how many validation rejections an attempt
	// survives before it is dead-lettered
	MaxValidationRetries int
}

// DefaultConfig returns the default coordinator configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:            DefaultBatchSize,
		MaxValidationRetries: DefaultMaxValidationRetries,
	}
}

// Gate reports whether the remote store is believed reachable
type Gate interface {
	Online() bool
}

// FailedAttempt describes an attempt that stayed queued after a pass
type FailedAttempt struct {
	ID    string                  `json:"id" yaml:"id"`
	Kind  apperrors.SyncErrorKind `json:"kind" yaml:"kind"`
	Error string                  `json:"error" yaml:"error"`
}

// Report is the outcome of one SyncAll pass
type Report struct {
	UserID       string          `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Skipped      bool            `json:"skipped" yaml:"skipped"`
	Interrupted  bool            `json:"interrupted" yaml:"interrupted"`
	Pending      int             `json:"pending" yaml:"pending"`
	Synced       []string        `json:"synced" yaml:"synced"`
	Failed       []FailedAttempt `json:"failed" yaml:"failed"`
	DeadLettered []string        `json:"dead_lettered" yaml:"dead_lettered"`
}

// Coordinator uploads queued attempts
type Coordinator struct {
	queue  queue.Queue
	remote remote.AttemptWriter
	gate   Gate
	cfg    Config
	logger *log.Logger

	flight singleflight.Group
}

// New creates a coordinator. Zero config fields fall back to defaults.
func New(q queue.Queue, r remote.AttemptWriter, gate Gate, cfg Config, logger *log.Logger) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxValidationRetries <= 0 {
		cfg.MaxValidationRetries = DefaultMaxValidationRetries
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Coordinator{
		queue:  q,
		remote: r,
		gate:   gate,
		cfg:    cfg,
		logger: logger,
	}
}

// SyncOne uploads a single attempt that is already in the queue.
// It returns nil once the remote store acknowledged the attempt and it was
// marked synced, otherwise a *apperrors.SyncError. The attempt stays queued
// on error and is not retried here.
func (c *Coordinator) SyncOne(ctx context.Context, a models.Attempt) error {
	if !c.gate.Online() {
		return apperrors.NewSyncError(a.ID, apperrors.ErrOffline)
	}

	res, err := c.remote.UpsertAttempts(ctx, []models.Attempt{a})
	if err == nil {
		if ferr, failed := res.Failed[a.ID]; failed {
			err = ferr
		} else if !contains(res.Acked, a.ID) {
			err = fmt.Errorf("attempt %s not acknowledged: %w", a.ID, apperrors.ErrRemoteUnavailable)
		}
	}
	if err != nil {
		dead := c.recordFailure(ctx, a.ID, err)
		if dead {
			attemptsTotal.WithLabelValues(resultDeadLettered).Inc()
		} else {
			attemptsTotal.WithLabelValues(resultFailed).Inc()
		}
		return apperrors.NewSyncError(a.ID, err)
	}

	if err := c.queue.MarkSynced(ctx, []string{a.ID}); err != nil {
		// the remote copy exists; the next pass re-uploads it harmlessly
		c.logger.Printf("failed to mark attempt %s synced: %v", a.ID, err)
		return apperrors.NewSyncError(a.ID, err)
	}
	attemptsTotal.WithLabelValues(resultSynced).Inc()
	return nil
}

// SyncAll uploads every pending attempt of userID (every user when empty).
//
// Offline, it does nothing and reports Skipped. Remote failures never make it
// return an error: affected attempts stay queued and are listed in the
// report. Only local storage failures are returned. Concurrent calls for the
// same user share one pass.
func (c *Coordinator) SyncAll(ctx context.Context, userID string) (Report, error) {
	if !c.gate.Online() {
		passesTotal.WithLabelValues(outcomeSkipped).Inc()
		return Report{UserID: userID, Skipped: true}, nil
	}

	v, err, shared := c.flight.Do(userID, func() (interface{}, error) {
		return c.syncAll(ctx, userID)
	})
	if shared {
		c.logger.Printf("joined in-flight sync for user %q", userID)
	}
	return v.(Report), err
}

func (c *Coordinator) syncAll(ctx context.Context, userID string) (Report, error) {
	start := time.Now()
	report := Report{UserID: userID}

	pending, err := c.queue.ListUnsynced(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("failed to list pending attempts: %w", err)
	}
	report.Pending = len(pending)
	if len(pending) == 0 {
		passesTotal.WithLabelValues(outcomeCompleted).Inc()
		return report, nil
	}

	for i := 0; i < len(pending); i += c.cfg.BatchSize {
		end := i + c.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := c.syncBatch(ctx, pending[i:end], &report); err != nil {
			if apperrors.IsLocalStorage(err) {
				return report, err
			}
			c.logger.Printf("sync pass for user %q interrupted: %v", userID, err)
			report.Interrupted = true
			break
		}
	}

	outcome := outcomeCompleted
	if report.Interrupted {
		outcome = outcomeInterrupted
	}
	passesTotal.WithLabelValues(outcome).Inc()
	passDuration.Observe(time.Since(start).Seconds())

	c.logger.Printf("sync pass for user %q: %d pending, %d synced, %d failed, %d dead-lettered",
		userID, report.Pending, len(report.Synced), len(report.Failed), len(report.DeadLettered))
	return report, nil
}

// syncBatch uploads one batch. A returned error means the rest of the pass
// should not be attempted.
func (c *Coordinator) syncBatch(ctx context.Context, batch []models.Attempt, report *Report) error {
	res, callErr := c.remote.UpsertAttempts(ctx, batch)

	if len(res.Acked) > 0 {
		if err := c.queue.MarkSynced(ctx, res.Acked); err != nil {
			return fmt.Errorf("failed to mark attempts synced: %w", err)
		}
		report.Synced = append(report.Synced, res.Acked...)
		attemptsTotal.WithLabelValues(resultSynced).Add(float64(len(res.Acked)))
	}

	failedIDs := make([]string, 0, len(res.Failed))
	for id := range res.Failed {
		failedIDs = append(failedIDs, id)
	}
	sort.Strings(failedIDs)
	for _, id := range failedIDs {
		c.fail(ctx, id, res.Failed[id], report)
	}

	if callErr == nil {
		return nil
	}

	acked := make(map[string]bool, len(res.Acked))
	for _, id := range res.Acked {
		acked[id] = true
	}
	for _, a := range batch {
		if acked[a.ID] {
			continue
		}
		if _, failed := res.Failed[a.ID]; failed {
			continue
		}
		c.fail(ctx, a.ID, callErr, report)
	}
	return callErr
}

func (c *Coordinator) fail(ctx context.Context, id string, err error, report *Report) {
	if c.recordFailure(ctx, id, err) {
		report.DeadLettered = append(report.DeadLettered, id)
		attemptsTotal.WithLabelValues(resultDeadLettered).Inc()
		return
	}
	report.Failed = append(report.Failed, FailedAttempt{
		ID:    id,
		Kind:  apperrors.KindOf(err),
		Error: err.Error(),
	})
	attemptsTotal.WithLabelValues(resultFailed).Inc()
}

// recordFailure stores the error on the queued attempt and applies the
// dead-letter policy. It reports whether the attempt was dead-lettered.
func (c *Coordinator) recordFailure(ctx context.Context, id string, cause error) bool {
	countRetry := errors.Is(cause, apperrors.ErrRemoteValidation)

	retries, err := c.queue.RecordFailure(ctx, id, cause, countRetry)
	if err != nil {
		c.logger.Printf("failed to record sync failure for %s: %v", id, err)
		return false
	}
	if !countRetry || retries < c.cfg.MaxValidationRetries {
		return false
	}

	if err := c.queue.DeadLetter(ctx, []string{id}); err != nil {
		c.logger.Printf("failed to dead-letter attempt %s: %v", id, err)
		return false
	}
	c.logger.Printf("attempt %s dead-lettered after %d rejections: %v", id, retries, cause)
	return true
}

// SyncPending runs SyncAll for every user that has pending attempts
func (c *Coordinator) SyncPending(ctx context.Context) ([]Report, error) {
	if !c.gate.Online() {
		passesTotal.WithLabelValues(outcomeSkipped).Inc()
		return nil, nil
	}

	users, err := c.queue.PendingUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with pending attempts: %w", err)
	}

	reports := make([]Report, 0, len(users))
	for _, userID := range users {
		report, err := c.SyncAll(ctx, userID)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		if report.Interrupted {
			break
		}
	}
	return reports, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
