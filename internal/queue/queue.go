// Package queue defines the durable on-device attempt queue and opens one of
// its backends.
//
// Every backend persists to disk: attempts recorded before a crash or restart
// are listed again by ListUnsynced until they are marked synced. Synced
// attempts are kept for audit and replay, never deleted.
package queue

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/example/learnsync/internal/database"
	"github.com/example/learnsync/pkg/models"
)

// Queue is the durable attempt queue consumed by the sync coordinator
type Queue interface {
	// Enqueue persists an attempt. Any error is a LocalStorageError.
	Enqueue(ctx context.Context, a models.Attempt) error

	// ListUnsynced returns pending attempts in creation order.
	// An empty userID lists every user.
	ListUnsynced(ctx context.Context, userID string) ([]models.Attempt, error)

	// MarkSynced is idempotent: synced and unknown ids are ignored.
	MarkSynced(ctx context.Context, ids []string) error

	// RecordFailure stores the last upload error and returns the retry count.
	RecordFailure(ctx context.Context, id string, cause error, countRetry bool) (int, error)

	DeadLetter(ctx context.Context, ids []string) error
	ListDeadLetters(ctx context.Context, userID string) ([]models.QueuedAttempt, error)
	Requeue(ctx context.Context, ids []string) error

	PendingUsers(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, userID string) (models.QueueStats, error)
}

// ProfileCache keeps the on-device streak copy used by the streak session
type ProfileCache interface {
	GetStreak(ctx context.Context, userID string) (*models.CachedStreak, error)
	SaveStreak(ctx context.Context, cached models.CachedStreak) error
}

// Local is everything the engine keeps on the device
type Local interface {
	Queue
	ProfileCache
	Close() error
}

// Backend names
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config selects and configures a backend
type Config struct {
	Backend string
	DataDir string
}

// Open opens the configured backend under cfg.DataDir
func Open(cfg Config) (Local, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		store, err := database.OpenLocalStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite queue: %w", err)
		}
		return store, nil
	case BackendBadger:
		bcfg := DefaultBadgerConfig()
		bcfg.Path = filepath.Join(cfg.DataDir, "queue.badger")
		store, err := OpenBadger(bcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger queue: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

var (
	_ Local = (*database.LocalStore)(nil)
	_ Local = (*BadgerStore)(nil)
)
