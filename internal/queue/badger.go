package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/pkg/models"
)

// Key layout:
//
//	q/<seq>   queued attempt record (JSON), seq zero-padded so keys sort in insertion order
//	i/<id>    attempt id -> q/<seq> key
//	p/<user>  cached streak (JSON)
const (
	queuePrefix   = "q/"
	indexPrefix   = "i/"
	profilePrefix = "p/"
	sequenceKey   = "seq/attempt"
)

// BadgerConfig holds configuration for the Badger-backed queue
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory disables persistence. Only for tests of code that does not
	// depend on restart durability.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's warnings and errors. Nil disables them.
	Logger *log.Logger
}

// DefaultBadgerConfig returns the production configuration
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites: true,
	}
}

// badgerLogger adapts log.Logger to Badger's Logger interface
type badgerLogger struct {
	logger *log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Printf("ERROR: "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Printf("WARNING: "+format, args...)
}

func (l *badgerLogger) Infof(string, ...interface{})  {}
func (l *badgerLogger) Debugf(string, ...interface{}) {}

// BadgerStore is the key-value backed durable queue
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence

	// writes are serialized so transactions never conflict
	mu sync.Mutex
}

// badgerRecord is the stored form of a queued attempt
type badgerRecord struct {
	models.QueuedAttempt
}

// OpenBadger opens (or creates) a Badger-backed queue
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent queue")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create queue directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open attempt sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database
func (s *BadgerStore) Close() error {
	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to release attempt sequence: %v\n", err)
		}
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close queue: %w", err)
	}
	return nil
}

func queueKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", queuePrefix, seq))
}

func indexKey(id string) []byte {
	return []byte(indexPrefix + id)
}

// Enqueue persists an attempt. Enqueueing an id that is already stored is a no-op.
func (s *BadgerStore) Enqueue(ctx context.Context, a models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(indexKey(a.ID)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		next, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		// badger sequences start at 0; keep seq 1-based like the sqlite backend
		next++

		a.Synced = false
		rec := badgerRecord{QueuedAttempt: models.QueuedAttempt{Attempt: a, Seq: int64(next)}}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal attempt: %w", err)
		}

		key := queueKey(next)
		if err := txn.Set(key, raw); err != nil {
			return err
		}
		return txn.Set(indexKey(a.ID), key)
	})
	return apperrors.Storage("enqueue", err)
}

// scan visits every queued record in insertion order
func (s *BadgerStore) scan(fn func(rec badgerRecord) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(queuePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec badgerRecord
			err := it.Item().Value(func(val []byte) error {
				return models.DecodeJSON(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) list(userID string, match func(models.QueuedAttempt) bool) ([]models.QueuedAttempt, error) {
	var out []models.QueuedAttempt
	err := s.scan(func(rec badgerRecord) error {
		if userID != "" && rec.UserID != userID {
			return nil
		}
		if match(rec.QueuedAttempt) {
			out = append(out, rec.QueuedAttempt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// keys are in insertion order; stable sort keeps it for equal timestamps
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListUnsynced returns unsynced, non dead-lettered attempts in creation order
func (s *BadgerStore) ListUnsynced(ctx context.Context, userID string) ([]models.Attempt, error) {
	queued, err := s.list(userID, func(q models.QueuedAttempt) bool {
		return !q.Synced && !q.DeadLettered
	})
	if err != nil {
		return nil, apperrors.Storage("list unsynced", err)
	}

	attempts := make([]models.Attempt, 0, len(queued))
	for _, q := range queued {
		attempts = append(attempts, q.Attempt)
	}
	return attempts, nil
}

// ListDeadLetters returns attempts withdrawn from automatic sync
func (s *BadgerStore) ListDeadLetters(ctx context.Context, userID string) ([]models.QueuedAttempt, error) {
	queued, err := s.list(userID, func(q models.QueuedAttempt) bool {
		return !q.Synced && q.DeadLettered
	})
	if err != nil {
		return nil, apperrors.Storage("list dead letters", err)
	}
	return queued, nil
}

// update applies fn to each known, unsynced record in one transaction
func (s *BadgerStore) update(ids []string, fn func(rec *badgerRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(indexKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			key, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			item, err = txn.Get(key)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			var rec badgerRecord
			if err := item.Value(func(val []byte) error { return models.DecodeJSON(val, &rec) }); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			if rec.Synced {
				continue
			}

			fn(&rec)

			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal attempt: %w", err)
			}
			if err := txn.Set(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkSynced flags attempts as acknowledged. Synced and unknown ids are ignored.
func (s *BadgerStore) MarkSynced(ctx context.Context, ids []string) error {
	now := time.Now().UTC()
	err := s.update(ids, func(rec *badgerRecord) {
		rec.Synced = true
		rec.SyncedAt = &now
	})
	return apperrors.Storage("mark synced", err)
}

// RecordFailure stores the last upload error and returns the retry count
func (s *BadgerStore) RecordFailure(ctx context.Context, id string, cause error, countRetry bool) (int, error) {
	retries := 0
	err := s.update([]string{id}, func(rec *badgerRecord) {
		if cause != nil {
			rec.LastError = cause.Error()
		}
		if countRetry {
			rec.RetryCount++
		}
		retries = rec.RetryCount
	})
	if err != nil {
		return 0, apperrors.Storage("record failure", err)
	}
	return retries, nil
}

// DeadLetter withdraws attempts from automatic sync
func (s *BadgerStore) DeadLetter(ctx context.Context, ids []string) error {
	err := s.update(ids, func(rec *badgerRecord) {
		rec.DeadLettered = true
	})
	return apperrors.Storage("dead letter", err)
}

// Requeue returns dead-lettered attempts to the pending queue
func (s *BadgerStore) Requeue(ctx context.Context, ids []string) error {
	err := s.update(ids, func(rec *badgerRecord) {
		rec.DeadLettered = false
		rec.RetryCount = 0
	})
	return apperrors.Storage("requeue", err)
}

// PendingUsers returns the users that still have attempts waiting for sync
func (s *BadgerStore) PendingUsers(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	err := s.scan(func(rec badgerRecord) error {
		if !rec.Synced && !rec.DeadLettered {
			seen[rec.UserID] = true
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("pending users", err)
	}

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// Stats counts queued attempts by state
func (s *BadgerStore) Stats(ctx context.Context, userID string) (models.QueueStats, error) {
	var stats models.QueueStats
	err := s.scan(func(rec badgerRecord) error {
		if userID != "" && rec.UserID != userID {
			return nil
		}
		switch {
		case rec.Synced:
			stats.Synced++
		case rec.DeadLettered:
			stats.DeadLettered++
		default:
			stats.Pending++
		}
		return nil
	})
	if err != nil {
		return stats, apperrors.Storage("stats", err)
	}
	return stats, nil
}

// GetStreak returns the cached streak for a user, or nil if none is cached
func (s *BadgerStore) GetStreak(ctx context.Context, userID string) (*models.CachedStreak, error) {
	var cached *models.CachedStreak
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profilePrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cached = &models.CachedStreak{}
			return models.DecodeJSON(val, cached)
		})
	})
	if err != nil {
		return nil, apperrors.Storage("get streak", err)
	}
	return cached, nil
}

// SaveStreak replaces the cached streak for cached.Committed.UserID
func (s *BadgerStore) SaveStreak(ctx context.Context, cached models.CachedStreak) error {
	raw, err := json.Marshal(cached)
	if err != nil {
		return apperrors.Storage("save streak", fmt.Errorf("marshal streak: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profilePrefix+cached.Committed.UserID), raw)
	})
	return apperrors.Storage("save streak", err)
}
