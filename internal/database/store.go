package database

import (
	"github.com/jmoiron/sqlx"
)

// LocalStore bundles the on-device repositories that share one SQLite file
type LocalStore struct {
	*AttemptQueueRepository
	*ProfileCacheRepository

	db *sqlx.DB
}

// NewLocalStore wraps an open database
func NewLocalStore(db *sqlx.DB) *LocalStore {
	return &LocalStore{
		AttemptQueueRepository: NewAttemptQueueRepository(db),
		ProfileCacheRepository: NewProfileCacheRepository(db),
		db:                     db,
	}
}

// OpenLocalStore opens the database in dataDir
func OpenLocalStore(dataDir string) (*LocalStore, error) {
	db, err := Connect(dataDir)
	if err != nil {
		return nil, err
	}
	return NewLocalStore(db), nil
}

// Close closes the database connection
func (s *LocalStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
