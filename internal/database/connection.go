package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultFileName is the name of the on-device database inside the data directory
const DefaultFileName = "learnsync.db"

const dsnPragmas = "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_foreign_keys=on"

// Connect opens (or creates) the on-device database in dataDir and
// initializes its schema
func Connect(dataDir string) (*sqlx.DB, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return Open(filepath.Join(dataDir, DefaultFileName))
}

// Open opens the database file at path and initializes its schema
func Open(path string) (*sqlx.DB, error) {
	// Pragmas go in the DSN so that the driver applies them to every
	// connection, including ones the pool opens later
	db, err := sqlx.Connect("sqlite3", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	// Attempts are never deleted: synced rows stay for audit and replay
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS attempt_queue (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			lesson_id TEXT,
			mode TEXT NOT NULL,
			score INTEGER,
			is_correct BOOLEAN,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			synced BOOLEAN NOT NULL DEFAULT 0,
			synced_at INTEGER,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			dead_lettered BOOLEAN NOT NULL DEFAULT 0,
			enqueued_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create attempt_queue table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_attempt_queue_pending
		ON attempt_queue(synced, dead_lettered, user_id, created_at, seq)
	`)
	if err != nil {
		return fmt.Errorf("failed to create attempt_queue index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS profile_cache (
			user_id TEXT PRIMARY KEY,
			streak_count INTEGER NOT NULL DEFAULT 0,
			last_active_date TEXT NOT NULL DEFAULT '',
			proposed_streak_count INTEGER,
			proposed_last_active_date TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create profile_cache table: %w", err)
	}

	return nil
}
