package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/pkg/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore is the remote store backed by PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to the database at dsn.
// The connection is opened lazily so an unreachable server does not prevent
// the engine from starting; the first query reports it instead.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewPostgresStore(db), nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks that the server answers
func (s *PostgresStore) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		lesson_id TEXT NOT NULL REFERENCES lessons(id),
		text TEXT NOT NULL,
		translation TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending'
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		streak_count INTEGER NOT NULL DEFAULT 0 CHECK (streak_count >= 0),
		last_active_date DATE,
		telegram_chat_id BIGINT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS attempts (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		lesson_id TEXT,
		mode TEXT NOT NULL CHECK (mode IN ('speak', 'read', 'write', 'listen')),
		score INTEGER CHECK (score BETWEEN 0 AND 100),
		is_correct BOOLEAN,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS lesson_progress (
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		completed_asset_ids TEXT[] NOT NULL DEFAULT '{}',
		is_completed BOOLEAN NOT NULL DEFAULT false,
		accuracy_rate DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (accuracy_rate BETWEEN 0 AND 100),
		last_practiced_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, lesson_id)
	)`,
}

// EnsureSchema creates the remote tables if they don't exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("ensure schema", err)
		}
	}
	return nil
}

// attemptRecord is the wire form of an attempt
type attemptRecord struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	AssetID   string         `db:"asset_id"`
	LessonID  sql.NullString `db:"lesson_id"`
	Mode      string         `db:"mode"`
	Score     sql.NullInt64  `db:"score"`
	IsCorrect sql.NullBool   `db:"is_correct"`
	Metadata  string         `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

func toRecord(a models.Attempt) (attemptRecord, error) {
	rec := attemptRecord{
		ID:        a.ID,
		UserID:    a.UserID,
		AssetID:   a.AssetID,
		LessonID:  sql.NullString{String: a.LessonID, Valid: a.LessonID != ""},
		Mode:      string(a.Mode),
		CreatedAt: a.CreatedAt.UTC(),
		Metadata:  "{}",
	}
	if a.Score != nil {
		rec.Score = sql.NullInt64{Int64: int64(*a.Score), Valid: true}
	}
	if a.IsCorrect != nil {
		rec.IsCorrect = sql.NullBool{Bool: *a.IsCorrect, Valid: true}
	}
	if len(a.Metadata) > 0 {
		raw, err := json.Marshal(a.Metadata)
		if err != nil {
			return rec, fmt.Errorf("failed to marshal metadata of attempt %s: %w", a.ID, err)
		}
		rec.Metadata = string(raw)
	}
	return rec, nil
}

func (r attemptRecord) toAttempt() models.Attempt {
	a := models.Attempt{
		ID:        r.ID,
		UserID:    r.UserID,
		AssetID:   r.AssetID,
		LessonID:  r.LessonID.String,
		Mode:      models.Mode(r.Mode),
		CreatedAt: r.CreatedAt.UTC(),
		Synced:    true,
	}
	if r.Score.Valid {
		score := int(r.Score.Int64)
		a.Score = &score
	}
	if r.IsCorrect.Valid {
		correct := r.IsCorrect.Bool
		a.IsCorrect = &correct
	}
	if len(r.Metadata) > 0 {
		// unreadable metadata is dropped rather than failing the whole listing
		_ = models.DecodeJSON([]byte(r.Metadata), &a.Metadata)
	}
	return a
}

const upsertAttempt = `
	INSERT INTO attempts (id, user_id, asset_id, lesson_id, mode, score, is_correct, metadata, created_at)
	VALUES (:id, :user_id, :asset_id, :lesson_id, :mode, :score, :is_correct, :metadata, :created_at)
	ON CONFLICT (id) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		asset_id = EXCLUDED.asset_id,
		lesson_id = EXCLUDED.lesson_id,
		mode = EXCLUDED.mode,
		score = EXCLUDED.score,
		is_correct = EXCLUDED.is_correct,
		metadata = EXCLUDED.metadata,
		created_at = EXCLUDED.created_at`

// UpsertAttempts writes attempts keyed by id in one statement. If the batch
// is rejected it falls back to one statement per attempt so a single invalid
// record does not hold back the rest.
func (s *PostgresStore) UpsertAttempts(ctx context.Context, attempts []models.Attempt) (BatchResult, error) {
	result := BatchResult{Failed: make(map[string]error)}
	if len(attempts) == 0 {
		return result, nil
	}

	records := make([]attemptRecord, 0, len(attempts))
	for _, a := range attempts {
		rec, err := toRecord(a)
		if err != nil {
			result.Failed[a.ID] = fmt.Errorf("%w: %w", apperrors.ErrRemoteValidation, err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return result, nil
	}

	_, err := s.db.NamedExecContext(ctx, upsertAttempt, records)
	if err == nil {
		for _, rec := range records {
			result.Acked = append(result.Acked, rec.ID)
		}
		return result, nil
	}

	err = classify("upsert attempts", err)
	if isRemoteUnavailable(err) {
		return result, err
	}

	for _, rec := range records {
		_, err := s.db.NamedExecContext(ctx, upsertAttempt, rec)
		if err == nil {
			result.Acked = append(result.Acked, rec.ID)
			continue
		}
		err = classify("upsert attempt "+rec.ID, err)
		if isRemoteUnavailable(err) {
			return result, err
		}
		result.Failed[rec.ID] = err
	}
	return result, nil
}

// ListAttempts returns every acknowledged attempt of a user in creation order
func (s *PostgresStore) ListAttempts(ctx context.Context, userID string) ([]models.Attempt, error) {
	var records []attemptRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, user_id, asset_id, lesson_id, mode, score, is_correct, metadata, created_at
		FROM attempts
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, classify("list attempts", err)
	}

	attempts := make([]models.Attempt, 0, len(records))
	for _, rec := range records {
		attempts = append(attempts, rec.toAttempt())
	}
	return attempts, nil
}

// GetProfileStreak returns the streak fields of a profile. A learner without
// a profile row has a zero streak.
func (s *PostgresStore) GetProfileStreak(ctx context.Context, userID string) (models.ProfileStreak, error) {
	streak := models.ProfileStreak{UserID: userID}
	err := s.db.GetContext(ctx, &streak, `
		SELECT user_id, streak_count, COALESCE(to_char(last_active_date, 'YYYY-MM-DD'), '') AS last_active_date
		FROM profiles
		WHERE user_id = $1
	`, userID)
	if err == sql.ErrNoRows {
		return models.ProfileStreak{UserID: userID}, nil
	}
	if err != nil {
		return streak, classify("get profile", err)
	}
	return streak, nil
}

// UpdateProfileStreak writes only the streak fields of a profile
func (s *PostgresStore) UpdateProfileStreak(ctx context.Context, streak models.ProfileStreak) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, streak_count, last_active_date, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::date, now())
		ON CONFLICT (user_id) DO UPDATE SET
			streak_count = EXCLUDED.streak_count,
			last_active_date = EXCLUDED.last_active_date,
			updated_at = now()
	`, streak.UserID, streak.StreakCount, streak.LastActiveDate)
	return classify("update profile streak", err)
}

// LinkTelegramChat stores the chat that receives streak reminders
func (s *PostgresStore) LinkTelegramChat(ctx context.Context, userID string, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, telegram_chat_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			updated_at = now()
	`, userID, chatID)
	return classify("link telegram chat", err)
}

// ListReminderTargets returns learners last active on lastActiveDate with a linked chat
func (s *PostgresStore) ListReminderTargets(ctx context.Context, lastActiveDate string) ([]models.ReminderTarget, error) {
	var targets []models.ReminderTarget
	err := s.db.SelectContext(ctx, &targets, `
		SELECT user_id, telegram_chat_id, streak_count, to_char(last_active_date, 'YYYY-MM-DD') AS last_active_date
		FROM profiles
		WHERE last_active_date = $1::date
		  AND telegram_chat_id IS NOT NULL
		  AND streak_count > 0
		ORDER BY user_id
	`, lastActiveDate)
	if err != nil {
		return nil, classify("list reminder targets", err)
	}
	return targets, nil
}

// progressRecord is the stored form of lesson progress
type progressRecord struct {
	UserID            string         `db:"user_id"`
	LessonID          string         `db:"lesson_id"`
	CompletedAssetIDs pq.StringArray `db:"completed_asset_ids"`
	IsCompleted       bool           `db:"is_completed"`
	AccuracyRate      float64        `db:"accuracy_rate"`
	LastPracticedAt   time.Time      `db:"last_practiced_at"`
}

// UpsertLessonProgress writes the single row for (user, lesson)
func (s *PostgresStore) UpsertLessonProgress(ctx context.Context, p models.LessonProgress) error {
	completed := p.CompletedAssetIDs
	if completed == nil {
		completed = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lesson_progress (user_id, lesson_id, completed_asset_ids, is_completed, accuracy_rate, last_practiced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			completed_asset_ids = EXCLUDED.completed_asset_ids,
			is_completed = EXCLUDED.is_completed,
			accuracy_rate = EXCLUDED.accuracy_rate,
			last_practiced_at = EXCLUDED.last_practiced_at
	`, p.UserID, p.LessonID, pq.Array(completed), p.IsCompleted, p.AccuracyRate, p.LastPracticedAt.UTC())
	return classify("upsert lesson progress", err)
}

// ListLessonProgress returns every lesson progress row of a user
func (s *PostgresStore) ListLessonProgress(ctx context.Context, userID string) ([]models.LessonProgress, error) {
	var records []progressRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT user_id, lesson_id, completed_asset_ids, is_completed, accuracy_rate, last_practiced_at
		FROM lesson_progress
		WHERE user_id = $1
		ORDER BY lesson_id
	`, userID)
	if err != nil {
		return nil, classify("list lesson progress", err)
	}

	progress := make([]models.LessonProgress, 0, len(records))
	for _, rec := range records {
		progress = append(progress, models.LessonProgress{
			UserID:            rec.UserID,
			LessonID:          rec.LessonID,
			CompletedAssetIDs: []string(rec.CompletedAssetIDs),
			IsCompleted:       rec.IsCompleted,
			AccuracyRate:      rec.AccuracyRate,
			LastPracticedAt:   rec.LastPracticedAt.UTC(),
		})
	}
	return progress, nil
}

// ListPublishedLessons returns published lessons in course order
func (s *PostgresStore) ListPublishedLessons(ctx context.Context) ([]models.Lesson, error) {
	var lessons []models.Lesson
	err := s.db.SelectContext(ctx, &lessons, `
		SELECT id, title, status, position
		FROM lessons
		WHERE status = $1
		ORDER BY position, id
	`, models.LessonStatusPublished)
	if err != nil {
		return nil, classify("list lessons", err)
	}
	return lessons, nil
}

// ListApprovedAssets returns approved assets of every lesson
func (s *PostgresStore) ListApprovedAssets(ctx context.Context) ([]models.Asset, error) {
	var assets []models.Asset
	err := s.db.SelectContext(ctx, &assets, `
		SELECT id, lesson_id, text, translation, status
		FROM assets
		WHERE status = $1
		ORDER BY lesson_id, id
	`, models.AssetStatusApproved)
	if err != nil {
		return nil, classify("list assets", err)
	}
	return assets, nil
}

// UpsertLesson inserts or replaces a lesson
func (s *PostgresStore) UpsertLesson(ctx context.Context, l models.Lesson) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO lessons (id, title, status, position)
		VALUES (:id, :title, :status, :position)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			position = EXCLUDED.position
	`, l)
	return classify("upsert lesson", err)
}

// UpsertAsset inserts or replaces an asset
func (s *PostgresStore) UpsertAsset(ctx context.Context, a models.Asset) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO assets (id, lesson_id, text, translation, status)
		VALUES (:id, :lesson_id, :text, :translation, :status)
		ON CONFLICT (id) DO UPDATE SET
			lesson_id = EXCLUDED.lesson_id,
			text = EXCLUDED.text,
			translation = EXCLUDED.translation,
			status = EXCLUDED.status
	`, a)
	return classify("upsert asset", err)
}

var _ Store = (*PostgresStore)(nil)
