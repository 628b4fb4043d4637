package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/pkg/models"
	"github.com/jmoiron/sqlx"
)

// AttemptQueueRepository is the SQLite-backed durable attempt queue
type AttemptQueueRepository struct {
	db *sqlx.DB
}

// NewAttemptQueueRepository creates a new repository instance
func NewAttemptQueueRepository(db *sqlx.DB) *AttemptQueueRepository {
	return &AttemptQueueRepository{db: db}
}

const attemptColumns = `
	seq, id, user_id, asset_id, lesson_id, mode, score, is_correct, metadata,
	created_at, synced, synced_at, retry_count, last_error, dead_lettered`

// attemptRow mirrors an attempt_queue row
type attemptRow struct {
	Seq          int64          `db:"seq"`
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	AssetID      string         `db:"asset_id"`
	LessonID     sql.NullString `db:"lesson_id"`
	Mode         string         `db:"mode"`
	Score        sql.NullInt64  `db:"score"`
	IsCorrect    sql.NullBool   `db:"is_correct"`
	Metadata     sql.NullString `db:"metadata"`
	CreatedAt    int64          `db:"created_at"`
	Synced       bool           `db:"synced"`
	SyncedAt     sql.NullInt64  `db:"synced_at"`
	RetryCount   int            `db:"retry_count"`
	LastError    sql.NullString `db:"last_error"`
	DeadLettered bool           `db:"dead_lettered"`
}

func (r attemptRow) toQueued() (models.QueuedAttempt, error) {
	q := models.QueuedAttempt{
		Attempt: models.Attempt{
			ID:        r.ID,
			UserID:    r.UserID,
			AssetID:   r.AssetID,
			LessonID:  r.LessonID.String,
			Mode:      models.Mode(r.Mode),
			CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
			Synced:    r.Synced,
		},
		Seq:          r.Seq,
		RetryCount:   r.RetryCount,
		LastError:    r.LastError.String,
		DeadLettered: r.DeadLettered,
	}
	if r.Score.Valid {
		score := int(r.Score.Int64)
		q.Score = &score
	}
	if r.IsCorrect.Valid {
		correct := r.IsCorrect.Bool
		q.IsCorrect = &correct
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := models.DecodeJSON([]byte(r.Metadata.String), &q.Metadata); err != nil {
			return q, fmt.Errorf("failed to parse metadata of attempt %s: %w", r.ID, err)
		}
	}
	if r.SyncedAt.Valid {
		syncedAt := time.Unix(0, r.SyncedAt.Int64).UTC()
		q.SyncedAt = &syncedAt
	}
	return q, nil
}

// Enqueue persists an attempt. Enqueueing an id that is already stored is a no-op.
func (r *AttemptQueueRepository) Enqueue(ctx context.Context, a models.Attempt) error {
	var metadata sql.NullString
	if len(a.Metadata) > 0 {
		raw, err := json.Marshal(a.Metadata)
		if err != nil {
			return apperrors.Storage("enqueue", fmt.Errorf("failed to marshal metadata: %w", err))
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	var lessonID sql.NullString
	if a.LessonID != "" {
		lessonID = sql.NullString{String: a.LessonID, Valid: true}
	}

	var score sql.NullInt64
	if a.Score != nil {
		score = sql.NullInt64{Int64: int64(*a.Score), Valid: true}
	}

	var isCorrect sql.NullBool
	if a.IsCorrect != nil {
		isCorrect = sql.NullBool{Bool: *a.IsCorrect, Valid: true}
	}

	query := `
		INSERT INTO attempt_queue (
			id, user_id, asset_id, lesson_id, mode, score, is_correct, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.AssetID,
		lessonID,
		string(a.Mode),
		score,
		isCorrect,
		metadata,
		a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return apperrors.Storage("enqueue", fmt.Errorf("failed to insert attempt %s: %w", a.ID, err))
	}
	return nil
}

// ListUnsynced returns unsynced, non dead-lettered attempts in creation order.
// An empty userID lists attempts of every user.
func (r *AttemptQueueRepository) ListUnsynced(ctx context.Context, userID string) ([]models.Attempt, error) {
	queued, err := r.list(ctx, "synced = 0 AND dead_lettered = 0", userID)
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
func (r *AttemptQueueRepository) ListDeadLetters(ctx context.Context, userID string) ([]models.QueuedAttempt, error) {
	queued, err := r.list(ctx, "synced = 0 AND dead_lettered = 1", userID)
	if err != nil {
		return nil, apperrors.Storage("list dead letters", err)
	}
	return queued, nil
}

func (r *AttemptQueueRepository) list(ctx context.Context, where, userID string) ([]models.QueuedAttempt, error) {
	query := "SELECT" + attemptColumns + " FROM attempt_queue WHERE " + where
	var args []any
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at ASC, seq ASC"

	var rows []attemptRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}

	queued := make([]models.QueuedAttempt, 0, len(rows))
	for _, row := range rows {
		q, err := row.toQueued()
		if err != nil {
			return nil, err
		}
		queued = append(queued, q)
	}
	return queued, nil
}

// Get returns a single queued attempt, or nil if the id is unknown
func (r *AttemptQueueRepository) Get(ctx context.Context, id string) (*models.QueuedAttempt, error) {
	var row attemptRow
	err := r.db.GetContext(ctx, &row, "SELECT"+attemptColumns+" FROM attempt_queue WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("get", fmt.Errorf("failed to get attempt %s: %w", id, err))
	}
	q, err := row.toQueued()
	if err != nil {
		return nil, apperrors.Storage("get", err)
	}
	return &q, nil
}

// MarkSynced flags the given attempts as acknowledged by the remote store.
// Already synced and unknown ids are ignored.
func (r *AttemptQueueRepository) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		"UPDATE attempt_queue SET synced = 1, synced_at = ? WHERE synced = 0 AND id IN (?)",
		time.Now().UnixNano(), ids,
	)
	if err != nil {
		return apperrors.Storage("mark synced", fmt.Errorf("failed to build query: %w", err))
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return apperrors.Storage("mark synced", fmt.Errorf("failed to mark attempts synced: %w", err))
	}
	return nil
}

// RecordFailure stores the last upload error for an attempt and, when
// countRetry is set, increments its retry counter. It returns the retry count
// after the update.
func (r *AttemptQueueRepository) RecordFailure(ctx context.Context, id string, cause error, countRetry bool) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	increment := 0
	if countRetry {
		increment = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.Storage("record failure", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE attempt_queue SET retry_count = retry_count + ?, last_error = ? WHERE id = ? AND synced = 0",
		increment, msg, id,
	)
	if err != nil {
		return 0, apperrors.Storage("record failure", fmt.Errorf("failed to update attempt %s: %w", id, err))
	}

	var retries int
	err = tx.GetContext(ctx, &retries, "SELECT retry_count FROM attempt_queue WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Storage("record failure", fmt.Errorf("failed to read retry count: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Storage("record failure", fmt.Errorf("failed to commit: %w", err))
	}
	return retries, nil
}

// DeadLetter withdraws attempts from automatic sync. They stay in the table.
func (r *AttemptQueueRepository) DeadLetter(ctx context.Context, ids []string) error {
	return r.setDeadLettered(ctx, "dead letter", ids, true)
}

// Requeue returns dead-lettered attempts to the pending queue with a fresh retry budget
func (r *AttemptQueueRepository) Requeue(ctx context.Context, ids []string) error {
	return r.setDeadLettered(ctx, "requeue", ids, false)
}

func (r *AttemptQueueRepository) setDeadLettered(ctx context.Context, op string, ids []string, dead bool) error {
	if len(ids) == 0 {
		return nil
	}

	stmt := "UPDATE attempt_queue SET dead_lettered = ? WHERE synced = 0 AND id IN (?)"
	if !dead {
		stmt = "UPDATE attempt_queue SET dead_lettered = ?, retry_count = 0 WHERE synced = 0 AND id IN (?)"
	}

	query, args, err := sqlx.In(stmt, dead, ids)
	if err != nil {
		return apperrors.Storage(op, fmt.Errorf("failed to build query: %w", err))
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return apperrors.Storage(op, fmt.Errorf("failed to update attempts: %w", err))
	}
	return nil
}

// PendingUsers returns the users that still have attempts waiting for sync
func (r *AttemptQueueRepository) PendingUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := r.db.SelectContext(ctx, &users, `
		SELECT DISTINCT user_id FROM attempt_queue
		WHERE synced = 0 AND dead_lettered = 0
		ORDER BY user_id
	`)
	if err != nil {
		return nil, apperrors.Storage("pending users", fmt.Errorf("failed to query users: %w", err))
	}
	return users, nil
}

// Stats counts queue rows by state. An empty userID counts every user.
func (r *AttemptQueueRepository) Stats(ctx context.Context, userID string) (models.QueueStats, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN synced = 0 AND dead_lettered = 0 THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0) AS synced,
			COALESCE(SUM(CASE WHEN synced = 0 AND dead_lettered = 1 THEN 1 ELSE 0 END), 0) AS dead_lettered
		FROM attempt_queue`
	var args []any
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}

	var stats models.QueueStats
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return stats, apperrors.Storage("stats", fmt.Errorf("failed to count attempts: %w", err))
	}
	return stats, nil
}
