package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/example/learnsync/pkg/models"
	"github.com/jmoiron/sqlx"
)

// ProfileCacheRepository keeps the on-device copy of each learner's streak
type ProfileCacheRepository struct {
	db *sqlx.DB
}

// NewProfileCacheRepository creates a new repository instance
func NewProfileCacheRepository(db *sqlx.DB) *ProfileCacheRepository {
	return &ProfileCacheRepository{db: db}
}

// GetStreak returns the cached streak for a user, or nil if none is cached
func (r *ProfileCacheRepository) GetStreak(ctx context.Context, userID string) (*models.CachedStreak, error) {
	query := `
		SELECT user_id, streak_count, last_active_date, proposed_streak_count, proposed_last_active_date
		FROM profile_cache
		WHERE user_id = ?
	`

	var (
		cached           models.CachedStreak
		proposedCount    sql.NullInt64
		proposedLastDate sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cached.Committed.UserID,
		&cached.Committed.StreakCount,
		&cached.Committed.LastActiveDate,
		&proposedCount,
		&proposedLastDate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("get streak", fmt.Errorf("failed to read profile cache: %w", err))
	}

	if proposedCount.Valid {
		cached.Proposed = &models.ProfileStreak{
			UserID:         userID,
			StreakCount:    int(proposedCount.Int64),
			LastActiveDate: proposedLastDate.String,
		}
	}
	return &cached, nil
}

// SaveStreak replaces the cached streak for cached.Committed.UserID
func (r *ProfileCacheRepository) SaveStreak(ctx context.Context, cached models.CachedStreak) error {
	var (
		proposedCount    sql.NullInt64
		proposedLastDate sql.NullString
	)
	if cached.Proposed != nil {
		proposedCount = sql.NullInt64{Int64: int64(cached.Proposed.StreakCount), Valid: true}
		proposedLastDate = sql.NullString{String: cached.Proposed.LastActiveDate, Valid: true}
	}

	query := `
		INSERT INTO profile_cache (
			user_id, streak_count, last_active_date, proposed_streak_count, proposed_last_active_date, updated_at
		) VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			streak_count = excluded.streak_count,
			last_active_date = excluded.last_active_date,
			proposed_streak_count = excluded.proposed_streak_count,
			proposed_last_active_date = excluded.proposed_last_active_date,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query,
		cached.Committed.UserID,
		cached.Committed.StreakCount,
		cached.Committed.LastActiveDate,
		proposedCount,
		proposedLastDate,
	)
	if err != nil {
		return apperrors.Storage("save streak", fmt.Errorf("failed to write profile cache: %w", err))
	}
	return nil
}
