// Package remote talks to the authoritative store that holds attempts,
// profiles, lesson progress and the lesson catalog.
//
// Every write is an upsert keyed by a client-chosen id (or by user and
// lesson for progress), so repeating a write after a lost acknowledgement
// never creates a duplicate.
package remote

import (
	"context"

	"github.com/example/learnsync/pkg/models"
)

// BatchResult is the outcome of a batched attempt upsert.
// Every submitted id ends up in exactly one of Acked or Failed, unless the
// call itself returned an error, in which case the ids in neither were not
// applied.
type BatchResult struct {
	Acked  []string
	Failed map[string]error
}

// AttemptWriter uploads attempts
type AttemptWriter interface {
	UpsertAttempts(ctx context.Context, attempts []models.Attempt) (BatchResult, error)
}

// ProfileStore reads and partially updates learner profiles
type ProfileStore interface {
	GetProfileStreak(ctx context.Context, userID string) (models.ProfileStreak, error)
	UpdateProfileStreak(ctx context.Context, streak models.ProfileStreak) error
}

// ProgressReader is the read side used by the progress aggregator
type ProgressReader interface {
	ListAttempts(ctx context.Context, userID string) ([]models.Attempt, error)
	ListLessonProgress(ctx context.Context, userID string) ([]models.LessonProgress, error)
	ListPublishedLessons(ctx context.Context) ([]models.Lesson, error)
	ListApprovedAssets(ctx context.Context) ([]models.Asset, error)
}

// ProgressWriter records lesson completion
type ProgressWriter interface {
	UpsertLessonProgress(ctx context.Context, progress models.LessonProgress) error
}

// CatalogWriter stores lessons and assets imported from a spreadsheet
type CatalogWriter interface {
	UpsertLesson(ctx context.Context, lesson models.Lesson) error
	UpsertAsset(ctx context.Context, asset models.Asset) error
}

// ReminderSource lists learners whose streak is at risk
type ReminderSource interface {
	// ListReminderTargets returns learners last active on lastActiveDate that
	// have a linked Telegram chat.
	ListReminderTargets(ctx context.Context, lastActiveDate string) ([]models.ReminderTarget, error)
	LinkTelegramChat(ctx context.Context, userID string, chatID int64) error
}

// Store is the full remote surface
type Store interface {
	AttemptWriter
	ProfileStore
	ProgressReader
	ProgressWriter
	CatalogWriter
	ReminderSource

	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Close() error
}
