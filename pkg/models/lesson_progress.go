package models

import "time"

// LessonProgress tracks a learner's progress through one lesson.
// There is exactly one row per (UserID, LessonID).
type LessonProgress struct {
	UserID            string    `json:"user_id" yaml:"user_id" db:"user_id"`
	LessonID          string    `json:"lesson_id" yaml:"lesson_id" db:"lesson_id"`
	CompletedAssetIDs []string  `json:"completed_asset_ids" yaml:"completed_asset_ids" db:"completed_asset_ids"`
	IsCompleted       bool      `json:"is_completed" yaml:"is_completed" db:"is_completed"`
	AccuracyRate      float64   `json:"accuracy_rate" yaml:"accuracy_rate" db:"accuracy_rate"` // 0-100
	LastPracticedAt   time.Time `json:"last_practiced_at" yaml:"last_practiced_at" db:"last_practiced_at"`
}
