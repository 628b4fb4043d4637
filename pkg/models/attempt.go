package models

import "time"

// Mode is the practice mode an attempt was recorded in
type Mode string

const (
	ModeSpeak  Mode = "speak"
	ModeRead   Mode = "read"
	ModeWrite  Mode = "write"
	ModeListen Mode = "listen"
)

// CorrectScoreThreshold is the lowest numeric score that counts as a correct answer
const CorrectScoreThreshold = 70

// Attempt is one recorded learning interaction.
// ID is generated on the device before the attempt is persisted and is reused
// as the remote primary key, so a retried upload overwrites instead of duplicating.
type Attempt struct {
	ID        string         `json:"id" yaml:"id" db:"id" validate:"required,uuid4"`
	UserID    string         `json:"user_id" yaml:"user_id" db:"user_id" validate:"required"`
	AssetID   string         `json:"asset_id" yaml:"asset_id" db:"asset_id" validate:"required"`
	LessonID  string         `json:"lesson_id,omitempty" yaml:"lesson_id,omitempty" db:"lesson_id"`
	Mode      Mode           `json:"mode" yaml:"mode" db:"mode" validate:"required,oneof=speak read write listen"`
	Score     *int           `json:"score,omitempty" yaml:"score,omitempty" db:"score" validate:"omitempty,min=0,max=100"`
	IsCorrect *bool          `json:"is_correct,omitempty" yaml:"is_correct,omitempty" db:"is_correct"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" db:"-"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at" db:"created_at" validate:"required"`
	Synced    bool           `json:"synced" yaml:"synced" db:"synced"`
}

// Correct reports whether the attempt counts as a correct answer.
// Practice modes record different signals: some set an explicit flag, others a
// 0-100 score. Either one is enough.
func (a Attempt) Correct() bool {
	if a.IsCorrect != nil && *a.IsCorrect {
		return true
	}
	return a.Score != nil && *a.Score >= CorrectScoreThreshold
}
