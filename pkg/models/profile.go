package models

// ProfileStreak is the streak portion of a learner profile.
// LastActiveDate is a calendar date in "2006-01-02" form, empty when the
// learner has never practiced.
type ProfileStreak struct {
	UserID         string `json:"user_id" db:"user_id" yaml:"user_id"`
	StreakCount    int    `json:"streak_count" db:"streak_count" yaml:"streak_count"`
	LastActiveDate string `json:"last_active_date" db:"last_active_date" yaml:"last_active_date"`
}

// ReminderTarget is a profile that can receive a streak reminder
type ReminderTarget struct {
	UserID         string `db:"user_id"`
	ChatID         int64  `db:"telegram_chat_id"`
	StreakCount    int    `db:"streak_count"`
	LastActiveDate string `db:"last_active_date"`
}

// CachedStreak is the on-device copy of a learner's streak.
// Committed is the last value the remote store acknowledged; Proposed is a
// locally applied value still waiting for a successful remote write.
type CachedStreak struct {
	Committed ProfileStreak  `json:"committed"`
	Proposed  *ProfileStreak `json:"proposed,omitempty"`
}

// Current returns the value to display: the proposal when one is pending
func (c CachedStreak) Current() ProfileStreak {
	if c.Proposed != nil {
		return *c.Proposed
	}
	return c.Committed
}
