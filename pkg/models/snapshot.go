package models

// ProgressSnapshot is the derived view of a learner's progress.
// It is recomputed on every read and never stored.
type ProgressSnapshot struct {
	UserID           string          `json:"user_id" yaml:"user_id"`
	TotalXP          int             `json:"total_xp" yaml:"total_xp"`
	WordsLearned     int             `json:"words_learned" yaml:"words_learned"`
	LessonsCompleted int             `json:"lessons_completed" yaml:"lessons_completed"`
	TotalLessons     int             `json:"total_lessons" yaml:"total_lessons"`
	TotalAttempts    int             `json:"total_attempts" yaml:"total_attempts"`
	CorrectAttempts  int             `json:"correct_attempts" yaml:"correct_attempts"`
	Accuracy         float64         `json:"accuracy" yaml:"accuracy"` // 0-1
	StreakCount      int             `json:"streak_count" yaml:"streak_count"`
	WeeklyActivity   []DayActivity   `json:"weekly_activity" yaml:"weekly_activity"`
	Lessons          []LessonSummary `json:"lessons" yaml:"lessons"`
	Achievements     []Achievement   `json:"achievements" yaml:"achievements"`
}

// DayActivity flags whether the learner practiced on a calendar day
type DayActivity struct {
	Date     string `json:"date" yaml:"date"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Active   bool   `json:"active" yaml:"active"`
}

// LessonSummary is the completion state of one published lesson
type LessonSummary struct {
	LessonID          string  `json:"lesson_id" yaml:"lesson_id"`
	Title             string  `json:"title" yaml:"title"`
	CompletionPercent float64 `json:"completion_percent" yaml:"completion_percent"`
	AccuracyRate      float64 `json:"accuracy_rate" yaml:"accuracy_rate"`
	IsCompleted       bool    `json:"is_completed" yaml:"is_completed"`
}

// Achievement is a derived badge
type Achievement struct {
	Key         string `json:"key" yaml:"key"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Unlocked    bool   `json:"unlocked" yaml:"unlocked"`
}
