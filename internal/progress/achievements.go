package progress

import "github.com/example/learnsync/pkg/models"

// achievement is a badge unlocked by a predicate over the snapshot
type achievement struct {
	key         string
	title       string
	description string
	unlocked    func(s models.ProgressSnapshot) bool
}

var achievements = []achievement{
	{
		key:         "first_steps",
		title:       "First Steps",
		description: "Record your first attempt",
		unlocked:    func(s models.ProgressSnapshot) bool { return s.TotalAttempts >= 1 },
	},
	{
		key:         "first_lesson",
		title:       "Lesson Learned",
		description: "Complete a lesson",
		unlocked:    func(s models.ProgressSnapshot) bool { return s.LessonsCompleted >= 1 },
	},
	{
		key:         "week_streak",
		title:       "On Fire",
		description: "Practice 7 days in a row",
		unlocked:    func(s models.ProgressSnapshot) bool { return s.StreakCount >= 7 },
	},
	{
		key:         "month_streak",
		title:       "Unstoppable",
		description: "Practice 30 days in a row",
		unlocked:    func(s models.ProgressSnapshot) bool { return s.StreakCount >= 30 },
	},
	{
		key:         "words_100",
		title:       "Wordsmith",
		description: "Learn 100 words",
		unlocked:    func(s models.ProgressSnapshot) bool { return s.WordsLearned >= 100 },
	},
	{
		key:         "sharpshooter",
		title:       "Sharpshooter",
		description: "Keep 90% accuracy over at least 50 attempts",
		unlocked: func(s models.ProgressSnapshot) bool {
			return s.TotalAttempts >= 50 && s.Accuracy >= 0.9
		},
	},
	{
		key:         "full_week",
		title:       "Perfect Week",
		description: "Practice on each of the last 7 days",
		unlocked: func(s models.ProgressSnapshot) bool {
			if len(s.WeeklyActivity) == 0 {
				return false
			}
			for _, d := range s.WeeklyActivity {
				if !d.Active {
					return false
				}
			}
			return true
		},
	},
	{
		key:         "course_complete",
		title:       "Graduate",
		description: "Complete every published lesson",
		unlocked: func(s models.ProgressSnapshot) bool {
			return s.TotalLessons > 0 && s.LessonsCompleted >= s.TotalLessons
		},
	},
}

// evaluate returns every achievement with its state for s
func evaluate(s models.ProgressSnapshot) []models.Achievement {
	out := make([]models.Achievement, 0, len(achievements))
	for _, a := range achievements {
		out = append(out, models.Achievement{
			Key:         a.key,
			Title:       a.title,
			Description: a.description,
			Unlocked:    a.unlocked(s),
		})
	}
	return out
}
