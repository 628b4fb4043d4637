package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/learnsync/pkg/models"
	"github.com/spf13/cobra"
)

func newProgressCommand(opts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show a learner's progress summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				s, err := e.Tracker.ComputeProgress(ctx, userID)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, s, func() string { return progressText(s) })
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "learner id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func progressText(s models.ProgressSnapshot) string {
	var week strings.Builder
	for _, d := range s.WeeklyActivity {
		if d.Active {
			week.WriteString(styles.Success.Render("■"))
		} else {
			week.WriteString(styles.Muted.Render("□"))
		}
	}

	summary := fields(
		"XP", fmt.Sprint(s.TotalXP),
		"Streak", fmt.Sprintf("%d days", s.StreakCount),
		"Words learned", fmt.Sprint(s.WordsLearned),
		"Lessons", fmt.Sprintf("%d/%d", s.LessonsCompleted, s.TotalLessons),
		"Accuracy", fmt.Sprintf("%.0f%% (%d/%d)", s.Accuracy*100, s.CorrectAttempts, s.TotalAttempts),
		"This week", week.String(),
	)

	var b strings.Builder
	b.WriteString(styles.Box.Render(styles.Title.Render(s.UserID) + "\n" + summary))

	if len(s.Lessons) > 0 {
		b.WriteString("\n")
		for _, l := range s.Lessons {
			mark := styles.Muted.Render(fmt.Sprintf("%3.0f%%", l.CompletionPercent))
			if l.IsCompleted {
				mark = styles.Success.Render("done")
			}
			b.WriteString(fmt.Sprintf("\n%s %s", mark, l.Title))
		}
	}

	var unlocked []string
	for _, a := range s.Achievements {
		if a.Unlocked {
			unlocked = append(unlocked, a.Title)
		}
	}
	if len(unlocked) > 0 {
		b.WriteString("\n\n" + styles.Title.Render("Achievements") + "\n" + strings.Join(unlocked, ", "))
	}
	return b.String()
}
