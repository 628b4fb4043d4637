package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCompleteLessonCommand(opts *RootOptions) *cobra.Command {
	var userID, lessonID string

	cmd := &cobra.Command{
		Use:   "complete-lesson",
		Short: "Store lesson progress after a practice session",
		Long: `Rebuild the learner's progress in a lesson from every attempt made in it,
including queued ones, and store it remotely. Requires connectivity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				p, err := e.Tracker.CompleteLesson(ctx, userID, lessonID)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, p, func() string {
					status := styles.Muted.Render("in progress")
					if p.IsCompleted {
						status = styles.Success.Render("completed")
					}
					return fields(
						"Lesson", p.LessonID,
						"Status", status,
						"Accuracy", fmt.Sprintf("%.0f%%", p.AccuracyRate),
						"Completed assets", strings.Join(p.CompletedAssetIDs, ", "),
					)
				})
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "learner id (required)")
	cmd.Flags().StringVar(&lessonID, "lesson", "", "lesson id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("lesson")
	return cmd
}
