package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/example/learnsync/internal/tracker"
	"github.com/example/learnsync/pkg/models"
	"github.com/spf13/cobra"
)

type recordOptions struct {
	*RootOptions
	UserID   string
	AssetID  string
	LessonID string
	Mode     string
	Score    int
	Correct  bool
}

func newRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &recordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a learning attempt",
		Long: `Record a learning attempt on the device. The attempt is uploaded right away
when the remote store is reachable and queued otherwise.

Example:
  learnsync record --user u1 --asset hello --lesson l1 --mode speak --score 85
  learnsync record --user u1 --asset hello --mode read --correct`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := tracker.AttemptIntent{
				UserID:   opts.UserID,
				AssetID:  opts.AssetID,
				LessonID: opts.LessonID,
				Mode:     models.Mode(opts.Mode),
			}
			if cmd.Flags().Changed("score") {
				intent.Score = &opts.Score
			}
			if cmd.Flags().Changed("correct") {
				intent.IsCorrect = &opts.Correct
			}

			return withEngine(cmd, opts.RootOptions, func(ctx context.Context, e *Engine) error {
				a, err := e.Tracker.RecordAttempt(ctx, intent)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, a, func() string {
					status := styles.Warning.Render("queued")
					if a.Synced {
						status = styles.Success.Render("synced")
					}
					score := "-"
					if a.Score != nil {
						score = strconv.Itoa(*a.Score)
					}
					return fields(
						"Attempt", a.ID,
						"Asset", a.AssetID,
						"Score", score,
						"Correct", fmt.Sprint(a.Correct()),
						"Status", status,
					)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "learner id (required)")
	cmd.Flags().StringVar(&opts.AssetID, "asset", "", "asset id (required)")
	cmd.Flags().StringVar(&opts.LessonID, "lesson", "", "lesson id")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(models.ModeSpeak), "practice mode (speak|read|write|listen)")
	cmd.Flags().IntVar(&opts.Score, "score", 0, "score between 0 and 100")
	cmd.Flags().BoolVar(&opts.Correct, "correct", false, "explicit correctness flag")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("asset")

	return cmd
}
