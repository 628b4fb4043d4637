package cli

import (
	"context"
	"fmt"

	"github.com/example/learnsync/internal/streak"
	"github.com/spf13/cobra"
)

func newStreakCommand(opts *RootOptions) *cobra.Command {
	var (
		userID string
		update bool
	)

	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Show or update a learner's streak",
		Long: `Show the learner's streak. With --update, today is counted as an active day
first. A value the remote store could not accept stays on the device and is
written on the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				current, err := e.Tracker.Login(ctx, userID)
				if err != nil {
					return err
				}
				res := streak.Result{Streak: current}
				if update {
					if res, err = e.Tracker.UpdateStreak(ctx, userID); err != nil {
						return err
					}
				}
				if err := e.Tracker.Logout(ctx, userID); err != nil {
					return err
				}

				return render(cmd.OutOrStdout(), opts.Format, res, func() string {
					count := styles.Title.Render(fmt.Sprintf("%d", res.Streak.StreakCount))
					last := res.Streak.LastActiveDate
					if last == "" {
						last = styles.Muted.Render("never")
					}
					out := fields("Streak", count, "Last active", last)
					if res.Pending {
						out += "\n" + styles.Warning.Render("not yet stored remotely")
					}
					return out
				})
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "learner id (required)")
	cmd.Flags().BoolVar(&update, "update", false, "count today as an active day")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
