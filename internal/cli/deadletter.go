package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/learnsync/pkg/models"
	"github.com/spf13/cobra"
)

func newDeadLetterCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletter",
		Short: "Inspect attempts withdrawn from automatic sync",
		Long: `Attempts the remote store rejected too many times are dead-lettered: they
stay on the device but are no longer uploaded until requeued.`,
	}
	cmd.AddCommand(newDeadLetterListCommand(opts))
	cmd.AddCommand(newDeadLetterRequeueCommand(opts))
	return cmd
}

func newDeadLetterListCommand(opts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				dead, err := e.Tracker.DeadLetters(ctx, userID)
				if err != nil {
					return err
				}
				if dead == nil {
					dead = []models.QueuedAttempt{}
				}
				return render(cmd.OutOrStdout(), opts.Format, dead, func() string {
					if len(dead) == 0 {
						return styles.Muted.Render("no dead-lettered attempts")
					}
					lines := make([]string, 0, len(dead))
					for _, q := range dead {
						lines = append(lines, fmt.Sprintf("%s %s/%s retries=%d %s",
							q.ID, q.UserID, q.AssetID, q.RetryCount, styles.Error.Render(q.LastError)))
					}
					return strings.Join(lines, "\n")
				})
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "learner id (default: every learner)")
	return cmd
}

func newDeadLetterRequeueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <attempt-id>...",
		Short: "Return dead-lettered attempts to the pending queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				if err := e.Tracker.Requeue(ctx, args); err != nil {
					return err
				}
				res := map[string]any{"requeued": args}
				return render(cmd.OutOrStdout(), opts.Format, res, func() string {
					return styles.Success.Render(fmt.Sprintf("requeued %d attempts", len(args)))
				})
			})
		},
	}
}
