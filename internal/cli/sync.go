package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/learnsync/internal/syncer"
	"github.com/example/learnsync/pkg/models"
	"github.com/spf13/cobra"
)

type syncResult struct {
	Online  bool              `json:"online" yaml:"online"`
	Reports []syncer.Report   `json:"reports" yaml:"reports"`
	Queue   models.QueueStats `json:"queue" yaml:"queue"`
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload queued attempts",
		Long: `Upload queued attempts of one learner, or of every learner with pending
attempts when --user is omitted. Nothing is sent while the remote store is
unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				res := syncResult{Online: e.Gate.Online()}
				if userID != "" {
					report, err := e.Tracker.SyncOfflineAttempts(ctx, userID)
					if err != nil {
						return err
					}
					res.Reports = []syncer.Report{report}
				} else {
					reports, err := e.Tracker.Syncer().SyncPending(ctx)
					if err != nil {
						return err
					}
					res.Reports = reports
				}

				stats, err := e.Tracker.QueueStats(ctx, userID)
				if err != nil {
					return err
				}
				res.Queue = stats

				return render(cmd.OutOrStdout(), opts.Format, res, func() string { return syncText(res) })
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "learner id (default: every learner with pending attempts)")
	return cmd
}

func syncText(res syncResult) string {
	var b strings.Builder
	if !res.Online {
		b.WriteString(styles.Warning.Render("offline: nothing was sent"))
		b.WriteByte('\n')
	}
	for _, r := range res.Reports {
		if r.Skipped {
			continue
		}
		line := fmt.Sprintf("%s: %d synced, %d failed, %d dead-lettered, %d pending",
			r.UserID, len(r.Synced), len(r.Failed), len(r.DeadLettered), r.Pending)
		if r.Interrupted {
			line += styles.Warning.Render(" (interrupted)")
		}
		b.WriteString(line)
		b.WriteByte('\n')
		for _, f := range r.Failed {
			b.WriteString(styles.Muted.Render(fmt.Sprintf("  %s [%s] %s", f.ID, f.Kind, f.Error)))
			b.WriteByte('\n')
		}
	}
	b.WriteString(fields(
		"Pending", fmt.Sprint(res.Queue.Pending),
		"Synced", fmt.Sprint(res.Queue.Synced),
		"Dead-lettered", fmt.Sprint(res.Queue.DeadLettered),
	))
	return b.String()
}
