package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/learnsync/internal/catalog"
	"github.com/spf13/cobra"
)

func newImportCommand(opts *RootOptions) *cobra.Command {
	cfg := catalog.DefaultImportConfig()
	var draft bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import lessons and assets from an xlsx or csv file",
		Long: `Import lessons and their assets into the remote store. Each row holds a
lesson id, lesson title, asset id, text and translation; an empty asset id is
derived from the text.

Example:
  learnsync import catalog.xlsx --sheet Lessons
  learnsync import catalog.csv --draft`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.FilePath = args[0]
			cfg.Publish = !draft
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				res, err := catalog.Import(ctx, e.Remote, cfg)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, res, func() string {
					out := fields(
						"Rows", fmt.Sprint(res.TotalProcessed),
						"Lessons", fmt.Sprint(res.Lessons),
						"Assets", fmt.Sprint(res.Assets),
						"Skipped", fmt.Sprint(res.Skipped),
					)
					if len(res.Errors) > 0 {
						out += "\n" + styles.Error.Render(strings.Join(res.Errors, "\n"))
					}
					return out
				})
			})
		},
	}

	cmd.Flags().StringVar(&cfg.SheetName, "sheet", cfg.SheetName, "sheet to read from xlsx files")
	cmd.Flags().IntVar(&cfg.StartRow, "start-row", cfg.StartRow, "first data row (1-based)")
	cmd.Flags().BoolVar(&draft, "draft", false, "import lessons as drafts and assets as pending")
	return cmd
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the remote schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				if err := e.Remote.EnsureSchema(ctx); err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.Format, map[string]bool{"migrated": true}, func() string {
					return styles.Success.Render("remote schema is up to date")
				})
			})
		},
	}
}

func newLinkTelegramCommand(opts *RootOptions) *cobra.Command {
	var (
		userID string
		chatID int64
	)

	cmd := &cobra.Command{
		Use:   "link-telegram",
		Short: "Send streak reminders of a learner to a Telegram chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *Engine) error {
				if err := e.Remote.LinkTelegramChat(ctx, userID, chatID); err != nil {
					return err
				}
				res := map[string]any{"user_id": userID, "chat_id": chatID}
				return render(cmd.OutOrStdout(), opts.Format, res, func() string {
					return styles.Success.Render(fmt.Sprintf("reminders for %s go to chat %d", userID, chatID))
				})
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "learner id (required)")
	cmd.Flags().Int64Var(&chatID, "chat", 0, "Telegram chat id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}
