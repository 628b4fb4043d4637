// Package cli implements the learnsync command line
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "text" | "json" | "yaml"

	// Open builds the engine a command works on. Tests replace it.
	Open func(ctx context.Context) (*Engine, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the learnsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: OpenEngine})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learnsync",
		Short: "Offline-first learner progress sync",
		Long: `learnsync records learning attempts on the device, uploads them when the
remote store is reachable, and derives streaks and progress.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(newRecordCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStreakCommand(opts))
	cmd.AddCommand(newProgressCommand(opts))
	cmd.AddCommand(newCompleteLessonCommand(opts))
	cmd.AddCommand(newDeadLetterCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newLinkTelegramCommand(opts))
	cmd.AddCommand(newRunCommand(opts))

	return cmd
}

// Execute runs the CLI with ctx, which is cancelled on shutdown signals
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
