package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"podcastify/pkg/feed"
	"podcastify/pkg/logger"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a rendered feed parses as a podcast RSS feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open feed: %w", err)
			}
			defer f.Close()

			parsed, err := feed.Validate(f)
			if err != nil {
				return err
			}

			ctx.activeLogger().Debug("Feed validated", logger.String("path", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d items\n", args[0], len(parsed.Items))
			return nil
		},
	}
}
