package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"podcastify/pkg/domain"
	"podcastify/pkg/pipeline"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "episodes",
		Short: "List archive episodes with their media sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}

			p := pipeline.FromConfig(cfg, ctx.activeLogger(), nil)
			episodes, err := p.Episodes(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderEpisodeTable(episodes))
			return nil
		},
	}
}

func renderEpisodeTable(episodes []domain.Episode) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Published", "Title", "Size"})

	var total int64
	for _, ep := range episodes {
		size := "-"
		if ep.FileSize > 0 {
			size = humanize.Bytes(uint64(ep.FileSize))
			total += ep.FileSize
		}
		tw.AppendRow(table.Row{ep.ID, ep.PublishedAt.Format("2.1.2006 15:04"), ep.Title, size})
	}
	tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d episodes", len(episodes)), humanize.Bytes(uint64(total))})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}
