package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"podcastify/pkg/feed"
	"podcastify/pkg/logger"
	"podcastify/pkg/metrics"
	"podcastify/pkg/pipeline"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Crawl the archive and write the podcast feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			log := ctx.activeLogger()

			reg := prometheus.NewRegistry()
			p := pipeline.FromConfig(cfg, log, metrics.NewCollector(reg))

			doc, runErr := p.Run(cmd.Context())

			if cfg.Output.MetricsFile != "" {
				if err := metrics.WriteTextfile(cfg.Output.MetricsFile, reg); err != nil {
					log.Warn("Failed to write metrics", logger.Error(err))
				}
			}
			if runErr != nil {
				return runErr
			}

			if cfg.Output.Validate {
				parsed, err := feed.Validate(bytes.NewReader(doc))
				if err != nil {
					return fmt.Errorf("rendered feed is invalid: %w", err)
				}
				log.Info("Feed validated", logger.Int("items", len(parsed.Items)))
			}

			if cfg.Output.Path == "" {
				_, err := cmd.OutOrStdout().Write(doc)
				return err
			}
			if err := writeFileAtomic(cfg.Output.Path, doc); err != nil {
				return err
			}
			log.Info("Feed written", logger.String("path", cfg.Output.Path))
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Write the feed to this file instead of stdout")
	cmd.Flags().Bool("validate", false, "Re-parse the rendered feed before writing it")
	cmd.Flags().String("metrics-file", "", "Write Prometheus textfile metrics to this path")

	return cmd
}

// writeFileAtomic writes data to a temp file next to path and renames it
// over path, so readers never see a partial feed.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write feed: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to write feed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
