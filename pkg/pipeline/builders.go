package pipeline

import (
	"podcastify/pkg/archive"
	"podcastify/pkg/config"
	"podcastify/pkg/feed"
	"podcastify/pkg/httpclient"
	"podcastify/pkg/logger"
	"podcastify/pkg/media"
	"podcastify/pkg/metrics"
)

// FromConfig builds the production pipeline
// Pipeline: [Discoverer] → [Extractor x archive.workers] → [Enricher x media.workers] → [Renderer]
func FromConfig(cfg *config.Config, log logger.Logger, rec metrics.Recorder) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	rec = metrics.OrNop(rec)
	loc := cfg.Location()

	pageClient := httpclient.NewClientWithTimeout(httpclient.BrowserClient, cfg.Archive.RequestTimeout)
	probeClient := httpclient.NewClient(httpclient.ProbeClient)

	stages := Stages{
		Discoverer: archive.NewDiscoverer(
			cfg.Archive.ListingURL,
			cfg.Archive.PageSize,
			cfg.Archive.MaxPages,
			pageClient,
			archive.WithDiscovererLogger(log),
			archive.WithDiscovererMetrics(rec),
		),
		Extractor: archive.NewExtractor(
			pageClient,
			loc,
			archive.WithExtractorLogger(log),
			archive.WithExtractorMetrics(rec),
		),
		Enricher: media.NewEnricher(
			probeClient,
			media.WithWorkers(cfg.Media.Workers),
			media.WithProbeTimeout(cfg.Media.ProbeTimeout),
			media.WithRateLimit(cfg.Media.RateLimit),
			media.WithLogger(log),
			media.WithMetrics(rec),
		),
		Renderer: feed.NewRenderer(cfg.Channel, loc),
	}

	return NewPipeline(stages,
		WithPageWorkers(cfg.Archive.Workers),
		WithLogger(log),
		WithMetrics(rec),
	)
}
