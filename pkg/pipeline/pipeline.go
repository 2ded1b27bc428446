// Package pipeline runs the discover, extract, enrich and render stages that
// turn the archive listing into a feed document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"podcastify/pkg/domain"
	"podcastify/pkg/logger"
	"podcastify/pkg/metrics"
)

var (
	// ErrNoPages is returned when discovery finds no reachable listing page.
	ErrNoPages = errors.New("no reachable archive pages")
	// ErrAllPagesFailed is returned when every discovered page failed to load.
	ErrAllPagesFailed = errors.New("all archive pages failed to load")
)

// PageDiscoverer finds the listing pages (first stage)
type PageDiscoverer interface {
	// Discover returns listing page URLs in page order
	Discover(ctx context.Context) ([]string, error)
}

// ItemExtractor extracts episodes from one listing page
type ItemExtractor interface {
	// Extract returns the page's episodes in document order.
	// An error means the page itself could not be loaded.
	Extract(ctx context.Context, pageURL string) ([]domain.Episode, error)
}

// MediaEnricher fills in episode file sizes
type MediaEnricher interface {
	// Enrich returns a new slice in input order with FileSize set
	Enrich(ctx context.Context, episodes []domain.Episode) []domain.Episode
}

// FeedRenderer serializes episodes into the feed document
type FeedRenderer interface {
	Render(episodes []domain.Episode) ([]byte, error)
}

// Stages holds the four pipeline stages
type Stages struct {
	Discoverer PageDiscoverer
	Extractor  ItemExtractor
	Enricher   MediaEnricher
	Renderer   FeedRenderer
}

// Pipeline orchestrates the stages. No stage starts before the previous
// stage's output is complete.
type Pipeline struct {
	stages      Stages
	pageWorkers int
	log         logger.Logger
	metrics     metrics.Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPageWorkers bounds concurrent page fetches during extraction.
func WithPageWorkers(n int) Option {
	return func(p *Pipeline) {
		if n <= 0 {
			n = 1
		}
		p.pageWorkers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = metrics.OrNop(r) }
}

// NewPipeline creates a new pipeline with the given stages
func NewPipeline(stages Stages, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:      stages,
		pageWorkers: 4,
		log:         logger.NewNop(),
		metrics:     metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes all four stages and returns the rendered feed:
// 1. Discover listing pages
// 2. Extract episodes from every page
// 3. Resolve media sizes
// 4. Render the feed
func (p *Pipeline) Run(ctx context.Context) ([]byte, error) {
	if p.stages.Renderer == nil {
		return nil, fmt.Errorf("pipeline has no renderer")
	}

	start := time.Now()
	log := p.log.With(logger.String("run_id", uuid.NewString()))

	episodes, err := p.collect(ctx, log)
	if err != nil {
		return nil, err
	}

	doc, err := p.stages.Renderer.Render(episodes)
	if err != nil {
		return nil, fmt.Errorf("failed to render feed: %w", err)
	}

	elapsed := time.Since(start)
	p.metrics.RecordRunDuration(elapsed)
	log.Info("Feed rendered",
		logger.Int("episodes", len(episodes)),
		logger.Int("bytes", len(doc)),
		logger.Duration("duration", elapsed),
	)
	return doc, nil
}

// Episodes runs the first three stages and returns the enriched episodes.
func (p *Pipeline) Episodes(ctx context.Context) ([]domain.Episode, error) {
	start := time.Now()
	log := p.log.With(logger.String("run_id", uuid.NewString()))

	episodes, err := p.collect(ctx, log)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordRunDuration(time.Since(start))
	return episodes, nil
}

func (p *Pipeline) collect(ctx context.Context, log logger.Logger) ([]domain.Episode, error) {
	if p.stages.Discoverer == nil || p.stages.Extractor == nil || p.stages.Enricher == nil {
		return nil, fmt.Errorf("pipeline stages are not set")
	}

	pages, err := p.stages.Discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	log.Info("Discovered pages", logger.Int("pages", len(pages)))

	episodes, err := p.extractAll(ctx, log, pages)
	if err != nil {
		return nil, err
	}
	log.Info("Extracted episodes", logger.Int("episodes", len(episodes)))

	enriched := p.stages.Enricher.Enrich(ctx, episodes)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to resolve media sizes: %w", err)
	}
	return enriched, nil
}

// extractAll fetches pages concurrently and concatenates their episodes in
// page order. A failed page contributes nothing.
func (p *Pipeline) extractAll(ctx context.Context, log logger.Logger, pages []string) ([]domain.Episode, error) {
	perPage := make([][]domain.Episode, len(pages))
	var failures atomic.Int32

	var g errgroup.Group
	g.SetLimit(p.pageWorkers)

	for i, pageURL := range pages {
		i, pageURL := i, pageURL
		g.Go(func() error {
			episodes, err := p.stages.Extractor.Extract(ctx, pageURL)
			if err != nil {
				failures.Add(1)
				p.metrics.RecordPageFetchFailure()
				log.Warn("Failed to extract page",
					logger.String("page_url", pageURL),
					logger.Error(err),
				)
				return nil
			}
			perPage[i] = episodes
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to extract episodes: %w", err)
	}
	if int(failures.Load()) == len(pages) {
		return nil, ErrAllPagesFailed
	}

	var all []domain.Episode
	for _, episodes := range perPage {
		all = append(all, episodes...)
	}
	return all, nil
}
