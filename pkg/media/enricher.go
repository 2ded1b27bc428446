// Package media resolves audio file sizes with HEAD probes.
package media

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"podcastify/pkg/domain"
	"podcastify/pkg/httpclient"
	"podcastify/pkg/logger"
	"podcastify/pkg/metrics"
)

const (
	DefaultWorkers      = 8
	DefaultProbeTimeout = 10 * time.Second
)

// Enricher fills in episode file sizes. Probes are independent and
// best-effort: any failure resolves to a size of 0.
type Enricher struct {
	httpClient   *httpclient.HTTPClient
	workers      int
	probeTimeout time.Duration
	limiter      *rate.Limiter
	log          logger.Logger
	metrics      metrics.Recorder
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithWorkers bounds the number of concurrent probes. Values <= 0 are coerced to 1.
func WithWorkers(n int) Option {
	return func(e *Enricher) {
		if n <= 0 {
			n = 1
		}
		e.workers = n
	}
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.probeTimeout = d
		}
	}
}

// WithRateLimit caps probes per second. 0 disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(e *Enricher) {
		if perSecond <= 0 {
			e.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Enricher) { e.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Enricher) { e.metrics = metrics.OrNop(r) }
}

// NewEnricher creates a new enricher
func NewEnricher(client *httpclient.HTTPClient, opts ...Option) *Enricher {
	if client == nil {
		client = httpclient.NewClient(httpclient.ProbeClient)
	}
	e := &Enricher{
		httpClient:   client,
		workers:      DefaultWorkers,
		probeTimeout: DefaultProbeTimeout,
		log:          logger.NewNop(),
		metrics:      metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveSize returns the Content-Length of a HEAD on mediaURL, or 0 when
// the probe fails, times out, gets a non-2xx status or no length.
func (e *Enricher) ResolveSize(ctx context.Context, mediaURL string) int64 {
	start := time.Now()
	size, result, err := e.probe(ctx, mediaURL)
	e.metrics.RecordProbe(result, time.Since(start))

	if result != metrics.ProbeOK {
		fields := []logger.Field{
			logger.String("media_url", mediaURL),
			logger.String("result", result),
		}
		if err != nil {
			fields = append(fields, logger.Error(err))
		}
		e.log.Debug("Media size unresolved", fields...)
		return 0
	}
	return size
}

func (e *Enricher) probe(ctx context.Context, mediaURL string) (int64, string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, metrics.ProbeFailed, err
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	resp, err := e.httpClient.Head(probeCtx, mediaURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, metrics.ProbeTimeout, err
		}
		return 0, metrics.ProbeFailed, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, metrics.ProbeFailed, nil
	}
	if resp.ContentLength < 0 {
		return 0, metrics.ProbeNoSize, nil
	}
	return resp.ContentLength, metrics.ProbeOK, nil
}

// Enrich probes every episode concurrently and returns a new slice, in input
// order, with FileSize set. It returns once every probe has finished.
func (e *Enricher) Enrich(ctx context.Context, episodes []domain.Episode) []domain.Episode {
	out := make([]domain.Episode, len(episodes))

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, ep := range episodes {
		i, ep := i, ep
		g.Go(func() error {
			out[i] = ep.WithFileSize(e.ResolveSize(ctx, ep.MediaURL))
			return nil
		})
	}
	_ = g.Wait()

	resolved := 0
	for _, ep := range out {
		if ep.FileSize > 0 {
			resolved++
		}
	}
	e.log.Info("Resolved media sizes",
		logger.Int("episodes", len(out)),
		logger.Int("resolved", resolved),
	)
	return out
}
