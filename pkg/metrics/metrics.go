// Package metrics records per-run pipeline counters with Prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Probe results.
const (
	ProbeOK      = "ok"
	ProbeFailed  = "failed"
	ProbeNoSize  = "no_size"
	ProbeTimeout = "timeout"
)

// Recorder is the narrow interface the pipeline stages report to.
type Recorder interface {
	RecordPageDiscovered()
	RecordPageFetchFailure()
	RecordItemsExtracted(count int)
	RecordItemDropped(reason string)
	RecordProbe(result string, latency time.Duration)
	RecordRunDuration(d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	pagesDiscovered   prometheus.Counter
	pageFetchFailures prometheus.Counter
	itemsExtracted    prometheus.Counter
	itemsDropped      *prometheus.CounterVec
	probes            *prometheus.CounterVec
	probeLatency      prometheus.Histogram
	runDuration       prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pagesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podcastify_pages_discovered_total",
			Help: "Archive listing pages found reachable.",
		}),
		pageFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podcastify_page_fetch_failures_total",
			Help: "Listing pages that could not be fetched during extraction.",
		}),
		itemsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podcastify_items_extracted_total",
			Help: "Episode records extracted from listing pages.",
		}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcastify_items_dropped_total",
			Help: "Candidate items dropped as incomplete, by reason.",
		}, []string{"reason"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcastify_probes_total",
			Help: "Media size probes, by result.",
		}, []string{"result"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podcastify_probe_latency_seconds",
			Help:    "Latency of media HEAD probes.",
			Buckets: prometheus.DefBuckets,
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "podcastify_run_duration_seconds",
			Help: "Wall time of the last pipeline run.",
		}),
	}

	reg.MustRegister(
		c.pagesDiscovered,
		c.pageFetchFailures,
		c.itemsExtracted,
		c.itemsDropped,
		c.probes,
		c.probeLatency,
		c.runDuration,
	)

	return c
}

// RecordPageDiscovered counts one reachable listing page.
func (c *Collector) RecordPageDiscovered() {
	c.pagesDiscovered.Inc()
}

// RecordPageFetchFailure counts one listing page that failed to load.
func (c *Collector) RecordPageFetchFailure() {
	c.pageFetchFailures.Inc()
}

// RecordItemsExtracted adds count extracted records.
func (c *Collector) RecordItemsExtracted(count int) {
	c.itemsExtracted.Add(float64(count))
}

// RecordItemDropped counts one dropped candidate.
func (c *Collector) RecordItemDropped(reason string) {
	c.itemsDropped.WithLabelValues(reason).Inc()
}

// RecordProbe counts a probe outcome and observes its latency.
func (c *Collector) RecordProbe(result string, latency time.Duration) {
	c.probes.WithLabelValues(result).Inc()
	c.probeLatency.Observe(latency.Seconds())
}

// RecordRunDuration sets the run wall time.
func (c *Collector) RecordRunDuration(d time.Duration) {
	c.runDuration.Set(d.Seconds())
}

// WriteTextfile writes everything in g to path in the text exposition format,
// for the node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordPageDiscovered() {}
func (NopRecorder) RecordPageFetchFailure() {}
func (NopRecorder) RecordItemsExtracted(int) {}
func (NopRecorder) RecordItemDropped(string) {}
func (NopRecorder) RecordProbe(string, time.Duration) {}
func (NopRecorder) RecordRunDuration(time.Duration) {}

// OrNop returns r, or a NopRecorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return NopRecorder{}
	}
	return r
}
