// Package archive finds the archive listing pages and extracts episode
// records from them.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"podcastify/pkg/httpclient"
	"podcastify/pkg/logger"
	"podcastify/pkg/metrics"
)

// Discoverer walks the listing pages by offset until a page is unreachable
// or the page ceiling is hit.
type Discoverer struct {
	listingURL string // listing template with one %d placeholder for the offset
	pageSize   int
	maxPages   int
	httpClient *httpclient.HTTPClient
	log        logger.Logger
	metrics    metrics.Recorder
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithDiscovererLogger sets the logger.
func WithDiscovererLogger(l logger.Logger) DiscovererOption {
	return func(d *Discoverer) { d.log = l }
}

// WithDiscovererMetrics sets the metrics recorder.
func WithDiscovererMetrics(r metrics.Recorder) DiscovererOption {
	return func(d *Discoverer) { d.metrics = metrics.OrNop(r) }
}

// NewDiscoverer creates a new page discoverer
// listingURL: the listing template, e.g. "http://hledani.rozhlas.cz/iRadio/?porad[]=Osudy&offset=%d"
// pageSize: offset step between pages
// maxPages: hard ceiling on the number of pages returned
func NewDiscoverer(listingURL string, pageSize, maxPages int, client *httpclient.HTTPClient, opts ...DiscovererOption) *Discoverer {
	if client == nil {
		client = httpclient.NewClient(httpclient.BrowserClient)
	}
	d := &Discoverer{
		listingURL: listingURL,
		pageSize:   pageSize,
		maxPages:   maxPages,
		httpClient: client,
		log:        logger.NewNop(),
		metrics:    metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns the reachable listing page URLs in ascending offset order.
// An unreachable page ends discovery and is not an error. On cancellation the
// pages found so far are returned together with ctx.Err().
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	var pages []string

	for pageNo := 0; pageNo < d.maxPages; pageNo++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		offset := pageNo * d.pageSize
		pageURL := d.PageURL(offset)

		exists, err := d.checkPageExists(ctx, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pages, ctxErr
			}
			d.log.Debug("Listing page unreachable, stopping discovery",
				logger.String("page_url", pageURL),
				logger.Int("offset", offset),
				logger.Error(err),
			)
			break
		}
		if !exists {
			d.log.Debug("Listing page does not exist, stopping discovery",
				logger.String("page_url", pageURL),
				logger.Int("offset", offset),
			)
			break
		}

		d.metrics.RecordPageDiscovered()
		pages = append(pages, pageURL)
	}

	d.log.Info("Discovered listing pages", logger.Int("pages", len(pages)))
	return pages, nil
}

// PageURL builds the listing URL for a given offset
func (d *Discoverer) PageURL(offset int) string {
	return fmt.Sprintf(d.listingURL, offset)
}

// checkPageExists reports whether a GET on pageURL succeeds with a 2xx status.
// The body is drained but not inspected.
func (d *Discoverer) checkPageExists(ctx context.Context, pageURL string) (bool, error) {
	resp, err := d.httpClient.Get(ctx, pageURL)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, nil
	}
	return true, nil
}
