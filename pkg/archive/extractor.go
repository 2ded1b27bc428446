package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"podcastify/pkg/domain"
	"podcastify/pkg/httpclient"
	"podcastify/pkg/logger"
	"podcastify/pkg/metrics"
)

// DateLayout is the listing date-stamp format, Czech d.M.yyyy HH:mm.
const DateLayout = "2.1.2006 15:04"

// Selectors for the listing markup.
const (
	containerSelector = "ul.box-audio-archive"
	titleSelector     = ".title"
	dateSelector      = ".title > .date"
	playerSelector    = ".action.action-player > [href]"
)

// DropReason says why a candidate item was not turned into an episode.
type DropReason string

const (
	DropNone         DropReason = ""
	DropMissingTitle DropReason = "missing_title"
	DropMissingDate  DropReason = "missing_date"
	DropMissingLink  DropReason = "missing_link"
	DropBadDate      DropReason = "bad_date"
	DropEmptyID      DropReason = "empty_id"
)

var spaceAfterDot = regexp.MustCompile(`\.\s+`)

// Extractor fetches listing pages and extracts episode records from them.
type Extractor struct {
	httpClient *httpclient.HTTPClient
	location   *time.Location
	log        logger.Logger
	metrics    metrics.Recorder
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractorLogger sets the logger.
func WithExtractorLogger(l logger.Logger) ExtractorOption {
	return func(e *Extractor) { e.log = l }
}

// WithExtractorMetrics sets the metrics recorder.
func WithExtractorMetrics(r metrics.Recorder) ExtractorOption {
	return func(e *Extractor) { e.metrics = metrics.OrNop(r) }
}

// NewExtractor creates a new extractor. Date-stamps are interpreted in loc.
func NewExtractor(client *httpclient.HTTPClient, loc *time.Location, opts ...ExtractorOption) *Extractor {
	if client == nil {
		client = httpclient.NewClient(httpclient.BrowserClient)
	}
	if loc == nil {
		loc = time.UTC
	}
	e := &Extractor{
		httpClient: client,
		location:   loc,
		log:        logger.NewNop(),
		metrics:    metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches one listing page and returns its episodes in document order.
// Only a failed fetch is an error; incomplete items are dropped.
func (e *Extractor) Extract(ctx context.Context, pageURL string) ([]domain.Episode, error) {
	resp, err := e.httpClient.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	episodes, err := e.ExtractFrom(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	e.log.Debug("Extracted episodes from page",
		logger.String("page_url", pageURL),
		logger.Int("episodes", len(episodes)),
	)
	return episodes, nil
}

// ExtractFrom parses a listing document. The body is converted to UTF-8 using
// the charset from contentType or, failing that, from the document itself.
func (e *Extractor) ExtractFrom(r io.Reader, contentType string) ([]domain.Episode, error) {
	utf8Body, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var episodes []domain.Episode
	doc.Find(containerSelector).Each(func(i int, container *goquery.Selection) {
		candidates(container).Each(func(j int, item *goquery.Selection) {
			ep, reason := e.parseItem(item)
			if reason != DropNone {
				e.metrics.RecordItemDropped(string(reason))
				e.log.Debug("Dropped incomplete item", logger.String("reason", string(reason)))
				return
			}
			episodes = append(episodes, ep)
		})
	})

	e.metrics.RecordItemsExtracted(len(episodes))
	return episodes, nil
}

// candidates returns the item nodes of a container: its li children that
// carry a title, or the container itself when there are none.
func candidates(container *goquery.Selection) *goquery.Selection {
	items := container.ChildrenFiltered("li").FilterFunction(func(_ int, li *goquery.Selection) bool {
		return li.Find(titleSelector).Length() > 0
	})
	if items.Length() == 0 {
		return container
	}
	return items
}

// ParseItem turns one item node into an episode. It reports false when any
// required field is missing or unparseable.
func (e *Extractor) ParseItem(item *goquery.Selection) (domain.Episode, bool) {
	ep, reason := e.parseItem(item)
	return ep, reason == DropNone
}

func (e *Extractor) parseItem(item *goquery.Selection) (domain.Episode, DropReason) {
	titleNode := item.Find(titleSelector).First()
	if titleNode.Length() == 0 {
		return domain.Episode{}, DropMissingTitle
	}
	rawTitle := titleNode.Text()

	dateNode := item.Find(dateSelector).First()
	if dateNode.Length() == 0 {
		return domain.Episode{}, DropMissingDate
	}
	dateStamp := dateNode.Text()

	link, ok := item.Find(playerSelector).First().Attr("href")
	if !ok || strings.TrimSpace(link) == "" {
		return domain.Episode{}, DropMissingLink
	}

	publishedAt, err := e.ParseDate(dateStamp)
	if err != nil {
		return domain.Episode{}, DropBadDate
	}

	id, err := episodeID(link)
	if err != nil {
		return domain.Episode{}, DropMissingLink
	}
	if id == "" {
		return domain.Episode{}, DropEmptyID
	}

	title := strings.TrimSpace(strings.ReplaceAll(rawTitle, dateStamp, ""))
	return domain.NewEpisode(id, title, publishedAt), DropNone
}

// ParseDate parses a listing date-stamp such as "1.3.2020 20:00" or
// "1. 3. 2020 20:00" in the extractor's location.
func (e *Extractor) ParseDate(stamp string) (time.Time, error) {
	s := strings.Join(strings.Fields(stamp), " ")
	s = spaceAfterDot.ReplaceAllString(s, ".")
	return time.ParseInLocation(DateLayout, s, e.location)
}

// episodeID returns the last path segment of link, ignoring query, fragment
// and a trailing slash.
func episodeID(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", err
	}

	p := strings.TrimRight(u.Path, "/")
	id := p[strings.LastIndex(p, "/")+1:]
	if id == "." || id == ".." {
		return "", nil
	}
	return id, nil
}
