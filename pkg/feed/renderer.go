// Package feed renders episodes as an RSS 2.0 podcast feed with iTunes
// extensions and validates rendered documents.
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"podcastify/pkg/config"
	"podcastify/pkg/domain"
)

// RFC822Layout is the pubDate and lastBuildDate format.
const RFC822Layout = time.RFC1123Z

const (
	atomNamespace   = "http://www.w3.org/2005/Atom"
	itunesNamespace = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	rssMIMEType     = "application/rss+xml"
)

type rssDocument struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string         `xml:"title"`
	Description   string         `xml:"description"`
	Copyright     string         `xml:"copyright"`
	Link          string         `xml:"link"`
	Image         itunesImage    `xml:"itunes:image"`
	Explicit      string         `xml:"itunes:explicit"`
	Category      itunesCategory `xml:"itunes:category"`
	Owner         itunesOwner    `xml:"itunes:owner"`
	Language      string         `xml:"language"`
	LastBuildDate string         `xml:"lastBuildDate"`
	AtomLink      atomLink       `xml:"atom:link"`
	Items         []rssItem      `xml:"item"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type itunesCategory struct {
	Text        string          `xml:"text,attr"`
	Subcategory *itunesCategory `xml:"itunes:category,omitempty"`
}

type itunesOwner struct {
	Name  string `xml:"itunes:name"`
	Email string `xml:"itunes:email"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title     string       `xml:"title"`
	Link      string       `xml:"link"`
	GUID      string       `xml:"guid"`
	Enclosure rssEnclosure `xml:"enclosure"`
	PubDate   string       `xml:"pubDate"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int64  `xml:"length,attr"`
}

// Renderer serializes episodes into a feed document.
type Renderer struct {
	channel  config.ChannelConfig
	location *time.Location
	now      func() time.Time
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithClock replaces time.Now for lastBuildDate.
func WithClock(now func() time.Time) RendererOption {
	return func(r *Renderer) { r.now = now }
}

// NewRenderer creates a renderer for the given channel. Dates are written in loc.
func NewRenderer(channel config.ChannelConfig, loc *time.Location, opts ...RendererOption) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{
		channel:  channel,
		location: loc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the feed document for episodes, in the given order.
func (r *Renderer) Render(episodes []domain.Episode) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.RenderTo(&buf, episodes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderTo writes the feed document for episodes to w.
func (r *Renderer) RenderTo(w io.Writer, episodes []domain.Episode) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write feed: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(r.document(episodes)); err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write feed: %w", err)
	}
	return nil
}

// FormatDate formats t as an RFC 822 date in the renderer's location.
func (r *Renderer) FormatDate(t time.Time) string {
	return t.In(r.location).Format(RFC822Layout)
}

func (r *Renderer) document(episodes []domain.Episode) rssDocument {
	ch := r.channel

	category := itunesCategory{Text: ch.Category}
	if ch.Subcategory != "" {
		category.Subcategory = &itunesCategory{Text: ch.Subcategory}
	}

	items := make([]rssItem, 0, len(episodes))
	for _, ep := range episodes {
		items = append(items, r.item(ep))
	}

	return rssDocument{
		Version:  "2.0",
		AtomNS:   atomNamespace,
		ITunesNS: itunesNamespace,
		Channel: rssChannel{
			Title:         ch.Title,
			Description:   ch.Description,
			Copyright:     ch.Copyright,
			Link:          ch.Link,
			Image:         itunesImage{Href: ch.ImageURL},
			Explicit:      ch.Explicit,
			Category:      category,
			Owner:         itunesOwner{Name: ch.OwnerName, Email: ch.OwnerEmail},
			Language:      ch.Language,
			LastBuildDate: r.FormatDate(r.now()),
			AtomLink:      atomLink{Href: ch.SelfURL, Rel: "self", Type: rssMIMEType},
			Items:         items,
		},
	}
}

// item maps one episode. guid intentionally equals link.
func (r *Renderer) item(ep domain.Episode) rssItem {
	size := ep.FileSize
	if size < 0 {
		size = 0
	}
	return rssItem{
		Title: ep.Title,
		Link:  ep.MediaURL,
		GUID:  ep.MediaURL,
		Enclosure: rssEnclosure{
			URL:    ep.MediaURL,
			Type:   domain.MediaType,
			Length: size,
		},
		PubDate: r.FormatDate(ep.PublishedAt),
	}
}
