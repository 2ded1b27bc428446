package domain

import (
	"fmt"
	"time"
)

// MediaURLPattern is the location of an episode's audio file, keyed by episode ID.
const MediaURLPattern = "http://media.rozhlas.cz/_audio/%s.mp3"

// MediaType is the enclosure MIME type of every episode.
const MediaType = "audio/mpeg"

// Episode represents one radio program episode scraped from the archive listing.
//
// Episodes are created by the archive extractor, get their FileSize filled in once by the
// media enricher and are read-only after that.
type Episode struct {
	// ID is the last path segment of the episode's player link. Never empty.
	ID string

	// Title is the episode title with the embedded date stamp removed.
	Title string

	// MediaURL is derived from ID, see MediaURL.
	MediaURL string

	// FileSize is the audio file size in bytes, 0 when it could not be resolved.
	FileSize int64

	// PublishedAt is when the episode was broadcast.
	PublishedAt time.Time
}

// NewEpisode creates an episode with its media URL derived from id.
func NewEpisode(id, title string, publishedAt time.Time) Episode {
	return Episode{
		ID:          id,
		Title:       title,
		MediaURL:    MediaURL(id),
		PublishedAt: publishedAt,
	}
}

// MediaURL returns the audio file URL for the given episode ID.
func MediaURL(id string) string {
	return fmt.Sprintf(MediaURLPattern, id)
}

// WithFileSize returns a copy of the episode with FileSize set. Negative sizes become 0.
func (e Episode) WithFileSize(size int64) Episode {
	if size < 0 {
		size = 0
	}
	e.FileSize = size
	return e
}
