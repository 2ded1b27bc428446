package feed

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mmcdole/gofeed"
)

var (
	// ErrNotRSS is returned when a document parses as something other than RSS.
	ErrNotRSS = errors.New("feed is not RSS")
	// ErrMissingEnclosure is returned when an item has no usable audio enclosure.
	ErrMissingEnclosure = errors.New("feed item has no enclosure")
)

// Validator re-parses rendered feeds with an independent RSS parser
type Validator struct {
	feedParser *gofeed.Parser
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		feedParser: gofeed.NewParser(),
	}
}

// Validate parses r and checks it is RSS with an enclosure on every item.
func (v *Validator) Validate(r io.Reader) (*gofeed.Feed, error) {
	parsed, err := v.feedParser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	if parsed.FeedType != "rss" {
		return nil, fmt.Errorf("%w: got %q", ErrNotRSS, parsed.FeedType)
	}

	for i, item := range parsed.Items {
		if len(item.Enclosures) == 0 || item.Enclosures[0].URL == "" {
			return nil, fmt.Errorf("%w: item %d (%s)", ErrMissingEnclosure, i, item.GUID)
		}
		if _, err := strconv.ParseInt(item.Enclosures[0].Length, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: item %d has invalid length %q", ErrMissingEnclosure, i, item.Enclosures[0].Length)
		}
	}

	return parsed, nil
}

// Validate is a shorthand for NewValidator().Validate(r).
func Validate(r io.Reader) (*gofeed.Feed, error) {
	return NewValidator().Validate(r)
}
