package feed

import (
	"bytes"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcastify/pkg/config"
	"podcastify/pkg/domain"
)

func defaultChannel() config.ChannelConfig {
	return config.ChannelConfig{
		Title:       config.DefaultChannelTitle,
		Description: config.DefaultChannelDescription,
		Copyright:   config.DefaultChannelCopyright,
		Link:        config.DefaultChannelLink,
		ImageURL:    config.DefaultChannelImageURL,
		Explicit:    config.DefaultChannelExplicit,
		Category:    config.DefaultChannelCategory,
		Subcategory: config.DefaultChannelSubcategory,
		OwnerName:   config.DefaultChannelOwnerName,
		OwnerEmail:  config.DefaultChannelOwnerEmail,
		Language:    config.DefaultChannelLanguage,
		SelfURL:     config.DefaultChannelSelfURL,
	}
}

func newTestRenderer(t *testing.T) (*Renderer, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2024, time.June, 3, 8, 30, 0, 0, time.UTC) }
	return NewRenderer(defaultChannel(), loc, WithClock(clock)), loc
}

func vzpominky(loc *time.Location) domain.Episode {
	return domain.NewEpisode("12345", "Vzpomínky", time.Date(2020, time.March, 1, 20, 0, 0, 0, loc)).WithFileSize(4096000)
}

func TestRender_ItemFields(t *testing.T) {
	r, loc := newTestRenderer(t)

	out, err := r.Render([]domain.Episode{vzpominky(loc)})
	require.NoError(t, err)
	doc := string(out)

	assert.Contains(t, doc, "<title>Vzpomínky</title>")
	assert.Contains(t, doc, "<link>http://media.rozhlas.cz/_audio/12345.mp3</link>")
	assert.Contains(t, doc, "<guid>http://media.rozhlas.cz/_audio/12345.mp3</guid>")
	assert.Contains(t, doc, `<enclosure url="http://media.rozhlas.cz/_audio/12345.mp3" type="audio/mpeg" length="4096000">`)
	assert.Contains(t, doc, "<pubDate>Sun, 01 Mar 2020 20:00:00 +0100</pubDate>")
	assert.Equal(t, 1, strings.Count(doc, "<item>"))
}

func TestRender_Envelope(t *testing.T) {
	r, _ := newTestRenderer(t)

	out, err := r.Render(nil)
	require.NoError(t, err)
	doc := string(out)

	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, doc, `<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">`)
	assert.Contains(t, doc, "<title>Osudy</title>")
	assert.Contains(t, doc, "<description>"+config.DefaultChannelDescription+"</description>")
	assert.Contains(t, doc, "<copyright>Český rozhlas Vltava</copyright>")
	assert.Contains(t, doc, "<link>http://zoul.github.io/Osudy/</link>")
	assert.Contains(t, doc, `<itunes:image href="http://i.imgur.com/hIZLilw.jpg"></itunes:image>`)
	assert.Contains(t, doc, "<itunes:explicit>no</itunes:explicit>")
	assert.Contains(t, doc, `<itunes:category text="Society &amp; Culture">`)
	assert.Contains(t, doc, `<itunes:category text="Personal Journals"></itunes:category>`)
	assert.Contains(t, doc, "<itunes:name>Tomáš Znamenáček</itunes:name>")
	assert.Contains(t, doc, "<itunes:email>tomas.znamenacek@gmail.com</itunes:email>")
	assert.Contains(t, doc, "<language>cs</language>")
	// 08:30 UTC is 10:30 in Prague summer time
	assert.Contains(t, doc, "<lastBuildDate>Mon, 03 Jun 2024 10:30:00 +0200</lastBuildDate>")
	assert.Contains(t, doc, `<atom:link href="http://zoul.github.io/Osudy/feed.xml" rel="self" type="application/rss+xml"></atom:link>`)
	assert.NotContains(t, doc, "<item>")
}

func TestRender_Deterministic(t *testing.T) {
	r, loc := newTestRenderer(t)
	eps := []domain.Episode{vzpominky(loc), domain.NewEpisode("2", "Druhý", time.Date(2020, time.March, 8, 20, 0, 0, 0, loc))}

	first, err := r.Render(eps)
	require.NoError(t, err)
	second, err := r.Render(eps)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_KeepsInputOrder(t *testing.T) {
	r, loc := newTestRenderer(t)
	eps := []domain.Episode{
		domain.NewEpisode("b", "Second", time.Date(2020, time.March, 8, 20, 0, 0, 0, loc)),
		domain.NewEpisode("a", "First", time.Date(2020, time.March, 1, 20, 0, 0, 0, loc)),
	}

	out, err := r.Render(eps)
	require.NoError(t, err)
	doc := string(out)
	assert.Less(t, strings.Index(doc, "<title>Second</title>"), strings.Index(doc, "<title>First</title>"))
}

func TestRender_EscapesText(t *testing.T) {
	r, loc := newTestRenderer(t)
	ep := domain.NewEpisode("7", `Tom & Jerry <live>`, time.Date(2020, time.March, 1, 20, 0, 0, 0, loc))

	out, err := r.Render([]domain.Episode{ep})
	require.NoError(t, err)
	doc := string(out)

	assert.Contains(t, doc, "<title>Tom &amp; Jerry &lt;live&gt;</title>")
	assert.NotContains(t, doc, "<live>")

	parsed, err := Validate(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry <live>", parsed.Items[0].Title)
}

func TestRender_UnresolvedSizeIsZero(t *testing.T) {
	r, loc := newTestRenderer(t)
	ep := domain.NewEpisode("9", "Bez velikosti", time.Date(2020, time.March, 1, 20, 0, 0, 0, loc))

	out, err := r.Render([]domain.Episode{ep})
	require.NoError(t, err)
	assert.Contains(t, string(out), `length="0"`)
}

func TestRender_ParsesAsPodcast(t *testing.T) {
	r, loc := newTestRenderer(t)

	out, err := r.Render([]domain.Episode{vzpominky(loc)})
	require.NoError(t, err)

	parsed, err := Validate(bytes.NewReader(out))
	require.NoError(t, err)

	assert.Equal(t, "Osudy", parsed.Title)
	assert.Equal(t, "cs", parsed.Language)
	require.NotNil(t, parsed.ITunesExt)
	assert.Equal(t, "no", parsed.ITunesExt.Explicit)
	require.Len(t, parsed.ITunesExt.Categories, 1)
	assert.Equal(t, "Society & Culture", parsed.ITunesExt.Categories[0].Text)
	require.NotNil(t, parsed.ITunesExt.Categories[0].Subcategory)
	assert.Equal(t, "Personal Journals", parsed.ITunesExt.Categories[0].Subcategory.Text)

	require.Len(t, parsed.Items, 1)
	item := parsed.Items[0]
	assert.Equal(t, "http://media.rozhlas.cz/_audio/12345.mp3", item.GUID)
	assert.Equal(t, item.GUID, item.Link)
	require.Len(t, item.Enclosures, 1)
	assert.Equal(t, "4096000", item.Enclosures[0].Length)
	assert.Equal(t, "audio/mpeg", item.Enclosures[0].Type)
	require.NotNil(t, item.PublishedParsed)
	assert.True(t, time.Date(2020, time.March, 1, 19, 0, 0, 0, time.UTC).Equal(*item.PublishedParsed))
}

func TestRenderTo(t *testing.T) {
	r, loc := newTestRenderer(t)

	var buf bytes.Buffer
	require.NoError(t, r.RenderTo(&buf, []domain.Episode{vzpominky(loc)}))

	rendered, err := r.Render([]domain.Episode{vzpominky(loc)})
	require.NoError(t, err)
	assert.Equal(t, rendered, buf.Bytes())
}
