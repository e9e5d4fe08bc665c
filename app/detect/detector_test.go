package detect

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/eldipa/feed2maildir/app/dates"
	"github.com/eldipa/feed2maildir/app/feed"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestDetector() (*Detector, *bytes.Buffer) {
	var buf bytes.Buffer
	normalizer := &dates.Normalizer{Now: func() time.Time { return testNow }}
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewDetector(normalizer, logger), &buf
}

func rfc3339(t time.Time) string {
	return t.Format(time.RFC3339)
}

func TestRunWithoutPriorWatermark(t *testing.T) {
	d, _ := newTestDetector()

	f := &feed.Feed{
		Title: "Example",
		Alias: "ex",
		Posts: []feed.Post{{Link: "http://x/1", Updated: rfc3339(testNow)}},
	}

	cs := d.Run([]*feed.Feed{f}, map[string]string{})

	posts := cs.Posts("ex")
	if len(posts) != 1 || posts[0].Post.Link != "http://x/1" {
		t.Fatalf("Expected exactly the one post under 'ex', got %+v", posts)
	}
	if posts[0].Feed != f {
		t.Error("Expected entry to reference its feed")
	}
	if cs.Watermarks["Example"] != dates.Format(testNow) {
		t.Errorf("Expected watermark '%s', got '%s'", dates.Format(testNow), cs.Watermarks["Example"])
	}
}

func TestRunOnlyPostsNewerThanWatermark(t *testing.T) {
	d, _ := newTestDetector()
	watermark := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	f := &feed.Feed{
		Title: "Example",
		Alias: "ex",
		Posts: []feed.Post{
			{Link: "http://x/old", Updated: rfc3339(watermark.AddDate(0, 0, -1))},
			{Link: "http://x/new", Updated: rfc3339(watermark.AddDate(0, 0, 1))},
			{Link: "http://x/same", Updated: rfc3339(watermark)},
		},
	}

	cs := d.Run([]*feed.Feed{f}, map[string]string{"Example": dates.Format(watermark)})

	posts := cs.Posts("ex")
	if len(posts) != 1 || posts[0].Post.Link != "http://x/new" {
		t.Fatalf("Expected only the newer post, got %+v", posts)
	}
	if want := dates.Format(watermark.AddDate(0, 0, 1)); cs.Watermarks["Example"] != want {
		t.Errorf("Expected watermark '%s', got '%s'", want, cs.Watermarks["Example"])
	}
}

func TestRunIsIdempotent(t *testing.T) {
	d, _ := newTestDetector()

	feeds := []*feed.Feed{{
		Title: "Example",
		Alias: "ex",
		Posts: []feed.Post{
			{Link: "http://x/1", Published: "2024-05-01T10:00:00.500Z"},
			{Link: "http://x/2", Published: "Wed, 01 May 2024 09:00:00 +0200"},
		},
	}}

	first := d.Run(feeds, map[string]string{})
	if first.Len() != 2 {
		t.Fatalf("Expected 2 new posts on first run, got %d", first.Len())
	}

	second := d.Run(feeds, first.Watermarks)
	if second.Len() != 0 {
		t.Errorf("Expected no new posts on second run, got %d", second.Len())
	}
	if second.Watermarks["Example"] != first.Watermarks["Example"] {
		t.Errorf("Expected watermark unchanged, got '%s' then '%s'", first.Watermarks["Example"], second.Watermarks["Example"])
	}
}

func TestRunWatermarkNeverRegresses(t *testing.T) {
	d, _ := newTestDetector()
	prior := "2024-05-20 00:00:00 UTC"

	f := &feed.Feed{
		Title: "Example",
		Alias: "ex",
		Posts: []feed.Post{{Link: "http://x/1", Updated: "2024-05-01T00:00:00Z"}},
	}

	cs := d.Run([]*feed.Feed{f}, map[string]string{"Example": prior})

	if cs.Len() != 0 {
		t.Errorf("Expected no new posts, got %d", cs.Len())
	}
	if cs.Watermarks["Example"] != prior {
		t.Errorf("Expected watermark '%s', got '%s'", prior, cs.Watermarks["Example"])
	}
}

func TestRunComparesAcrossOffsets(t *testing.T) {
	d, _ := newTestDetector()

	f := &feed.Feed{
		Title: "Example",
		Alias: "ex",
		Posts: []feed.Post{
			{Link: "http://x/before", Updated: "2024-01-01T11:30:00+02:00"}, // 09:30 UTC
			{Link: "http://x/after", Updated: "2024-01-01T12:30:00+02:00"},  // 10:30 UTC
		},
	}

	cs := d.Run([]*feed.Feed{f}, map[string]string{"Example": "2024-01-01 10:00:00 UTC"})

	posts := cs.Posts("ex")
	if len(posts) != 1 || posts[0].Post.Link != "http://x/after" {
		t.Fatalf("Expected only the post after the watermark, got %+v", posts)
	}
	if cs.Watermarks["Example"] != "2024-01-01 10:30:00 UTC" {
		t.Errorf("Expected watermark '2024-01-01 10:30:00 UTC', got '%s'", cs.Watermarks["Example"])
	}
}

func TestRunStaleFeedDate(t *testing.T) {
	d, _ := newTestDetector()

	f := &feed.Feed{
		Title:   "Example",
		Alias:   "ex",
		Updated: "2023-01-01T00:00:00Z",
		Posts:   []feed.Post{{Link: "http://x/1", Updated: "2024-01-01T00:00:00Z"}},
	}

	cs := d.Run([]*feed.Feed{f}, map[string]string{"Example": "2023-06-01 00:00:00 UTC"})

	if cs.Len() != 1 {
		t.Errorf("Expected the newer post despite the stale feed date, got %d", cs.Len())
	}
	if cs.Watermarks["Example"] != "2024-01-01 00:00:00 UTC" {
		t.Errorf("Expected watermark from newest post, got '%s'", cs.Watermarks["Example"])
	}
}

func TestRunFeedWithoutEntries(t *testing.T) {
	d, _ := newTestDetector()

	feeds := []*feed.Feed{
		{Title: "Known", Alias: "known"},
		{Title: "Unknown", Alias: "unknown"},
		{Title: "Dated", Alias: "dated", Updated: "2024-02-01T00:00:00Z"},
	}

	cs := d.Run(feeds, map[string]string{"Known": "2024-01-01 00:00:00 UTC"})

	if cs.Len() != 0 {
		t.Errorf("Expected no posts, got %d", cs.Len())
	}
	if cs.Watermarks["Known"] != "2024-01-01 00:00:00 UTC" {
		t.Errorf("Expected previous watermark kept, got '%s'", cs.Watermarks["Known"])
	}
	if _, ok := cs.Watermarks["Unknown"]; ok {
		t.Errorf("Expected no watermark for an undatable feed, got '%s'", cs.Watermarks["Unknown"])
	}
	if cs.Watermarks["Dated"] != "2024-02-01 00:00:00 UTC" {
		t.Errorf("Expected watermark from the feed date, got '%s'", cs.Watermarks["Dated"])
	}
}

func TestRunKeepsOrder(t *testing.T) {
	d, _ := newTestDetector()

	feeds := []*feed.Feed{
		{
			Title: "Second", Alias: "b",
			Posts: []feed.Post{
				{Link: "http://b/2", Updated: "2024-01-02T00:00:00Z"},
				{Link: "http://b/1", Updated: "2024-01-01T00:00:00Z"},
				{Link: "http://b/3", Updated: "2024-01-03T00:00:00Z"},
			},
		},
		{
			Title: "First", Alias: "a",
			Posts: []feed.Post{{Link: "http://a/1", Updated: "2024-01-01T00:00:00Z"}},
		},
	}

	cs := d.Run(feeds, nil)

	if len(cs.Groups) != 2 || cs.Groups[0].Alias != "b" || cs.Groups[1].Alias != "a" {
		t.Fatalf("Expected groups in feed order b, a; got %+v", cs.Groups)
	}

	var links []string
	for _, entry := range cs.Groups[0].Entries {
		links = append(links, entry.Post.Link)
	}
	if got := strings.Join(links, ","); got != "http://b/2,http://b/1,http://b/3" {
		t.Errorf("Expected native entry order, got %s", got)
	}
}

func TestRunUnreadableWatermark(t *testing.T) {
	d, logs := newTestDetector()

	f := &feed.Feed{
		Title: "Example",
		Alias: "ex",
		Posts: []feed.Post{{Link: "http://x/1", Updated: "2024-01-01T00:00:00Z"}},
	}

	cs := d.Run([]*feed.Feed{f}, map[string]string{"Example": "garbage!!"})

	if cs.Len() != 1 {
		t.Errorf("Expected unreadable watermark to count as absent, got %d posts", cs.Len())
	}
	if !strings.Contains(logs.String(), "Ignoring unreadable watermark") {
		t.Errorf("Expected warning, got: %s", logs.String())
	}
}

func TestRunUndatedPostsUseNow(t *testing.T) {
	d, _ := newTestDetector()

	f := &feed.Feed{
		Title: "Example",
		Alias: "ex",
		Posts: []feed.Post{{Link: "http://x/1"}},
	}

	cs := d.Run([]*feed.Feed{f}, map[string]string{"Example": "2024-01-01 00:00:00 UTC"})

	if cs.Len() != 1 {
		t.Errorf("Expected undated post to be new, got %d", cs.Len())
	}
	if cs.Watermarks["Example"] != dates.Format(testNow) {
		t.Errorf("Expected watermark at now, got '%s'", cs.Watermarks["Example"])
	}
}
