// Package dates resolves the heterogeneous timestamps found in feeds into
// comparable UTC instants.
//
// Timestamps without a zone designator are taken to be UTC already. That is
// an approximation kept for compatibility with existing state files, not a
// real timezone inference.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/eldipa/feed2maildir/app/feed"
)

// Layout is the textual form of watermarks and fingerprint records.
const Layout = "2006-01-02 15:04:05 MST"

// MessageLayout is the RFC 2822 date expected by mail user agents.
const MessageLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

var ErrEmptyDate = errors.New("empty date string")

// strict layouts are tried before falling back to dateparse so that the
// values we write ourselves always round-trip exactly. The zone names are
// literals: "MST" would take any abbreviation, such as CEST, as offset zero.
var strictLayouts = []string{
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04:05 GMT",
	time.RFC3339Nano,
	time.RFC1123Z,
	"Mon, 02 Jan 2006 15:04:05 UTC",
	"Mon, 02 Jan 2006 15:04:05 GMT",
}

type Normalizer struct {
	Now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

func (n *Normalizer) now() time.Time {
	if n == nil || n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// Parse reads a single date string with the permissive parser.
func (n *Normalizer) Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyDate
	}

	if t, ok := parseStrict(value); ok {
		return t, nil
	}

	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", value, err)
	}
	return t, nil
}

func parseStrict(value string) (time.Time, bool) {
	for _, layout := range strictLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Resolve returns the first candidate that parses, or the current time when
// none does. The result is always in UTC.
func (n *Normalizer) Resolve(candidates ...string) time.Time {
	for _, candidate := range candidates {
		if t, err := n.Parse(candidate); err == nil {
			return ToUTC(t)
		}
	}
	return ToUTC(n.now())
}

// PostTime resolves a post's updated date, then its published date.
func (n *Normalizer) PostTime(post *feed.Post) time.Time {
	return n.Resolve(post.Updated, post.Published)
}

// FindUpdateTime returns the newest post time of the feed. ok is false when
// the feed has no entries.
func (n *Normalizer) FindUpdateTime(f *feed.Feed) (newest time.Time, ok bool) {
	for i := range f.Posts {
		t := n.PostTime(&f.Posts[i])
		if !ok || t.After(newest) {
			newest = t
			ok = true
		}
	}
	return newest, ok
}

// FeedUpdateTime is the later of the feed's own updated date and its newest
// post. Some publishers never bump the container date, so the posts win when
// they are newer.
func (n *Normalizer) FeedUpdateTime(f *feed.Feed) (time.Time, bool) {
	newest, hasPosts := n.FindUpdateTime(f)

	own, err := n.Parse(f.Updated)
	if err != nil {
		return newest, hasPosts
	}
	own = ToUTC(own)

	if hasPosts && newest.After(own) {
		return newest, true
	}
	return own, true
}

// ToUTC converts t to UTC. Times parsed without a zone are already UTC, so
// for those this only attaches the zone.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Format renders t as a watermark string.
func Format(t time.Time) string {
	return ToUTC(t).Format(Layout)
}

// FormatMessage renders t as an RFC 2822 date in GMT.
func FormatMessage(t time.Time) string {
	return ToUTC(t).Format(MessageLayout)
}
