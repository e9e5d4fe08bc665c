// Package detect decides which posts of a run are new by comparing them with
// the watermark recorded for their feed on the previous run.
package detect

import (
	"log/slog"
	"time"

	"github.com/eldipa/feed2maildir/app/dates"
	"github.com/eldipa/feed2maildir/app/feed"
)

type Entry struct {
	Feed *feed.Feed
	Post *feed.Post
}

// Group holds the new posts of one alias in the feed's own order.
type Group struct {
	Alias   string
	Entries []Entry
}

type ChangeSet struct {
	Groups     []Group           // in the order the aliases were first seen
	Watermarks map[string]string // feed display name -> new watermark

	index map[string]int
}

func newChangeSet() *ChangeSet {
	return &ChangeSet{
		Watermarks: make(map[string]string),
		index:      make(map[string]int),
	}
}

func (cs *ChangeSet) add(f *feed.Feed, post *feed.Post) {
	i, ok := cs.index[f.Alias]
	if !ok {
		i = len(cs.Groups)
		cs.index[f.Alias] = i
		cs.Groups = append(cs.Groups, Group{Alias: f.Alias})
	}
	cs.Groups[i].Entries = append(cs.Groups[i].Entries, Entry{Feed: f, Post: post})
}

// Posts returns the new posts recorded under alias.
func (cs *ChangeSet) Posts(alias string) []Entry {
	i, ok := cs.index[alias]
	if !ok {
		return nil
	}
	return cs.Groups[i].Entries
}

// Len is the number of new posts over all aliases.
func (cs *ChangeSet) Len() int {
	n := 0
	for _, group := range cs.Groups {
		n += len(group.Entries)
	}
	return n
}

type Detector struct {
	normalizer *dates.Normalizer
	logger     *slog.Logger
}

func NewDetector(normalizer *dates.Normalizer, logger *slog.Logger) *Detector {
	if normalizer == nil {
		normalizer = dates.NewNormalizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{normalizer: normalizer, logger: logger}
}

// Run returns the posts newer than prior, keyed by feed alias, and the new
// watermark of every feed. Instants are compared at second precision, the
// precision of the stored watermarks.
func (d *Detector) Run(feeds []*feed.Feed, prior map[string]string) *ChangeSet {
	cs := newChangeSet()

	for _, f := range feeds {
		feedInstant, ok := d.normalizer.FeedUpdateTime(f)
		priorInstant, hasPrior := d.priorInstant(f, prior)

		if !ok {
			// Nothing to date the feed with: keep whatever we had.
			if previous, found := prior[f.Title]; found {
				cs.Watermarks[f.Title] = previous
			}
			d.logger.Debug("Feed has no entries and no date", "feed", f.Alias)
			continue
		}
		feedInstant = feedInstant.Truncate(time.Second)

		newPosts := 0
		if !hasPrior || priorInstant.Before(feedInstant) {
			for i := range f.Posts {
				post := &f.Posts[i]
				postInstant := d.normalizer.PostTime(post).Truncate(time.Second)
				if !hasPrior || priorInstant.Before(postInstant) {
					cs.add(f, post)
					newPosts++
				}
			}
		}

		// The watermark never goes back, even if the feed's newest post did.
		if hasPrior && priorInstant.After(feedInstant) {
			feedInstant = priorInstant
		}
		cs.Watermarks[f.Title] = dates.Format(feedInstant)

		d.logger.Debug("Feed checked",
			"feed", f.Alias,
			"name", f.Title,
			"posts", len(f.Posts),
			"new", newPosts,
			"watermark", cs.Watermarks[f.Title])
	}

	return cs
}

func (d *Detector) priorInstant(f *feed.Feed, prior map[string]string) (time.Time, bool) {
	value, ok := prior[f.Title]
	if !ok {
		return time.Time{}, false
	}

	t, err := d.normalizer.Parse(value)
	if err != nil {
		d.logger.Warn("Ignoring unreadable watermark", "feed", f.Alias, "watermark", value, "error", err)
		return time.Time{}, false
	}
	return dates.ToUTC(t), true
}
