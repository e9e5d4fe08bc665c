package dedup

import (
	"log/slog"

	"github.com/eldipa/feed2maildir/app/dates"
	"github.com/eldipa/feed2maildir/app/feed"
)

// Filter consults and updates the fingerprint records of the state. It is a
// no-op for feeds that did not enable duplicate filtering.
type Filter struct {
	enabled    map[string]bool
	seen       map[string]string
	normalizer *dates.Normalizer
	logger     *slog.Logger
}

// NewFilter records into seen, which is normally the fingerprint map of the
// loaded state.
func NewFilter(aliases []string, seen map[string]string, normalizer *dates.Normalizer, logger *slog.Logger) *Filter {
	enabled := make(map[string]bool, len(aliases))
	for _, alias := range aliases {
		enabled[alias] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		enabled:    enabled,
		seen:       seen,
		normalizer: normalizer,
		logger:     logger,
	}
}

func (f *Filter) Enabled(alias string) bool {
	return f.enabled[alias]
}

// IsDuplicate reports whether post was recorded before this call. The record
// is refreshed with date every time, so suppression lasts for the retention
// window after the last sighting rather than forever.
func (f *Filter) IsDuplicate(src *feed.Feed, post *feed.Post, date string) bool {
	if !f.enabled[src.Alias] {
		return false
	}

	fingerprint := Fingerprint(src.Title, post.Link)
	_, duplicated := f.seen[fingerprint]

	f.seen[fingerprint] = dates.Format(f.normalizer.Resolve(date))

	if duplicated {
		f.logger.Debug("Duplicated post suppressed", "feed", src.Alias, "link", post.Link, "fingerprint", fingerprint)
	}
	return duplicated
}
