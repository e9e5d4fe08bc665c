// Package converter runs one delivery pass: it loads the state, finds the new
// posts of every feed, delivers them as mail and saves the state again.
//
// Delivery is at-least-once. The state is saved after the messages are
// written, so a crash in between delivers those posts again next time;
// duplicate filtering only narrows that window.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eldipa/feed2maildir/app/dates"
	"github.com/eldipa/feed2maildir/app/dedup"
	"github.com/eldipa/feed2maildir/app/detect"
	"github.com/eldipa/feed2maildir/app/feed"
	"github.com/eldipa/feed2maildir/app/mail"
	"github.com/eldipa/feed2maildir/app/state"
	"github.com/eldipa/feed2maildir/app/strip"
)

// Deliverer stores a composed message.
type Deliverer interface {
	Deliver(message []byte) (string, error)
}

type Options struct {
	// Links leaves the body empty so messages only carry the permalink.
	Links bool
	// Stripper converts bodies to plain text. Nil keeps the description as is.
	Stripper         strip.Stripper
	FilterDuplicated []string
	Hook             feed.Hook
	Filterer         *feed.Filterer
	Normalizer       *dates.Normalizer
	Logger           *slog.Logger
}

type Stats struct {
	Feeds      int
	New        int
	Filtered   int
	Duplicates int
	Written    int
	Failed     int
}

type Converter struct {
	store      state.Store
	maildir    Deliverer
	detector   *detect.Detector
	normalizer *dates.Normalizer
	composer   *mail.Composer
	opts       Options
	logger     *slog.Logger
}

func New(store state.Store, maildir Deliverer, opts Options) *Converter {
	if opts.Normalizer == nil {
		opts.Normalizer = dates.NewNormalizer()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hook == nil {
		opts.Hook = feed.DelayHooks(nil)
	}

	return &Converter{
		store:      store,
		maildir:    maildir,
		detector:   detect.NewDetector(opts.Normalizer, opts.Logger),
		normalizer: opts.Normalizer,
		composer:   mail.NewComposer(),
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Run delivers the new posts of feeds. The state is saved even when delivery
// fails part way; a failed save is only logged since the messages are already
// out. Errors from loading the state, such as state.ErrUnsupportedSchema, are
// returned before anything is delivered, even when feeds is empty.
func (c *Converter) Run(ctx context.Context, feeds []*feed.Feed) (stats Stats, err error) {
	st, err := c.store.Load()
	if err != nil {
		return stats, fmt.Errorf("failed to load database: %w", err)
	}

	if len(feeds) == 0 {
		return stats, nil
	}

	changes := c.detector.Run(feeds, st.Watermarks)
	filter := dedup.NewFilter(c.opts.FilterDuplicated, st.Seen, c.normalizer, c.logger)

	defer func() {
		st.Watermarks = carryOver(changes.Watermarks, st.Watermarks)
		if saveErr := c.store.Save(st); saveErr != nil {
			c.logger.Warn("Failed to write the new database", "error", saveErr)
		}
	}()

	stats.Feeds = len(feeds)
	stats.New = changes.Len()
	err = c.deliver(ctx, changes, filter, &stats)

	c.logger.Info("Run completed",
		"feeds", stats.Feeds,
		"new", stats.New,
		"filtered", stats.Filtered,
		"duplicates", stats.Duplicates,
		"written", stats.Written,
		"failed", stats.Failed)

	return stats, err
}

func (c *Converter) deliver(ctx context.Context, changes *detect.ChangeSet, filter *dedup.Filter, stats *Stats) error {
	var errs []error

	for _, group := range changes.Groups {
		for _, entry := range group.Entries {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}

			if filtered, reason := c.opts.Filterer.Run(group.Alias, entry.Post); filtered {
				c.logger.Debug("Post filtered", "feed", group.Alias, "link", entry.Post.Link, "reason", reason)
				stats.Filtered++
				continue
			}

			date := c.messageDate(group.Alias, entry.Post)

			desc, err := c.description(entry.Post)
			if err != nil {
				c.logger.Error("Failed to strip post", "feed", group.Alias, "link", entry.Post.Link, "error", err)
				errs = append(errs, fmt.Errorf("%s: %s: %w", group.Alias, entry.Post.Link, err))
				stats.Failed++
				continue
			}

			if filter.IsDuplicate(entry.Feed, entry.Post, date) {
				stats.Duplicates++
				continue
			}

			message := c.composer.Run(mail.Message{
				Date:        date,
				Title:       entry.Post.Title,
				FeedName:    entry.Feed.Title,
				Link:        entry.Post.Link,
				Description: desc,
			})

			if _, err := c.maildir.Deliver(message); err != nil {
				c.logger.Warn("Failed to write message to file", "feed", group.Alias, "link", entry.Post.Link, "error", err)
				stats.Failed++
				continue
			}
			stats.Written++
		}
	}

	return errors.Join(errs...)
}

// carryOver keeps the prior watermark of every feed missing from this run,
// such as one that failed to download, so it is not read again from scratch
// next time.
func carryOver(current, prior map[string]string) map[string]string {
	for name, watermark := range prior {
		if _, ok := current[name]; !ok {
			current[name] = watermark
		}
	}
	return current
}

// messageDate is the post's own date, or now, after the feed's hooks.
func (c *Converter) messageDate(alias string, post *feed.Post) string {
	t := c.normalizer.PostTime(post)
	t = c.opts.Hook.Apply(alias, post, t)
	return dates.FormatMessage(t)
}

func (c *Converter) description(post *feed.Post) (string, error) {
	if c.opts.Links {
		return "", nil
	}
	if c.opts.Stripper == nil {
		return post.Description, nil
	}
	return strip.Run(c.opts.Stripper, post.Body())
}
