package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eldipa/feed2maildir/app/cfg"
	"github.com/eldipa/feed2maildir/app/converter"
	"github.com/eldipa/feed2maildir/app/dates"
	"github.com/eldipa/feed2maildir/app/feed"
	"github.com/eldipa/feed2maildir/app/mail"
	"github.com/eldipa/feed2maildir/app/state"
	"github.com/eldipa/feed2maildir/app/strip"
)

func main() {
	os.Exit(run())
}

func run() int {
	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		fatal(err)
		return 2
	}
	if appCfg == nil {
		// Help was shown
		return 0
	}

	logger := cfg.NewLogger(appCfg)
	slog.SetDefault(logger)

	list, err := feed.LoadList(appCfg.FeedsFile, logger)
	if err != nil {
		fatal(err)
		return 1
	}

	maildir, err := mail.OpenMaildir(appCfg.Maildir)
	if err != nil {
		fatal(err)
		return 1
	}

	store, err := state.Open(appCfg.DatabaseBackend, appCfg.Database, logger)
	if err != nil {
		fatal(err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("Starting run", "version", appCfg.Version, "feeds", len(list.Feeds), "maildir", maildir.Path())

	feeds := fetchFeeds(ctx, feed.NewParser(appCfg.UserAgent), list, logger)

	var stripper strip.Stripper
	if appCfg.Strip {
		stripper = strip.New(appCfg.StripProgram)
	}

	conv := converter.New(store, maildir, converter.Options{
		Links:            appCfg.Links,
		Stripper:         stripper,
		FilterDuplicated: append(list.DuplicateFiltered(), appCfg.FilterDuplicated...),
		Hook:             feed.NewDelayHooks(list),
		Filterer:         feed.NewFilterer(list),
		Normalizer:       dates.NewNormalizer(),
		Logger:           logger,
	})

	if _, err := conv.Run(ctx, feeds); err != nil {
		// Includes a database written by a newer version, which must not
		// be touched.
		fatal(err)
		return 1
	}

	return 0
}

// fetchFeeds downloads the feeds one after the other, in list order. A feed
// that cannot be fetched is skipped.
func fetchFeeds(ctx context.Context, parser *feed.Parser, list *feed.List, logger *slog.Logger) []*feed.Feed {
	feeds := make([]*feed.Feed, 0, len(list.Feeds))

	for _, feedConfig := range list.Feeds {
		if ctx.Err() != nil {
			break
		}

		f, err := parser.Fetch(ctx, feedConfig.URL, feedConfig.Alias, time.Duration(feedConfig.Timeout)*time.Second)
		if err != nil {
			logger.Warn("Skipping feed", "feed", feedConfig.Alias, "url", feedConfig.URL, "error", err)
			continue
		}

		logger.Debug("Feed fetched", "feed", feedConfig.Alias, "name", f.Title, "posts", len(f.Posts))
		feeds = append(feeds, f)
	}

	return feeds
}

// fatal always reaches stderr, even in silent mode.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "feed2maildir: %v\n", err)
}
