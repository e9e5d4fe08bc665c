package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// State
	Database        string `long:"db" env:"F2M_DB" default:"~/.f2mdb" description:"Database file with the state of the previous runs"`
	DatabaseBackend string `long:"db-backend" env:"F2M_DB_BACKEND" default:"json" choice:"json" choice:"sqlite" description:"Database format"`

	// Delivery
	Maildir          string   `long:"maildir" env:"F2M_MAILDIR" default:"~/mail/feeds" description:"Maildir the messages are delivered to"`
	FeedsFile        string   `long:"feeds" env:"F2M_FEEDS" default:"~/.f2m.yml" description:"YAML file listing the feeds"`
	Strip            bool     `long:"strip" description:"Strip HTML from the post bodies"`
	StripProgram     string   `long:"strip-program" env:"F2M_STRIP_PROGRAM" description:"Shell command used to strip HTML instead of the built-in stripper (implies --strip)"`
	Links            bool     `long:"links" description:"Only include the link to the post, not its body"`
	FilterDuplicated []string `long:"filter-duplicated" description:"Feed alias whose repeated posts are dropped (repeatable)"`

	// Fetching
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"feed2maildir" description:"User agent string for HTTP requests"`

	// Application metadata
	Timezone string `long:"timezone" env:"F2M_TIMEZONE" description:"Timezone used as local time (e.g., UTC, Europe/Berlin)"`
	Silent   bool   `short:"s" long:"silent" description:"Do not print warnings"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args and the environment. It returns nil, nil when help was
// requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Database:         expandHome(raw.Database),
		DatabaseBackend:  raw.DatabaseBackend,
		Maildir:          expandHome(raw.Maildir),
		FeedsFile:        expandHome(raw.FeedsFile),
		Strip:            raw.Strip || raw.StripProgram != "",
		StripProgram:     raw.StripProgram,
		Links:            raw.Links,
		FilterDuplicated: raw.FilterDuplicated,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Silent:           raw.Silent,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// NewLogger returns the sink every warning of the run goes through.
func NewLogger(cfg *Cfg) *slog.Logger {
	if cfg.Silent {
		return slog.New(slog.DiscardHandler)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
