package feed

// Feed is a parsed syndication document together with the alias it was
// configured under.
type Feed struct {
	Title   string // display name declared by the document
	Alias   string // short user-facing name from the feed list
	Link    string
	Updated string // container-level updated date, may be empty
	Posts   []Post
}

type Post struct {
	Link        string
	Title       string
	Updated     string
	Published   string
	Content     string // structured content value, preferred over Description
	Description string
	Authors     []string
	Categories  []string
}

// Body returns the structured content when present, the plain description
// otherwise.
func (p *Post) Body() string {
	if p.Content != "" {
		return p.Content
	}
	return p.Description
}

// Configuration types

type List struct {
	Feeds []Config `yaml:"feeds"`
}

type Config struct {
	Alias            string         `yaml:"alias"`
	URL              string         `yaml:"url"`
	FilterDuplicated bool           `yaml:"filter_duplicated"`
	Timeout          int            `yaml:"timeout"` // seconds
	Delay            []DelayRule    `yaml:"delay"`
	Filters          []ConfigFilter `yaml:"filters"`
}

type DelayRule struct {
	TitlePrefix string `yaml:"title_prefix"`
	Days        int    `yaml:"days"`
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
