package feed

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser(userAgent string) *Parser {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &Parser{gofeedParser: p}
}

// Run parses a feed document and tags it with alias.
func (p *Parser) Run(data []byte, alias string) (*Feed, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return p.normalizeFeed(parsed, alias), nil
}

// Fetch downloads and parses the feed at url.
func (p *Parser) Fetch(ctx context.Context, url, alias string, timeout time.Duration) (*Feed, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parsed, err := p.gofeedParser.ParseURLWithContext(url, timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	return p.normalizeFeed(parsed, alias), nil
}

func (p *Parser) normalizeFeed(parsed *gofeed.Feed, alias string) *Feed {
	f := &Feed{
		Title:   cmp.Or(strings.TrimSpace(parsed.Title), alias),
		Alias:   alias,
		Link:    parsed.Link,
		Updated: parsed.Updated,
		Posts:   make([]Post, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		f.Posts = append(f.Posts, p.normalizeItem(item))
	}

	return f
}

func (p *Parser) normalizeItem(item *gofeed.Item) Post {
	post := Post{
		Link:        item.Link,
		Title:       item.Title,
		Updated:     item.Updated,
		Published:   item.Published,
		Content:     item.Content,
		Description: item.Description,
		Categories:  item.Categories,
	}

	post.Authors = p.extractAuthors(item)

	return post
}

func (p *Parser) extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if authorStr := p.formatAuthor(author.Name, author.Email); authorStr != "" {
					authors = append(authors, authorStr)
				}
			}
		}
	} else if item.Author != nil {
		if authorStr := p.formatAuthor(item.Author.Name, item.Author.Email); authorStr != "" {
			authors = append(authors, authorStr)
		}
	}

	return authors
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	}
	return email
}
