package feed

import (
	"fmt"
	"strings"
)

type Filterer struct {
	filters map[string][]ConfigFilter
}

// NewFilterer indexes the per-feed filters of list by alias.
func NewFilterer(list *List) *Filterer {
	f := &Filterer{filters: make(map[string][]ConfigFilter)}
	if list == nil {
		return f
	}
	for _, feedConfig := range list.Feeds {
		if len(feedConfig.Filters) > 0 {
			f.filters[feedConfig.Alias] = feedConfig.Filters
		}
	}
	return f
}

// Run reports whether post must be dropped and why.
func (f *Filterer) Run(alias string, post *Post) (bool, string) {
	if f == nil {
		return false, ""
	}
	return f.applyFilters(post, f.filters[alias])
}

func (f *Filterer) applyFilters(post *Post, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(post, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(post *Post, field string) string {
	switch field {
	case "title":
		return post.Title
	case "description":
		return post.Description
	case "content":
		return post.Content
	case "authors":
		return strings.Join(post.Authors, " ")
	case "link":
		return post.Link
	case "categories":
		return strings.Join(post.Categories, " ")
	default:
		return ""
	}
}
