package feed

import (
	"strings"
	"time"
)

// Hook adjusts the date a post is delivered with.
type Hook interface {
	Apply(alias string, post *Post, date time.Time) time.Time
}

// DelayHooks shifts the date of posts whose title starts with a configured
// prefix. Used for publishers that announce paid articles weeks before they
// are readable.
type DelayHooks map[string][]DelayRule

func NewDelayHooks(list *List) DelayHooks {
	hooks := make(DelayHooks)
	if list == nil {
		return hooks
	}
	for _, feedConfig := range list.Feeds {
		if len(feedConfig.Delay) > 0 {
			hooks[feedConfig.Alias] = feedConfig.Delay
		}
	}
	return hooks
}

// Apply uses the first matching rule only.
func (h DelayHooks) Apply(alias string, post *Post, date time.Time) time.Time {
	for _, rule := range h[alias] {
		if strings.HasPrefix(post.Title, rule.TitlePrefix) {
			return date.AddDate(0, 0, rule.Days)
		}
	}
	return date
}
