package feed

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultTimeout = 30 // seconds

// LoadList reads the YAML feed list at path. Feed order in the file is the
// processing order.
func LoadList(path string, logger *slog.Logger) (*List, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed list: %w", err)
	}

	list, err := ParseList(data)
	if err != nil {
		return nil, fmt.Errorf("invalid feed list %s: %w", path, err)
	}

	logger.Debug("Feed list loaded", "path", path, "feeds", len(list.Feeds))
	return list, nil
}

func ParseList(data []byte) (*List, error) {
	var list List
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range list.Feeds {
		if list.Feeds[i].Timeout == 0 {
			list.Feeds[i].Timeout = DefaultTimeout
		}
	}

	if err := validateList(&list); err != nil {
		return nil, err
	}
	return &list, nil
}

func validateList(list *List) error {
	seen := make(map[string]bool, len(list.Feeds))

	for i, feedConfig := range list.Feeds {
		requiredFields := map[string]string{
			"feed alias": feedConfig.Alias,
			"feed URL":   feedConfig.URL,
		}
		for fieldName, fieldValue := range requiredFields {
			if fieldValue == "" {
				return fmt.Errorf("%s is required (feed at index %d)", fieldName, i)
			}
		}

		if seen[feedConfig.Alias] {
			return fmt.Errorf("duplicate feed alias %q", feedConfig.Alias)
		}
		seen[feedConfig.Alias] = true

		if feedConfig.Timeout < 0 {
			return fmt.Errorf("timeout must be non-negative (feed %s)", feedConfig.Alias)
		}

		for j, rule := range feedConfig.Delay {
			if rule.TitlePrefix == "" {
				return fmt.Errorf("delay rule at index %d of feed %s needs a title_prefix", j, feedConfig.Alias)
			}
		}

		if err := validateFilters(feedConfig.Filters); err != nil {
			return fmt.Errorf("feed %s: %w", feedConfig.Alias, err)
		}
	}

	return nil
}

func validateFilters(filters []ConfigFilter) error {
	validFields := map[string]bool{
		"title":       true,
		"description": true,
		"content":     true,
		"authors":     true,
		"link":        true,
		"categories":  true,
	}

	for i, filter := range filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}
	return nil
}

// DuplicateFiltered returns the aliases with duplicate filtering enabled.
func (l *List) DuplicateFiltered() []string {
	var aliases []string
	for _, feedConfig := range l.Feeds {
		if feedConfig.FilterDuplicated {
			aliases = append(aliases, feedConfig.Alias)
		}
	}
	return aliases
}

// Lookup returns the configuration for alias, or nil.
func (l *List) Lookup(alias string) *Config {
	for i := range l.Feeds {
		if l.Feeds[i].Alias == alias {
			return &l.Feeds[i]
		}
	}
	return nil
}
