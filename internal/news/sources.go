// Package news ingests news items from two source families: feed-based
// (RSS/Atom over plain HTTP) and crawler-based (headless browser with
// per-site CSS extraction schemas).
package news

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"insight/internal/models"
)

// sourcesFile is the YAML document listing all news sources.
type sourcesFile struct {
	Sources []models.NewsSource `yaml:"sources"`
}

// LoadSources reads the news-sources YAML config.
func LoadSources(path string) ([]models.NewsSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read news sources config: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse news sources config: %w", err)
	}

	for i := range file.Sources {
		if file.Sources[i].Language == "" {
			file.Sources[i].Language = "en"
		}
		if file.Sources[i].Weight == 0 {
			file.Sources[i].Weight = 0.5
		}
	}
	return file.Sources, nil
}

// EnabledSources filters to enabled entries.
func EnabledSources(sources []models.NewsSource) []models.NewsSource {
	enabled := make([]models.NewsSource, 0, len(sources))
	for _, s := range sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}
