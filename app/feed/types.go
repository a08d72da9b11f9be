package feed

import (
	"time"
)

// Item is one piece of content produced by a source adapter.
// Items are passed by value and never modified after construction.
type Item struct {
	Title       string
	URL         string
	Source      string // source key, e.g. "YouTube:<channel>"; watermarks are partitioned by it
	PublishedAt time.Time
	Thumbnail   string
	Summary     string
}

// Metadata describes a parsed feed document.
type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// Configuration types

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// SourceConfig is one entry of the sources file.
type SourceConfig struct {
	Kind    string         `yaml:"kind"`
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Limit   int            `yaml:"limit"`
	Filters []ConfigFilter `yaml:"filters"`
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}
