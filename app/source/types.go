package source

import (
	"cmp"
	"context"
	"fmt"
	"strings"

	"github.com/lysyi3m/feed-digest/app/feed"
)

type Kind string

const (
	KindYouTube Kind = "youtube"
	KindReddit  Kind = "reddit"
	KindRSS     Kind = "rss"
)

var kindLabels = map[Kind]string{
	KindYouTube: "YouTube",
	KindReddit:  "Reddit",
	KindRSS:     "RSS",
}

// Label is the display prefix used in source keys.
func (k Kind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindLabels[kind]; !ok {
		return "", fmt.Errorf("unknown source kind: %q", s)
	}
	return kind, nil
}

// Spec is one configured feed instance.
type Spec struct {
	Kind    Kind
	ID      string // channel id, subreddit name or feed URL
	Name    string // optional display name replacing ID in the key
	Limit   int    // per-source override of the global item limit
	Filters []feed.ConfigFilter
}

// Key identifies the source for watermark partitioning, e.g. "YouTube:<channel>".
func (s Spec) Key() string {
	return s.Kind.Label() + ":" + cmp.Or(s.Name, s.ID)
}

// Fetcher fetches up to limit recent items for one source. Order of the
// returned items is not significant.
type Fetcher interface {
	Fetch(ctx context.Context, spec Spec, limit int) ([]feed.Item, error)
}

// Adapters maps each source kind to the fetcher selected for it at
// configuration time. A kind without an entry is not available.
type Adapters map[Kind]Fetcher

// FetchError reports a failed fetch for a single source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ConfigError reports a source kind that cannot be used with the current
// configuration, typically because credentials are missing.
type ConfigError struct {
	Kind   Kind
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s sources disabled: %s", e.Kind.Label(), e.Reason)
}

// SpecsFromConfig converts sources file entries into specs.
func SpecsFromConfig(configs []feed.SourceConfig) ([]Spec, error) {
	specs := make([]Spec, 0, len(configs))
	for i, c := range configs {
		kind, err := ParseKind(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("source at index %d: %w", i, err)
		}
		specs = append(specs, Spec{
			Kind:    kind,
			ID:      c.ID,
			Name:    c.Name,
			Limit:   c.Limit,
			Filters: c.Filters,
		})
	}
	return specs, nil
}

// ValidateConfig checks that every entry names a known kind.
func ValidateConfig(configs []feed.SourceConfig) error {
	_, err := SpecsFromConfig(configs)
	return err
}

// Uses reports whether any spec is of the given kind.
func Uses(specs []Spec, kind Kind) bool {
	for _, s := range specs {
		if s.Kind == kind {
			return true
		}
	}
	return false
}
