package digest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
)

// Fetch is the outcome of fetching one source. Err is a *source.FetchError
// when the fetch failed, in which case Items is empty.
type Fetch struct {
	Spec     source.Spec
	Items    []feed.Item
	Err      error
	Duration time.Duration
}

// Result is the outcome of one aggregation.
type Result struct {
	Items   []feed.Item      // deliverable items, most recent first
	State   state.Watermarks // nil when incremental mode is off
	Fetches []Fetch          // one per spec that had an adapter
}

// Failed returns the fetches that produced an error.
func (r Result) Failed() []Fetch {
	var failed []Fetch
	for _, f := range r.Fetches {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Fetched is the number of items returned by adapters before incremental
// filtering.
func (r Result) Fetched() int {
	n := 0
	for _, f := range r.Fetches {
		n += len(f.Items)
	}
	return n
}

type Aggregator struct {
	adapters source.Adapters
	limit    int
	filterer *feed.Filterer
	log      zerolog.Logger
}

// NewAggregator creates an aggregator using the given adapters. limit is the
// per-source item count used when a spec does not set its own.
func NewAggregator(adapters source.Adapters, limit int, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		limit:    limit,
		filterer: feed.NewFilterer(),
		log:      log.With().Str("component", "aggregator").Logger(),
	}
}

// Collect fetches every spec in order, one at a time. Specs whose kind has no
// adapter are skipped. A failing source contributes no items and does not
// affect the others.
func (a *Aggregator) Collect(ctx context.Context, specs []source.Spec) []Fetch {
	fetches := make([]Fetch, 0, len(specs))

	for _, spec := range specs {
		fetcher, ok := a.adapters[spec.Kind]
		if !ok {
			a.log.Debug().Str("source", spec.Key()).Msg("No adapter configured, skipping source")
			continue
		}

		limit := a.limit
		if spec.Limit > 0 {
			limit = spec.Limit
		}

		start := time.Now()
		items, err := fetcher.Fetch(ctx, spec, limit)
		fetch := Fetch{Spec: spec, Duration: time.Since(start)}
		if err != nil {
			fetch.Err = &source.FetchError{Source: spec.Key(), Err: err}
		} else {
			fetch.Items = a.filterer.Run(items, spec.Filters)
		}

		fetches = append(fetches, fetch)
	}

	return fetches
}

// Aggregate collects all specs, orders the union by recency and, when
// incremental is set, drops items at or before the prior watermark of their
// source. prior is never modified.
func (a *Aggregator) Aggregate(ctx context.Context, specs []source.Spec, prior state.Watermarks, incremental bool) Result {
	fetches := a.Collect(ctx, specs)

	var items []feed.Item
	for _, f := range fetches {
		items = append(items, f.Items...)
	}
	feed.SortByRecency(items)

	result := Result{Items: items, Fetches: fetches}
	if !incremental {
		return result
	}

	result.Items, result.State = FilterNew(items, prior)
	return result
}

// FilterNew keeps the items newer than the prior watermark of their source.
// Only prior is consulted, so several new items from one source all survive.
// A later item repeating the source and URL of an item already kept is
// dropped. The returned watermarks are a copy of prior advanced to the
// newest kept item of each source. Publication times are compared at
// state.Precision so a watermark survives a save and load unchanged.
func FilterNew(items []feed.Item, prior state.Watermarks) ([]feed.Item, state.Watermarks) {
	next := prior.Clone()
	kept := make([]feed.Item, 0, len(items))
	seen := make(map[itemKey]struct{})

	for _, item := range items {
		published := item.PublishedAt.Truncate(state.Precision)
		if w, ok := prior.Get(item.Source); ok && !published.After(w) {
			continue
		}

		if item.URL != "" {
			key := itemKey{source: item.Source, url: item.URL}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}

		kept = append(kept, item)
		next.Advance(item.Source, published)
	}

	return kept, next
}

type itemKey struct {
	source string
	url    string
}
