package digest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
)

type fakeFetcher struct {
	items  map[string][]feed.Item // by spec key
	errs   map[string]error
	calls  []string
	limits []int
}

func (f *fakeFetcher) Fetch(ctx context.Context, spec source.Spec, limit int) ([]feed.Item, error) {
	f.calls = append(f.calls, spec.Key())
	f.limits = append(f.limits, limit)
	if err := f.errs[spec.Key()]; err != nil {
		return nil, err
	}
	return f.items[spec.Key()], nil
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func item(src, title, published string) feed.Item {
	return feed.Item{
		Title:       title,
		URL:         "https://example.com/" + title,
		Source:      src,
		PublishedAt: ts(published),
	}
}

func titles(items []feed.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

var (
	ytABC  = source.Spec{Kind: source.KindYouTube, ID: "abc"}
	ytXYZ  = source.Spec{Kind: source.KindYouTube, ID: "xyz"}
	golang = source.Spec{Kind: source.KindReddit, ID: "golang"}
)

func newAggregator(fetcher *fakeFetcher) *Aggregator {
	return NewAggregator(source.Adapters{
		source.KindYouTube: fetcher,
		source.KindReddit:  fetcher,
	}, 5, zerolog.Nop())
}

func TestAggregateScenario(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc": {
			item("YouTube:abc", "old", "2023-12-31T12:00:00Z"),
			item("YouTube:abc", "new", "2024-01-02T12:00:00Z"),
		},
	}}
	prior := state.Watermarks{"YouTube:abc": ts("2024-01-01T00:00:00Z")}

	result := newAggregator(fetcher).Aggregate(context.Background(), []source.Spec{ytABC}, prior, true)

	assert.Equal(t, []string{"new"}, titles(result.Items))
	assert.Equal(t, ts("2024-01-02T12:00:00Z"), result.State["YouTube:abc"])
	assert.Equal(t, ts("2024-01-01T00:00:00Z"), prior["YouTube:abc"], "prior must not be modified")
}

func TestAggregateNotIncremental(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc":   {item("YouTube:abc", "a1", "2024-01-01T00:00:00Z")},
		"Reddit:golang": {item("Reddit:golang", "g1", "2024-01-03T00:00:00Z"), item("Reddit:golang", "g2", "2023-01-01T00:00:00Z")},
	}}
	prior := state.Watermarks{"YouTube:abc": ts("2030-01-01T00:00:00Z")}

	result := newAggregator(fetcher).Aggregate(context.Background(), []source.Spec{ytABC, golang}, prior, false)

	assert.Equal(t, []string{"g1", "a1", "g2"}, titles(result.Items))
	assert.Nil(t, result.State)
	assert.Equal(t, 3, result.Fetched())
}

func TestAggregateIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc":   {item("YouTube:abc", "a1", "2024-01-01T00:00:00Z"), item("YouTube:abc", "a2", "2024-01-02T00:00:00Z")},
		"Reddit:golang": {item("Reddit:golang", "g1", "2024-01-03T00:00:00Z")},
	}}
	agg := newAggregator(fetcher)
	specs := []source.Spec{ytABC, golang}

	first := agg.Aggregate(context.Background(), specs, state.Watermarks{}, true)
	assert.Len(t, first.Items, 3)

	second := agg.Aggregate(context.Background(), specs, first.State, true)
	assert.Empty(t, second.Items)
	assert.Equal(t, first.State, second.State)
}

func TestAggregatePerSourceIsolation(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc": {item("YouTube:abc", "a1", "2024-01-01T00:00:00Z")},
		"YouTube:xyz": {item("YouTube:xyz", "x1", "2024-01-01T00:00:00Z")},
	}}
	prior := state.Watermarks{"YouTube:abc": ts("2099-01-01T00:00:00Z")}

	result := newAggregator(fetcher).Aggregate(context.Background(), []source.Spec{ytABC, ytXYZ}, prior, true)

	assert.Equal(t, []string{"x1"}, titles(result.Items))
	assert.Equal(t, ts("2099-01-01T00:00:00Z"), result.State["YouTube:abc"])
	assert.Equal(t, ts("2024-01-01T00:00:00Z"), result.State["YouTube:xyz"])
}

func TestAggregateKeepsUnfetchedWatermarks(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[string][]feed.Item{},
		errs:  map[string]error{"YouTube:abc": errors.New("timeout")},
	}
	prior := state.Watermarks{
		"YouTube:abc": ts("2024-01-01T00:00:00Z"),
		"Reddit:rust": ts("2023-06-01T00:00:00Z"),
	}

	result := newAggregator(fetcher).Aggregate(context.Background(), []source.Spec{ytABC}, prior, true)

	assert.Empty(t, result.Items)
	assert.Equal(t, prior, result.State)
}

func TestAggregateFetchFailureIsolated(t *testing.T) {
	boom := errors.New("connection refused")
	fetcher := &fakeFetcher{
		items: map[string][]feed.Item{
			"Reddit:golang": {item("Reddit:golang", "g1", "2024-01-03T00:00:00Z")},
		},
		errs: map[string]error{"YouTube:abc": boom},
	}

	result := newAggregator(fetcher).Aggregate(context.Background(), []source.Spec{ytABC, golang}, nil, true)

	assert.Equal(t, []string{"g1"}, titles(result.Items))
	require.Len(t, result.Fetches, 2)
	failed := result.Failed()
	require.Len(t, failed, 1)

	var fetchErr *source.FetchError
	require.ErrorAs(t, failed[0].Err, &fetchErr)
	assert.Equal(t, "YouTube:abc", fetchErr.Source)
	assert.ErrorIs(t, failed[0].Err, boom)
}

func TestAggregateZeroSources(t *testing.T) {
	result := newAggregator(&fakeFetcher{}).Aggregate(context.Background(), nil, state.Watermarks{}, true)

	assert.Empty(t, result.Items)
	assert.Empty(t, result.Fetches)
	assert.NotNil(t, result.State)
}

func TestCollectSkipsMissingAdapter(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc": {item("YouTube:abc", "a1", "2024-01-01T00:00:00Z")},
	}}
	agg := NewAggregator(source.Adapters{source.KindYouTube: fetcher}, 5, zerolog.Nop())

	fetches := agg.Collect(context.Background(), []source.Spec{golang, ytABC})

	require.Len(t, fetches, 1)
	assert.Equal(t, ytABC, fetches[0].Spec)
	assert.Equal(t, []string{"YouTube:abc"}, fetcher.calls)
}

func TestCollectOrderAndLimits(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{}}
	limited := source.Spec{Kind: source.KindReddit, ID: "rust", Limit: 2}

	newAggregator(fetcher).Collect(context.Background(), []source.Spec{golang, ytABC, limited})

	assert.Equal(t, []string{"Reddit:golang", "YouTube:abc", "Reddit:rust"}, fetcher.calls)
	assert.Equal(t, []int{5, 5, 2}, fetcher.limits)
}

func TestCollectAppliesFilters(t *testing.T) {
	spec := ytABC
	spec.Filters = []feed.ConfigFilter{{Field: "title", Excludes: []string{"shorts"}}}
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc": {
			item("YouTube:abc", "talk", "2024-01-01T00:00:00Z"),
			item("YouTube:abc", "shorts-1", "2024-01-02T00:00:00Z"),
		},
	}}

	fetches := newAggregator(fetcher).Collect(context.Background(), []source.Spec{spec})

	require.Len(t, fetches, 1)
	assert.Equal(t, []string{"talk"}, titles(fetches[0].Items))
}

func TestFilterNewDropsIffNotNewer(t *testing.T) {
	w := ts("2024-01-01T00:00:00Z")
	prior := state.Watermarks{"YouTube:abc": w}
	items := []feed.Item{
		item("YouTube:abc", "after", "2024-01-01T00:00:01Z"),
		item("YouTube:abc", "equal", "2024-01-01T00:00:00Z"),
		item("YouTube:abc", "before", "2023-12-31T23:59:59Z"),
		item("Reddit:golang", "unseen", "2000-01-01T00:00:00Z"),
	}

	kept, next := FilterNew(items, prior)

	assert.Equal(t, []string{"after", "unseen"}, titles(kept))
	for _, it := range items {
		pw, ok := prior[it.Source]
		dropped := ok && !it.PublishedAt.After(pw)
		assert.Equal(t, !dropped, containsTitle(kept, it.Title), it.Title)
	}
	for key, pw := range prior {
		assert.False(t, next[key].Before(pw), "watermark for %s regressed", key)
	}
}

func TestFilterNewComparesAgainstPriorOnly(t *testing.T) {
	items := []feed.Item{
		item("YouTube:abc", "newest", "2024-01-03T00:00:00Z"),
		item("YouTube:abc", "middle", "2024-01-02T00:00:00Z"),
	}

	kept, next := FilterNew(items, state.Watermarks{"YouTube:abc": ts("2024-01-01T00:00:00Z")})

	assert.Equal(t, []string{"newest", "middle"}, titles(kept))
	assert.Equal(t, ts("2024-01-03T00:00:00Z"), next["YouTube:abc"])
}

func TestFilterNewDropsDuplicateURL(t *testing.T) {
	first := item("Reddit:golang", "post", "2024-01-02T00:00:00Z")
	repost := first
	repost.Title = "post again"
	other := item("Reddit:rust", "post", "2024-01-02T00:00:00Z")
	noURL1 := feed.Item{Title: "n1", Source: "Reddit:golang", PublishedAt: ts("2024-01-02T00:00:00Z")}
	noURL2 := feed.Item{Title: "n2", Source: "Reddit:golang", PublishedAt: ts("2024-01-02T00:00:00Z")}

	kept, _ := FilterNew([]feed.Item{first, repost, other, noURL1, noURL2}, nil)

	assert.Equal(t, []string{"post", "post", "n1", "n2"}, titles(kept))
	assert.Equal(t, "Reddit:rust", kept[1].Source)
}

func TestFilterNewSubMicrosecondTimestamp(t *testing.T) {
	published := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	it := feed.Item{Title: "fine", URL: "https://example.com/fine", Source: "RSS:feed", PublishedAt: published}

	kept, next := FilterNew([]feed.Item{it}, nil)
	require.Len(t, kept, 1)
	assert.True(t, published.Truncate(state.Precision).Equal(next["RSS:feed"]))

	kept, _ = FilterNew([]feed.Item{it}, state.Watermarks{"RSS:feed": published.Truncate(state.Precision)})
	assert.Empty(t, kept, "item at the persisted watermark must be dropped")
}

func TestAggregateIdempotentThroughFileStore(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc": {{
			Title:       "fine",
			URL:         "https://example.com/fine",
			Source:      "YouTube:abc",
			PublishedAt: time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC),
		}},
	}}
	agg := newAggregator(fetcher)
	specs := []source.Spec{ytABC}
	store := state.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	for run, want := range []int{1, 0, 0} {
		prior, err := store.Load(ctx)
		require.NoError(t, err)

		result := agg.Aggregate(ctx, specs, prior, true)
		assert.Len(t, result.Items, want, "run %d", run+1)
		require.NoError(t, store.Save(ctx, result.State))
	}
}

func TestFilterNewNilPrior(t *testing.T) {
	items := []feed.Item{item("YouTube:abc", "a1", "2024-01-01T00:00:00Z")}

	kept, next := FilterNew(items, nil)

	assert.Len(t, kept, 1)
	assert.Equal(t, state.Watermarks{"YouTube:abc": ts("2024-01-01T00:00:00Z")}, next)
}

func TestAggregateSortOrderWithTies(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.Item{
		"YouTube:abc": {
			item("YouTube:abc", "a-tie", "2024-01-02T00:00:00Z"),
			item("YouTube:abc", "a-old", "2024-01-01T00:00:00Z"),
		},
		"YouTube:xyz": {
			item("YouTube:xyz", "x-tie", "2024-01-02T00:00:00Z"),
			item("YouTube:xyz", "x-new", "2024-01-05T00:00:00Z"),
		},
	}}

	result := newAggregator(fetcher).Aggregate(context.Background(), []source.Spec{ytABC, ytXYZ}, nil, true)

	assert.Equal(t, []string{"x-new", "a-tie", "x-tie", "a-old"}, titles(result.Items))
	for i := 1; i < len(result.Items); i++ {
		assert.False(t, result.Items[i].PublishedAt.After(result.Items[i-1].PublishedAt))
	}
}

func containsTitle(items []feed.Item, title string) bool {
	for _, it := range items {
		if it.Title == title {
			return true
		}
	}
	return false
}
