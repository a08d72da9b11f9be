package source

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/feed"
)

const DefaultYouTubeFeedURL = "https://www.youtube.com/feeds/videos.xml"

// FeedAdapter fetches an RSS or Atom document and keeps the first limit
// entries in document order.
type FeedAdapter struct {
	client *http.Client
	parser *feed.Parser
	urlFor func(Spec) string
	log    zerolog.Logger
}

// NewYouTube returns an adapter for channel upload feeds. Spec.ID is the
// channel id.
func NewYouTube(client *http.Client, baseURL string, log zerolog.Logger) *FeedAdapter {
	if baseURL == "" {
		baseURL = DefaultYouTubeFeedURL
	}
	return &FeedAdapter{
		client: client,
		parser: feed.NewParser(),
		urlFor: func(spec Spec) string {
			return baseURL + "?channel_id=" + url.QueryEscape(spec.ID)
		},
		log: log.With().Str("adapter", string(KindYouTube)).Logger(),
	}
}

// NewRSS returns an adapter for arbitrary feeds. Spec.ID is the feed URL.
func NewRSS(client *http.Client, log zerolog.Logger) *FeedAdapter {
	return &FeedAdapter{
		client: client,
		parser: feed.NewParser(),
		urlFor: func(spec Spec) string { return spec.ID },
		log:    log.With().Str("adapter", string(KindRSS)).Logger(),
	}
}

func (a *FeedAdapter) Fetch(ctx context.Context, spec Spec, limit int) ([]feed.Item, error) {
	data, err := fetchBody(ctx, a.client, a.urlFor(spec))
	if err != nil {
		return nil, err
	}

	_, items, err := a.parser.Run(data, spec.Key())
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	a.log.Info().Str("source", spec.Key()).Int("items", len(items)).Msg("Feed fetched")
	return items, nil
}
