package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/feed-digest/app/feed"
)

const (
	DefaultRedditAPIURL   = "https://oauth.reddit.com"
	DefaultRedditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditPermalinkBase   = "https://www.reddit.com"
	redditSummaryLimit    = 240
)

type RedditOptions struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	RatePerSec   float64 // <= 0 disables pacing
	APIURL       string
	TokenURL     string
}

// Reddit lists the hot posts of a subreddit using application-only OAuth.
// Spec.ID is the subreddit name.
type Reddit struct {
	client  *http.Client
	apiURL  string
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewReddit(base *http.Client, opts RedditOptions, log zerolog.Logger) *Reddit {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultRedditAPIURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultRedditTokenURL
	}

	// Reddit rejects requests without a descriptive User-Agent, token
	// requests included.
	httpClient := withUserAgent(base, opts.UserAgent)

	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	client := cc.Client(tokenCtx)
	client.Timeout = base.Timeout

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}

	return &Reddit{
		client:  client,
		apiURL:  strings.TrimRight(apiURL, "/"),
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With().Str("adapter", string(KindReddit)).Logger(),
	}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
	Selftext   string  `json:"selftext"`
	Thumbnail  string  `json:"thumbnail"`
}

func (r *Reddit) Fetch(ctx context.Context, spec Spec, limit int) ([]feed.Item, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/r/%s/hot?%s", r.apiURL, url.PathEscape(spec.ID), query.Encode())

	data, err := fetchBody(ctx, r.client, endpoint)
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	items := make([]feed.Item, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		items = append(items, r.toItem(child.Data, spec.Key()))
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	r.log.Info().Str("source", spec.Key()).Int("items", len(items)).Msg("Subreddit fetched")
	return items, nil
}

func (r *Reddit) toItem(post redditPost, source string) feed.Item {
	sec, frac := math.Modf(post.CreatedUTC)
	item := feed.Item{
		Title:       post.Title,
		URL:         redditPermalinkBase + post.Permalink,
		Source:      source,
		PublishedAt: time.Unix(int64(sec), int64(frac*1e9)).UTC().Truncate(time.Microsecond),
		Summary:     feed.Truncate(post.Selftext, redditSummaryLimit),
	}

	// Self posts carry placeholders like "self" or "default" instead of a URL.
	if strings.HasPrefix(post.Thumbnail, "http://") || strings.HasPrefix(post.Thumbnail, "https://") {
		item.Thumbnail = post.Thumbnail
	}

	return item
}
