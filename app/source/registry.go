package source

import (
	"net/http"

	"github.com/rs/zerolog"
)

type Options struct {
	HTTPClient     *http.Client
	UserAgent      string
	YouTubeFeedURL string
	Reddit         RedditOptions
}

// Build selects one fetcher per source kind. Kinds that cannot be served
// with the given options are left out and reported as ConfigError values.
func Build(opts Options, log zerolog.Logger) (Adapters, []error) {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if opts.UserAgent != "" {
		client = withUserAgent(client, opts.UserAgent)
	}

	adapters := Adapters{
		KindYouTube: NewYouTube(client, opts.YouTubeFeedURL, log),
		KindRSS:     NewRSS(client, log),
	}

	var problems []error
	if opts.Reddit.ClientID == "" || opts.Reddit.ClientSecret == "" {
		problems = append(problems, &ConfigError{Kind: KindReddit, Reason: "client id and secret are not configured"})
	} else {
		base := opts.HTTPClient
		if base == nil {
			base = http.DefaultClient
		}
		adapters[KindReddit] = NewReddit(base, opts.Reddit, log)
	}

	return adapters, problems
}
