package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const youtubeFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
  <title>Channel</title>
  <entry>
    <title>Video 1</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=1"/>
    <published>2024-01-03T00:00:00+00:00</published>
  </entry>
  <entry>
    <title>Video 2</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=2"/>
    <published>2024-01-02T00:00:00+00:00</published>
  </entry>
  <entry>
    <title>Video 3</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=3"/>
    <published>2024-01-01T00:00:00+00:00</published>
  </entry>
</feed>`

func TestYouTube_Fetch(t *testing.T) {
	var gotChannel, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChannel = r.URL.Query().Get("channel_id")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(youtubeFeed))
	}))
	defer server.Close()

	adapters, _ := Build(Options{UserAgent: "digest-test/1.0", YouTubeFeedURL: server.URL}, zerolog.Nop())

	spec := Spec{Kind: KindYouTube, ID: "UC123"}
	items, err := adapters[KindYouTube].Fetch(context.Background(), spec, 2)
	require.NoError(t, err)

	assert.Equal(t, "UC123", gotChannel)
	assert.Equal(t, "digest-test/1.0", gotUA)
	require.Len(t, items, 2)
	assert.Equal(t, "Video 1", items[0].Title)
	assert.Equal(t, "YouTube:UC123", items[0].Source)
	assert.Equal(t, "Video 2", items[1].Title)
}

func TestYouTube_FetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewYouTube(server.Client(), server.URL, zerolog.Nop())
	items, err := adapter.Fetch(context.Background(), Spec{Kind: KindYouTube, ID: "missing"}, 5)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 404")
	assert.Nil(t, items)
}

func TestRSS_FetchInvalidDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>not a feed</body></html>"))
	}))
	defer server.Close()

	adapter := NewRSS(server.Client(), zerolog.Nop())
	_, err := adapter.Fetch(context.Background(), Spec{Kind: KindRSS, ID: server.URL}, 5)

	assert.Error(t, err)
}

func TestRSS_FetchUsesNameInKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(youtubeFeed))
	}))
	defer server.Close()

	adapter := NewRSS(server.Client(), zerolog.Nop())
	items, err := adapter.Fetch(context.Background(), Spec{Kind: KindRSS, ID: server.URL, Name: "blog"}, 0)
	require.NoError(t, err)

	require.Len(t, items, 3)
	assert.Equal(t, "RSS:blog", items[0].Source)
}

func TestFetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(youtubeFeed))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := NewRSS(server.Client(), zerolog.Nop())
	_, err := adapter.Fetch(ctx, Spec{Kind: KindRSS, ID: server.URL}, 5)
	assert.Error(t, err)
}
