package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

type fakeScheduler struct {
	running  bool
	report   *tasks.Report
	triggers int
}

func (f *fakeScheduler) Start(ctx context.Context) {}
func (f *fakeScheduler) Stop()                     {}
func (f *fakeScheduler) Running() bool             { return f.running }
func (f *fakeScheduler) Next() time.Time           { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

func (f *fakeScheduler) Trigger() bool {
	if f.running {
		return false
	}
	f.triggers++
	return true
}

func (f *fakeScheduler) LastReport() (tasks.Report, bool) {
	if f.report == nil {
		return tasks.Report{}, false
	}
	return *f.report, true
}

const testKey = "secret-key"

func newTestServer(t *testing.T, sched *fakeScheduler, store state.Store, key string) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	tasks.NewMetrics(reg)
	specs := []source.Spec{
		{Kind: source.KindYouTube, ID: "abc"},
		{Kind: source.KindReddit, ID: "golang", Limit: 3},
	}
	handler := NewHandler(sched, store, func() []source.Spec { return specs }, reg, "test", zerolog.Nop())
	return NewServer(handler, key)
}

func do(t *testing.T, h http.Handler, method, path string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeScheduler{}, nil, "")

	rec, body := do(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.EqualValues(t, 2, body["sources"])
	assert.Equal(t, "2030-01-01T00:00:00Z", body["next_run_at"])
}

func TestStats(t *testing.T) {
	sched := &fakeScheduler{}
	srv := newTestServer(t, sched, nil, "")

	_, body := do(t, srv, http.MethodGet, "/stats", nil)
	assert.Nil(t, body["last_run"])

	sched.report = &tasks.Report{ID: "run-1", Fetched: 7, Delivered: 3, Incremental: true}
	_, body = do(t, srv, http.MethodGet, "/stats", nil)
	last := body["last_run"].(map[string]any)
	assert.Equal(t, "run-1", last["id"])
	assert.EqualValues(t, 7, last["fetched"])
	assert.EqualValues(t, 3, last["delivered"])
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeScheduler{}, nil, "")

	rec, _ := do(t, srv, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "feed_digest_runs_total")
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	srv := newTestServer(t, &fakeScheduler{}, nil, "")

	rec, _ := do(t, srv, http.MethodPost, "/api/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIAuth(t *testing.T) {
	srv := newTestServer(t, &fakeScheduler{}, nil, testKey)

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header", map[string]string{"X-API-Key": testKey}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer " + testKey}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, srv, http.MethodGet, "/api/sources", tt.header)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAPIListSources(t *testing.T) {
	srv := newTestServer(t, &fakeScheduler{}, nil, testKey)

	_, body := do(t, srv, http.MethodGet, "/api/sources", map[string]string{"X-API-Key": testKey})

	assert.EqualValues(t, 2, body["total"])
	sources := body["sources"].([]any)
	assert.Equal(t, "YouTube:abc", sources[0].(map[string]any)["key"])
	assert.EqualValues(t, 3, sources[1].(map[string]any)["limit"])
}

func TestAPIWatermarks(t *testing.T) {
	auth := map[string]string{"X-API-Key": testKey}

	rec, _ := do(t, newTestServer(t, &fakeScheduler{}, nil, testKey), http.MethodGet, "/api/watermarks", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store := state.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(context.Background(), state.Watermarks{
		"YouTube:abc": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	rec, body := do(t, newTestServer(t, &fakeScheduler{}, store, testKey), http.MethodGet, "/api/watermarks", auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, "2024-01-02T00:00:00Z", body["watermarks"].(map[string]any)["YouTube:abc"])
}

func TestAPITriggerRun(t *testing.T) {
	sched := &fakeScheduler{}
	srv := newTestServer(t, sched, nil, testKey)
	auth := map[string]string{"X-API-Key": testKey}

	rec, _ := do(t, srv, http.MethodPost, "/api/run", auth)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, sched.triggers)

	sched.running = true
	rec, _ = do(t, srv, http.MethodPost, "/api/run", auth)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, sched.triggers)
}
