package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

// NewHandler creates the API handler. store is nil when incremental mode is
// off.
func NewHandler(scheduler tasks.TaskSchedulerInterface, store state.Store,
	sources func() []source.Spec, gatherer prometheus.Gatherer, version string, log zerolog.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		store:     store,
		sources:   sources,
		gatherer:  gatherer,
		version:   version,
		startedAt: time.Now(),
		log:       log.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"running":   h.scheduler.Running(),
		"sources":   len(h.sources()),
	}

	if next := h.scheduler.Next(); !next.IsZero() {
		health["next_run_at"] = next.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	report, ok := h.scheduler.LastReport()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"last_run": nil,
			"running":  h.scheduler.Running(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"last_run": report,
		"running":  h.scheduler.Running(),
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	specs := h.sources()

	sources := make([]map[string]interface{}, 0, len(specs))
	for _, spec := range specs {
		sources = append(sources, map[string]interface{}{
			"key":     spec.Key(),
			"kind":    spec.Kind,
			"id":      spec.ID,
			"limit":   spec.Limit,
			"filters": len(spec.Filters),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIGetWatermarks(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Incremental mode is disabled"})
		return
	}

	marks, err := h.store.Load(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Str("state", h.store.String()).Msg("Failed to load watermarks")
	}

	watermarks := make(map[string]string, len(marks))
	for _, key := range marks.Keys() {
		watermarks[key] = marks[key].Format(time.RFC3339Nano)
	}

	response := gin.H{
		"state":      h.store.String(),
		"watermarks": watermarks,
		"total":      len(watermarks),
	}
	if err != nil {
		response["warning"] = err.Error()
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APITriggerRun(c *gin.Context) {
	if !h.scheduler.Trigger() {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Run in progress",
			"message": "A digest run is already in progress",
		})
		return
	}

	h.log.Info().Str("client", c.ClientIP()).Msg("Manual run triggered")
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Digest run started",
	})
}
