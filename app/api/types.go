package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

type Handler struct {
	scheduler tasks.TaskSchedulerInterface
	store     state.Store
	sources   func() []source.Spec
	gatherer  prometheus.Gatherer
	version   string
	startedAt time.Time
	log       zerolog.Logger
}
