package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lysyi3m/feed-digest/app/digest"
	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/notify"
	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
)

// Report summarizes one digest run.
type Report struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Sources     int           `json:"sources"`
	Fetched     int           `json:"fetched"`
	Failed      int           `json:"failed"`
	Failures    []Failure     `json:"failures,omitempty"`
	Delivered   int           `json:"delivered"`
	Incremental bool          `json:"incremental"`
	Sink        string        `json:"sink,omitempty"`
	DeliveryErr string        `json:"delivery_error,omitempty"`
}

type Failure struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// SpecsFunc returns the sources for the next run. It is called once per run
// so sources-file reloads take effect without a restart.
type SpecsFunc func() []source.Spec

type DigestTask struct {
	Task
	aggregator *digest.Aggregator
	store      state.Store
	notifier   notify.Notifier
	specs      SpecsFunc
	metrics    *Metrics
	log        zerolog.Logger
}

// NewDigestTask creates the digest run. A nil store turns incremental mode
// off.
func NewDigestTask(aggregator *digest.Aggregator, store state.Store, notifier notify.Notifier,
	specs SpecsFunc, metrics *Metrics, log zerolog.Logger) *DigestTask {
	return &DigestTask{
		Task:       NewTask(TaskTypeDigest),
		aggregator: aggregator,
		store:      store,
		notifier:   notifier,
		specs:      specs,
		metrics:    metrics,
		log:        log.With().Str("component", "digest").Logger(),
	}
}

// Execute runs the pipeline once. Every failure is logged and reflected in
// the report; none of them stops the run.
func (t *DigestTask) Execute(ctx context.Context) Report {
	t.ID = NewTask(TaskTypeDigest).ID
	t.Start()

	specs := t.specs()
	incremental := t.store != nil
	report := Report{
		ID:          t.ID,
		StartedAt:   *t.StartedAt,
		Sources:     len(specs),
		Incremental: incremental,
	}
	log := t.log.With().Str("run_id", t.ID).Logger()

	if incremental {
		log.Info().Str("state", t.store.String()).Msg("Incremental mode")
	} else {
		log.Info().Msg("Full mode")
	}

	prior := t.loadState(ctx, log)

	result := t.aggregator.Aggregate(ctx, specs, prior, incremental)
	report.Fetched = result.Fetched()
	for _, f := range result.Failed() {
		log.Warn().Err(f.Err).Str("source", f.Spec.Key()).Msg("Source fetch failed")
		report.Failures = append(report.Failures, Failure{
			Source: f.Spec.Key(),
			Kind:   string(f.Spec.Kind),
			Error:  f.Err.Error(),
		})
	}
	report.Failed = len(report.Failures)

	if incremental {
		if len(result.Items) == 0 {
			log.Info().Msg("No new items since last run")
		}
		if err := t.store.Save(ctx, result.State); err != nil {
			log.Warn().Err(err).Str("state", t.store.String()).Msg("Failed to save state")
		}
	}

	log.Info().Int("sources", len(specs)).Int("fetched", report.Fetched).Int("items", len(result.Items)).Msg("Aggregation completed")

	if len(result.Items) == 0 {
		log.Warn().Msg("No items to deliver, check source configuration")
	} else {
		report.Sink = t.notifier.Name()
		t.deliver(ctx, result.Items, &report, log)
	}

	report.Duration = t.GetDuration()
	t.metrics.observe(report)

	log.Info().
		Dur("duration", report.Duration).
		Int("delivered", report.Delivered).
		Int("failed_sources", report.Failed).
		Msg("Task completed")

	return report
}

func (t *DigestTask) loadState(ctx context.Context, log zerolog.Logger) state.Watermarks {
	if t.store == nil {
		return nil
	}

	prior, err := t.store.Load(ctx)
	if err == nil {
		return prior
	}

	var corrupt *state.CorruptError
	if errors.As(err, &corrupt) && corrupt.Key == "" {
		log.Warn().Err(err).Msg("State unreadable, treating all items as new")
	} else if errors.As(err, &corrupt) {
		log.Debug().Err(err).Int("usable", len(prior)).Msg("Skipped invalid state entries")
	} else {
		log.Warn().Err(err).Msg("Failed to load state, treating all items as new")
	}

	if prior == nil {
		prior = state.Watermarks{}
	}
	return prior
}

func (t *DigestTask) deliver(ctx context.Context, items []feed.Item, report *Report, log zerolog.Logger) {
	if err := t.notifier.Notify(ctx, items); err != nil {
		log.Error().Err(err).Str("sink", t.notifier.Name()).Msg("Delivery failed")
		report.DeliveryErr = err.Error()
		return
	}
	report.Delivered = len(items)
}
