package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const runTimeout = 10 * time.Minute

// Scheduler runs a task on a cron schedule, never more than one run at a
// time. Runs that would overlap are skipped.
type Scheduler struct {
	task     TaskInterface
	schedule cron.Schedule
	cron     *cron.Cron
	entry    cron.EntryID
	log      zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	mu   sync.Mutex
	last *Report
}

// NewScheduler parses spec, which accepts standard five-field expressions
// and descriptors such as "@hourly" or "@every 30m".
func NewScheduler(spec string, task TaskInterface, log zerolog.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	log = log.With().Str("component", "scheduler").Logger()
	logger := cronLogger{log: log}

	return &Scheduler{
		task:     task,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(parser), cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		log:      log,
	}, nil
}

// Start runs the task once immediately and then on every tick of the
// schedule until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.entry = s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.run(TriggerSchedule) }))
	s.cron.Start()

	s.log.Info().Time("next", s.Next()).Msg("Scheduler started")
	s.Trigger()
}

func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// Trigger starts a run in the background. It returns false when a run is
// already in progress.
func (s *Scheduler) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.execute(TriggerManual)
	}()
	return true
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

type trigger string

const (
	TriggerSchedule trigger = "schedule"
	TriggerManual   trigger = "manual"
)

func (s *Scheduler) run(by trigger) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Str("trigger", string(by)).Msg("Previous run still in progress, skipping")
		return
	}
	defer s.running.Store(false)
	s.execute(by)
}

func (s *Scheduler) execute(by trigger) {
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, runTimeout)
	defer cancel()

	s.log.Debug().Str("type", string(s.task.GetType())).Str("trigger", string(by)).Msg("Run started")
	report := s.task.Execute(ctx)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
