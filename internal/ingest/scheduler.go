package ingest

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lox/huntstack/internal/metrics"
	"github.com/lox/huntstack/internal/migration"
	"github.com/lox/huntstack/internal/narrative"
)

const (
	DefaultWarmInterval    = 30 * time.Minute
	DefaultSummaryInterval = 24 * time.Hour
)

// PushWarmer computes push factors, filling the weather caches on the way.
type PushWarmer interface {
	PushFactors(ctx context.Context, states []string) (*migration.Report, error)
}

// SummaryRefresher regenerates a state's weekly outlook.
type SummaryRefresher interface {
	Enabled() bool
	Refresh(ctx context.Context, state string) (*narrative.Summary, error)
}

type SchedulerOptions struct {
	States          []string
	WarmInterval    time.Duration
	SummaryInterval time.Duration
	Clock           clockwork.Clock
}

// Scheduler keeps weather caches and weekly summaries warm for a fixed set
// of states.
type Scheduler struct {
	push            PushWarmer
	summaries       SummaryRefresher
	states          []string
	warmInterval    time.Duration
	summaryInterval time.Duration
	clock           clockwork.Clock
	logger          *zap.Logger
}

// NewScheduler returns a scheduler. summaries may be nil, in which case only
// push factors are warmed.
func NewScheduler(push PushWarmer, summaries SummaryRefresher, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if opts.WarmInterval <= 0 {
		opts.WarmInterval = DefaultWarmInterval
	}
	if opts.SummaryInterval <= 0 {
		opts.SummaryInterval = DefaultSummaryInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		push:            push,
		summaries:       summaries,
		states:          migration.NormalizeStates(opts.States),
		warmInterval:    opts.WarmInterval,
		summaryInterval: opts.SummaryInterval,
		clock:           opts.Clock,
		logger:          logger.Named("scheduler"),
	}
}

// Run warms once immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.warmPushFactors(ctx)
	s.refreshSummaries(ctx)

	warmTicker := s.clock.NewTicker(s.warmInterval)
	summaryTicker := s.clock.NewTicker(s.summaryInterval)
	defer warmTicker.Stop()
	defer summaryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return
		case <-warmTicker.Chan():
			s.warmPushFactors(ctx)
		case <-summaryTicker.Chan():
			s.refreshSummaries(ctx)
		}
	}
}

func (s *Scheduler) warmPushFactors(ctx context.Context) {
	report, err := s.push.PushFactors(ctx, s.states)
	if err != nil {
		metrics.SchedulerRunsTotal.WithLabelValues("push_factors", "error").Inc()
		s.logger.Warn("warm push factors", zap.Error(err))
		return
	}
	metrics.SchedulerRunsTotal.WithLabelValues("push_factors", "ok").Inc()
	s.logger.Info("warmed push factors",
		zap.Int("states", len(report.PushFactors)),
		zap.Int("overall", report.OverallPushScore))
}

func (s *Scheduler) refreshSummaries(ctx context.Context) {
	if s.summaries == nil || !s.summaries.Enabled() {
		return
	}
	for _, state := range s.states {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.summaries.Refresh(ctx, state); err != nil {
			metrics.SchedulerRunsTotal.WithLabelValues("summary", "error").Inc()
			s.logger.Warn("refresh summary", zap.String("state", state), zap.Error(err))
			continue
		}
		metrics.SchedulerRunsTotal.WithLabelValues("summary", "ok").Inc()
	}
}
