// Package scheduler runs the collector on a fixed period until stopped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"perfmon/apperr"
	"perfmon/collector"
	"perfmon/history"
)

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SampleCollector produces one sample per call. *collector.Collector
// satisfies it.
type SampleCollector interface {
	Collect(ctx context.Context) (*collector.MetricSample, error)
}

// SampleWriter persists samples. storage.Store satisfies it.
type SampleWriter interface {
	AppendSample(ctx context.Context, s *collector.MetricSample) error
}

// ReportWriter persists health reports. storage.Store satisfies it.
type ReportWriter interface {
	AppendHealthReport(ctx context.Context, r *collector.HealthReport) error
}

// Sink receives every persisted sample, e.g. an event bus publisher.
// Errors are logged and otherwise ignored.
type Sink interface {
	PublishSample(ctx context.Context, s *collector.MetricSample) error
}

// Scheduler owns the periodic monitoring loop. Construct one per process and
// share it by reference.
type Scheduler struct {
	collector SampleCollector
	store     SampleWriter
	reports   ReportWriter
	history   *history.Ring[collector.MetricSample]
	sinks     []Sink
	log       *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithSink adds a sink that sees every persisted sample.
func WithSink(s Sink) Option {
	return func(sc *Scheduler) { sc.sinks = append(sc.sinks, s) }
}

// WithHealthReports assesses each persisted sample and writes the report.
func WithHealthReports(w ReportWriter) Option {
	return func(sc *Scheduler) { sc.reports = w }
}

// New returns an idle scheduler.
func New(c SampleCollector, store SampleWriter, h *history.Ring[collector.MetricSample], log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		collector: c,
		store:     store,
		history:   h,
		log:       log.With(zap.String("component", "scheduler")),
		state:     Idle,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins the loop with the given wait between cycles. Calling Start
// while running only logs a warning. A non-positive interval is rejected
// with ErrInvalidConfiguration before anything starts.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", apperr.ErrInvalidConfiguration, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		s.log.Warn("monitoring already active")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Running

	go s.loop(ctx, interval, s.done)
	s.log.Info("monitoring started", zap.Duration("interval", interval))
	return nil
}

// Stop ends the loop and blocks until it has exited. A cycle already in
// progress finishes first; no sample is collected after Stop returns.
// Stop on an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	// The lock is held across the join so a concurrent Start cannot launch a
	// second loop while the first is still finishing its cycle.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Idle {
		return
	}
	s.cancel()
	<-s.done

	s.state = Idle
	s.cancel, s.done = nil, nil
	s.log.Info("monitoring stopped")
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running is shorthand for State() == Running.
func (s *Scheduler) Running() bool { return s.State() == Running }

// History exposes the in-memory ring the loop appends to.
func (s *Scheduler) History() *history.Ring[collector.MetricSample] { return s.history }

// loop runs cycles until ctx is cancelled. The wait starts after a cycle
// ends, so the effective period is interval plus collection latency. That
// drift is accepted; the loop does not try to catch up.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Check again: a Stop racing with the timer must win.
		if ctx.Err() != nil {
			return
		}
		s.cycle()
		timer.Reset(interval)
	}
}

// cycle is collect, persist, remember, publish. It runs on a
// context that Stop does not cancel so a started cycle is never left half
// written; the collector's own timeout bounds it.
func (s *Scheduler) cycle() {
	ctx := context.Background()

	sample, err := s.collector.Collect(ctx)
	if err != nil {
		s.log.Error("collection failed, skipping cycle", zap.Error(err))
		return
	}

	if err := s.store.AppendSample(ctx, sample); err != nil {
		s.log.Error("failed to persist sample, dropping it", zap.Error(err))
		return
	}
	if s.history != nil {
		s.history.Append(*sample)
	}

	if s.reports != nil {
		report := collector.Assess(sample)
		if err := s.reports.AppendHealthReport(ctx, report); err != nil {
			s.log.Error("failed to persist health report", zap.Error(err))
		}
	}

	for _, sink := range s.sinks {
		if err := sink.PublishSample(ctx, sample); err != nil {
			s.log.Warn("sink publish failed", zap.Error(err))
		}
	}

	s.log.Debug("cycle complete",
		zap.Time("timestamp", sample.Timestamp),
		zap.Float64("health", sample.HealthScore),
	)
}
