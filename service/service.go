// Package service wires the store, collector, scheduler and optimizer into
// the monitor's command modes.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"perfmon/collector"
	"perfmon/config"
	"perfmon/eventbus"
	"perfmon/history"
	"perfmon/optimizer"
	"perfmon/scheduler"
	"perfmon/storage"
)

type Service struct {
	cfg       *config.Config
	store     storage.Store
	collector *collector.Collector
	history   *history.Ring[collector.MetricSample]
	scheduler *scheduler.Scheduler
	runner    *optimizer.Runner
	phases    []optimizer.Phase
	publisher *eventbus.Publisher
	log       *zap.Logger

	sensor   collector.Sensor
	progress []func(optimizer.Progress)
}

// Option customises a Service.
type Option func(*Service)

// WithSensor replaces the gopsutil host sensor.
func WithSensor(s collector.Sensor) Option {
	return func(svc *Service) { svc.sensor = s }
}

// WithPublisher uses p instead of dialling cfg.NatsURL.
func WithPublisher(p *eventbus.Publisher) Option {
	return func(svc *Service) { svc.publisher = p }
}

// WithProgress subscribes fn to optimization progress.
func WithProgress(fn func(optimizer.Progress)) Option {
	return func(svc *Service) { svc.progress = append(svc.progress, fn) }
}

// New validates cfg and opens the store. Both failures are fatal and
// returned before any background work begins.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	svc := &Service{cfg: cfg, log: log}
	for _, o := range opts {
		o(svc)
	}

	store, err := storage.NewSQLite(cfg.DBPath(), log)
	if err != nil {
		return nil, err
	}
	svc.store = store

	if svc.publisher == nil && cfg.NatsURL != "" {
		p, err := eventbus.NewPublisher(cfg.NatsURL, log)
		if err != nil {
			log.Warn("event bus unavailable, continuing without it", zap.Error(err))
		} else {
			svc.publisher = p
		}
	}

	if svc.sensor == nil {
		svc.sensor = collector.NewHostSensor(cfg.DiskPath)
	}
	svc.collector = collector.New(svc.sensor,
		collector.NewStoreCounter(log, cfg.DataStoreDirs()...),
		log,
		collector.WithWindow(cfg.SampleWindow),
		collector.WithTimeout(cfg.CollectTimeout),
	)
	svc.history = history.New[collector.MetricSample](cfg.HistorySize)

	schedOpts := []scheduler.Option{scheduler.WithHealthReports(store)}
	var runOpts []optimizer.Option
	for _, fn := range svc.progress {
		runOpts = append(runOpts, optimizer.WithProgress(fn))
	}
	if svc.publisher != nil {
		schedOpts = append(schedOpts, scheduler.WithSink(svc.publisher))
		runOpts = append(runOpts, optimizer.WithProgress(svc.publisher.PublishProgress))
	}
	svc.scheduler = scheduler.New(svc.collector, store, svc.history, log, schedOpts...)
	svc.runner = optimizer.NewRunner(store, log, runOpts...)
	svc.phases = optimizer.Phases(cfg.Phases, svc.history, log, cfg.PhaseDelay)

	return svc, nil
}

// VerificationResult reports one continuous-operation check.
type VerificationResult struct {
	Interval time.Duration
	Window   time.Duration
	Samples  int // samples persisted during the window
	Success  bool
}

// VerifyContinuousOperation runs the loop for window (or until ctx is done),
// stops it, and reports how many samples were persisted meanwhile.
func (s *Service) VerifyContinuousOperation(ctx context.Context, window time.Duration) (*VerificationResult, error) {
	before, err := s.store.CountSamples(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.scheduler.Start(s.cfg.Interval); err != nil {
		return nil, err
	}

	t := time.NewTimer(window)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
	}
	s.scheduler.Stop()

	// The count runs on a fresh context so the result is available even
	// when ctx ended the window.
	after, err := s.store.CountSamples(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	res := &VerificationResult{
		Interval: s.cfg.Interval,
		Window:   window,
		Samples:  after - before,
		Success:  after > before,
	}
	s.log.Info("continuous operation verified",
		zap.Int("samples", res.Samples),
		zap.Bool("success", res.Success),
	)
	return res, nil
}

// Optimize runs the configured phases once.
func (s *Service) Optimize(ctx context.Context) (*optimizer.OptimizationSummary, error) {
	return s.runner.Run(ctx, s.phases)
}

// CheckOnce collects, assesses and persists a single sample in the caller's
// goroutine.
func (s *Service) CheckOnce(ctx context.Context) (*collector.MetricSample, *collector.HealthReport, error) {
	sample, err := s.collector.Collect(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.AppendSample(ctx, sample); err != nil {
		return nil, nil, err
	}
	s.history.Append(*sample)

	report := collector.Assess(sample)
	if err := s.store.AppendHealthReport(ctx, report); err != nil {
		return sample, nil, fmt.Errorf("persist health report: %w", err)
	}
	return sample, report, nil
}

func (s *Service) Store() storage.Store                           { return s.store }
func (s *Service) History() *history.Ring[collector.MetricSample] { return s.history }
func (s *Service) Scheduler() *scheduler.Scheduler                { return s.scheduler }
func (s *Service) RunID() string                                  { return s.runner.ID() }

// Close stops monitoring and releases the store and event bus.
func (s *Service) Close() error {
	s.scheduler.Stop()

	err := s.store.Close()
	if s.publisher != nil {
		err = multierr.Append(err, s.publisher.Close())
	}
	return err
}
