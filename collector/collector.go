package collector

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"perfmon/apperr"
)

const (
	// DefaultWindow lets the CPU sensor integrate before reporting.
	DefaultWindow = time.Second
	// DefaultTimeout bounds a whole collection, window included.
	DefaultTimeout = DefaultWindow + 5*time.Second
)

// Counter reports how many local data stores are discoverable.
type Counter interface {
	Count() (int, error)
}

// Collector produces exactly one MetricSample per Collect call.
type Collector struct {
	sensor  Sensor
	counter Counter
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu        sync.Mutex
	lastNetIO uint64
}

// Option customises a Collector.
type Option func(*Collector)

// WithWindow sets the sampling window handed to the sensor.
func WithWindow(d time.Duration) Option {
	return func(c *Collector) { c.window = d }
}

// WithTimeout bounds a single collection; expiry is ErrSensorUnavailable.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) { c.timeout = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New returns a ready-to-use collector.
func New(sensor Sensor, counter Counter, log *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		sensor:  sensor,
		counter: counter,
		window:  DefaultWindow,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     log.With(zap.String("component", "collector")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type readResult struct {
	reading Reading
	err     error
}

// Collect blocks for the sampling window and returns a fully populated
// sample. Any sensor error or a timeout is wrapped in ErrSensorUnavailable.
func (c *Collector) Collect(ctx context.Context) (*MetricSample, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The read runs on its own goroutine so that a sensor which ignores ctx
	// still cannot hold the caller past the timeout.
	done := make(chan readResult, 1)
	go func() {
		r, err := c.sensor.Read(ctx, c.window)
		done <- readResult{reading: r, err: err}
	}()

	var res readResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: read timed out after %s: %v", apperr.ErrSensorUnavailable, c.timeout, ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrSensorUnavailable, res.err)
	}

	stores := 0
	if c.counter != nil {
		n, err := c.counter.Count()
		if err != nil {
			c.log.Error("data store scan failed", zap.Error(err))
		} else {
			stores = n
		}
	}

	r := res.reading
	s := &MetricSample{
		Timestamp:           c.now(),
		CPUPercent:          clampPercent(r.CPUPercent),
		MemoryPercent:       clampPercent(r.MemoryPercent),
		DiskPercent:         clampPercent(r.DiskPercent),
		NetworkIOBytes:      c.monotonicNetIO(r.NetworkIOBytes),
		ProcessCount:        max(0, r.ProcessCount),
		DatabaseConnections: stores,
	}
	s.HealthScore = Score(s.CPUPercent, s.MemoryPercent, s.DiskPercent, s.DatabaseConnections)

	c.log.Debug("sample collected",
		zap.Float64("cpu", s.CPUPercent),
		zap.Float64("memory", s.MemoryPercent),
		zap.Float64("disk", s.DiskPercent),
		zap.Float64("health", s.HealthScore),
	)
	return s, nil
}

// monotonicNetIO keeps the counter non-decreasing across a session. An
// interface going away can make the summed counter drop.
func (c *Collector) monotonicNetIO(v uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < c.lastNetIO {
		c.log.Warn("network counter went backwards, holding previous value",
			zap.Uint64("read", v), zap.Uint64("previous", c.lastNetIO))
		return c.lastNetIO
	}
	c.lastNetIO = v
	return v
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}
