package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"perfmon/apperr"
	"perfmon/collector"
	"perfmon/history"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCollector struct {
	calls   atomic.Int64
	failOn  map[int64]bool
	gate    chan struct{} // when non-nil, each Collect waits for a receive
	entered chan struct{}
}

func (f *fakeCollector) Collect(context.Context) (*collector.MetricSample, error) {
	n := f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.failOn[n] {
		return nil, fmt.Errorf("%w: fake", apperr.ErrSensorUnavailable)
	}
	return &collector.MetricSample{Timestamp: time.Now(), CPUPercent: float64(n), HealthScore: 50}, nil
}

type memStore struct {
	mu      sync.Mutex
	samples []*collector.MetricSample
	reports []*collector.HealthReport
	failOn  map[int]bool
	attempt int
}

func (m *memStore) AppendSample(_ context.Context, s *collector.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	if m.failOn[m.attempt] {
		return fmt.Errorf("%w: fake", apperr.ErrStorageWrite)
	}
	m.samples = append(m.samples, s)
	return nil
}

func (m *memStore) AppendHealthReport(_ context.Context, r *collector.HealthReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

type recordingSink struct {
	mu   sync.Mutex
	seen int
	err  error
}

func (r *recordingSink) PublishSample(context.Context, *collector.MetricSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen++
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen
}

func newTestScheduler(c SampleCollector, store *memStore, opts ...Option) (*Scheduler, *history.Ring[collector.MetricSample]) {
	h := history.New[collector.MetricSample](100)
	return New(c, store, h, zap.NewNop(), opts...), h
}

func TestStart_RejectsNonPositiveInterval(t *testing.T) {
	s, _ := newTestScheduler(&fakeCollector{}, &memStore{})

	for _, d := range []time.Duration{0, -time.Second} {
		err := s.Start(d)
		assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)
		assert.Equal(t, Idle, s.State())
	}
}

func TestScheduler_SampleCountMatchesElapsedIntervals(t *testing.T) {
	store := &memStore{}
	s, h := newTestScheduler(&fakeCollector{}, store)
	const (
		interval = 50 * time.Millisecond
		k        = 4
	)

	require.NoError(t, s.Start(interval))
	assert.Equal(t, Running, s.State())
	time.Sleep(k * interval)
	s.Stop()

	assert.Equal(t, Idle, s.State())
	assert.InDelta(t, k, store.count(), 1)
	assert.Equal(t, store.count(), h.Len())
}

func TestStop_NoCollectionAfterReturn(t *testing.T) {
	fc := &fakeCollector{}
	store := &memStore{}
	s, _ := newTestScheduler(fc, store)

	require.NoError(t, s.Start(10*time.Millisecond))
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	calls := fc.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, fc.calls.Load())
	assert.Equal(t, int(calls), store.count())
}

func TestStart_TwiceRunsSingleLoop(t *testing.T) {
	store := &memStore{}
	s, _ := newTestScheduler(&fakeCollector{}, store)
	const interval = 50 * time.Millisecond

	require.NoError(t, s.Start(interval))
	require.NoError(t, s.Start(interval))
	time.Sleep(4 * interval)
	s.Stop()

	assert.LessOrEqual(t, store.count(), 5, "a second loop would roughly double the rate")
}

func TestStop_WaitsForInFlightCycle(t *testing.T) {
	fc := &fakeCollector{gate: make(chan struct{}), entered: make(chan struct{})}
	store := &memStore{}
	s, h := newTestScheduler(fc, store)

	require.NoError(t, s.Start(time.Hour))
	<-fc.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	fc.gate <- struct{}{}
	<-stopped

	assert.Equal(t, 1, store.count(), "the in-flight sample is fully appended")
	assert.Equal(t, 1, h.Len())
}

func TestStop_InterruptsWait(t *testing.T) {
	fc := &fakeCollector{entered: make(chan struct{}, 1)}
	s, _ := newTestScheduler(fc, &memStore{})

	require.NoError(t, s.Start(time.Hour))
	<-fc.entered

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), time.Second)
}

func TestStop_IdleIsNoop(t *testing.T) {
	s, _ := newTestScheduler(&fakeCollector{}, &memStore{})
	s.Stop()
	assert.Equal(t, Idle, s.State())
}

func TestScheduler_Restart(t *testing.T) {
	fc := &fakeCollector{entered: make(chan struct{}, 2)}
	store := &memStore{}
	s, _ := newTestScheduler(fc, store)

	require.NoError(t, s.Start(time.Hour))
	<-fc.entered
	s.Stop()

	require.NoError(t, s.Start(time.Hour))
	<-fc.entered
	s.Stop()

	assert.Equal(t, 2, store.count())
}

func TestCycle_SensorFailureSkipsAndContinues(t *testing.T) {
	fc := &fakeCollector{failOn: map[int64]bool{1: true, 3: true}}
	store := &memStore{}
	s, h := newTestScheduler(fc, store)

	require.NoError(t, s.Start(5*time.Millisecond))
	require.Eventually(t, func() bool { return fc.calls.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	calls := int(fc.calls.Load())
	failures := 0
	for n := 1; n <= calls; n++ {
		if fc.failOn[int64(n)] {
			failures++
		}
	}
	assert.Equal(t, calls-failures, store.count())
	assert.Equal(t, store.count(), h.Len())
}

func TestCycle_WriteFailureDropsSample(t *testing.T) {
	fc := &fakeCollector{}
	store := &memStore{failOn: map[int]bool{2: true}}
	sink := &recordingSink{}
	s, h := newTestScheduler(fc, store, WithSink(sink))

	require.NoError(t, s.Start(5*time.Millisecond))
	require.Eventually(t, func() bool { return store.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, int(fc.calls.Load())-1, store.count())
	assert.Equal(t, store.count(), h.Len())
	assert.Equal(t, store.count(), sink.count(), "dropped samples are not published")
	for _, sample := range h.Recent(0) {
		assert.NotEqual(t, 2.0, sample.CPUPercent)
	}
}

func TestCycle_HealthReportsAndSinks(t *testing.T) {
	fc := &fakeCollector{entered: make(chan struct{}, 1)}
	store := &memStore{}
	sink := &recordingSink{err: errors.New("bus down")}
	s, _ := newTestScheduler(fc, store, WithHealthReports(store), WithSink(sink))

	require.NoError(t, s.Start(time.Hour))
	<-fc.entered
	s.Stop()

	require.Len(t, store.reports, 1)
	assert.Equal(t, collector.StatusWarning, store.reports[0].Overall)
	assert.Equal(t, 1, sink.count(), "sink errors do not stop the cycle")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "state(7)", State(7).String())
}
