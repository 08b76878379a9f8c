package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"perfmon/apperr"
	"perfmon/collector"
)

func openTestStore(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "databases", "performance_monitoring.db")
	s, err := NewSQLite(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sample(ts time.Time, cpu float64) *MetricSample {
	return &MetricSample{
		Timestamp:           ts,
		CPUPercent:          cpu,
		MemoryPercent:       41.5,
		DiskPercent:         63.25,
		NetworkIOBytes:      123456789,
		ProcessCount:        212,
		DatabaseConnections: 7,
		HealthScore:         collector.Score(cpu, 41.5, 63.25, 7),
	}
}

func TestNewSQLite_CreatesSchemaIdempotently(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendSample(ctx, sample(time.Now(), 10)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.CountSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rows survive a reopen")
}

func TestNewSQLite_UnwritableLocation(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	_, err := NewSQLite(filepath.Join(blocker, "databases", "x.db"), zap.NewNop())
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
}

func TestAppendSample_RoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.UTC)
	in := sample(ts, 22.75)

	require.NoError(t, s.AppendSample(ctx, in))

	n, err := s.CountSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.RecentSamples(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *in, got[0])
}

func TestRecentSamples_NewestLastAndBounded(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendSample(ctx, sample(base.Add(time.Duration(i)*time.Second), float64(i))))
	}

	got, err := s.RecentSamples(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{got[0].CPUPercent, got[1].CPUPercent, got[2].CPUPercent})
}

func TestAppendSummary(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	start := time.Now()

	require.NoError(t, s.AppendSummary(ctx, &OptimizationSummary{
		OptimizationID:    "run-1",
		StartTime:         start,
		EndTime:           start.Add(2 * time.Second),
		DurationSeconds:   2,
		InitialEfficiency: 86.3,
		FinalEfficiency:   100,
		Improvement:       13.7,
		PhasesCompleted:   4,
	}))

	n, err := s.CountSummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	samples, err := s.CountSamples(ctx)
	require.NoError(t, err)
	assert.Zero(t, samples)
}

func TestAppendHealthReport(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	report := collector.Assess(sample(time.Now(), 95))

	require.NoError(t, s.AppendHealthReport(ctx, report))

	n, err := s.CountHealthReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var recs string
	require.NoError(t, s.db.QueryRow(`SELECT recommendations FROM health_reports`).Scan(&recs))
	assert.Contains(t, recs, "High CPU usage detected")
}

func TestAppend_AfterCloseIsStorageWrite(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Close())

	err := s.AppendSample(context.Background(), sample(time.Now(), 1))
	assert.ErrorIs(t, err, apperr.ErrStorageWrite)
}

func TestAppend_ConcurrentProducers(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, s.AppendSample(ctx, sample(time.Now(), float64(i))))
			}
		}()
	}
	wg.Wait()

	n, err := s.CountSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}
