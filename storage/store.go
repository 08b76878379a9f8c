package storage

import (
	"context"

	"perfmon/collector"
	"perfmon/optimizer"
)

// Store abstracts an append-only persistence back-end. There is no update
// or delete: rows are written once and only read for diagnostics.
type Store interface {
	// AppendSample writes one metric row. Failures wrap apperr.ErrStorageWrite.
	AppendSample(ctx context.Context, s *MetricSample) error

	// AppendSummary writes one optimization summary row.
	AppendSummary(ctx context.Context, s *OptimizationSummary) error

	// AppendHealthReport writes one health report row.
	AppendHealthReport(ctx context.Context, r *HealthReport) error

	CountSamples(ctx context.Context) (int, error)
	CountSummaries(ctx context.Context) (int, error)
	CountHealthReports(ctx context.Context) (int, error)

	// RecentSamples returns up to n of the newest samples in insertion
	// order (oldest first).
	RecentSamples(ctx context.Context, n int) ([]MetricSample, error)

	// Close releases any resources (e.g. DB connections).
	Close() error
}

// The record types are re-exported here so callers do not need to import
// the producing packages just to talk to a Store.
type (
	MetricSample        = collector.MetricSample
	HealthReport        = collector.HealthReport
	OptimizationSummary = optimizer.OptimizationSummary
)
