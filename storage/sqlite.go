package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"perfmon/apperr"
	"perfmon/collector"
)

// timeLayout is how timestamps are stored: ISO-8601, UTC, nanoseconds.
const timeLayout = time.RFC3339Nano

type SQLite struct {
	db  *sql.DB
	log *zap.Logger

	// mu serialises appends so more than one producer can share the store.
	mu sync.Mutex
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the SQLite file at dbPath, creating the parent
// directory if needed, and runs the migration that creates the tables if they
// do not exist. Every failure wraps apperr.ErrStorageUnavailable.
// The caller must call Close() when the program shuts down.
func NewSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %v", apperr.ErrStorageUnavailable, err)
	}

	// The modernc.org driver is pure-go and works without CGO.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %v", apperr.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %v", apperr.ErrStorageUnavailable, err)
	}

	s := &SQLite{db: db, log: log.With(zap.String("component", "storage"))}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: run migration: %v", apperr.ErrStorageUnavailable, err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS metrics (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp            TEXT NOT NULL,
    cpu_percent          REAL NOT NULL,
    memory_percent       REAL NOT NULL,
    disk_usage_percent   REAL NOT NULL,
    network_io_bytes     INTEGER NOT NULL,
    process_count        INTEGER NOT NULL,
    database_connections INTEGER NOT NULL,
    system_health_score  REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS optimization_summaries (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    optimization_id    TEXT NOT NULL,
    start_time         TEXT NOT NULL,
    end_time           TEXT NOT NULL,
    duration_seconds   REAL NOT NULL,
    initial_efficiency REAL NOT NULL,
    final_efficiency   REAL NOT NULL,
    improvement        REAL NOT NULL,
    phases_completed   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS health_reports (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    overall_health  TEXT NOT NULL,
    cpu_status      TEXT NOT NULL,
    memory_status   TEXT NOT NULL,
    disk_status     TEXT NOT NULL,
    network_status  TEXT NOT NULL,
    database_status TEXT NOT NULL,
    recommendations TEXT NOT NULL
);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	s.log.Info("SQLite migration applied")
	return nil
}

// AppendSample stores one sample.
func (s *SQLite) AppendSample(ctx context.Context, m *MetricSample) error {
	return s.append(ctx, "metrics",
		`INSERT INTO metrics (
    timestamp, cpu_percent, memory_percent, disk_usage_percent,
    network_io_bytes, process_count, database_connections, system_health_score
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Timestamp.UTC().Format(timeLayout), m.CPUPercent, m.MemoryPercent, m.DiskPercent,
		int64(m.NetworkIOBytes), m.ProcessCount, m.DatabaseConnections, m.HealthScore,
	)
}

// AppendSummary stores one optimization summary.
func (s *SQLite) AppendSummary(ctx context.Context, o *OptimizationSummary) error {
	return s.append(ctx, "optimization_summaries",
		`INSERT INTO optimization_summaries (
    optimization_id, start_time, end_time, duration_seconds,
    initial_efficiency, final_efficiency, improvement, phases_completed
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OptimizationID, o.StartTime.UTC().Format(timeLayout), o.EndTime.UTC().Format(timeLayout),
		o.DurationSeconds, o.InitialEfficiency, o.FinalEfficiency, o.Improvement, o.PhasesCompleted,
	)
}

// AppendHealthReport stores one report; recommendations are a JSON array.
func (s *SQLite) AppendHealthReport(ctx context.Context, r *HealthReport) error {
	recs, err := json.Marshal(r.Recommendations)
	if err != nil {
		return fmt.Errorf("%w: encode recommendations: %v", apperr.ErrStorageWrite, err)
	}
	return s.append(ctx, "health_reports",
		`INSERT INTO health_reports (
    timestamp, overall_health, cpu_status, memory_status,
    disk_status, network_status, database_status, recommendations
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(timeLayout), string(r.Overall), string(r.CPU), string(r.Memory),
		string(r.Disk), string(r.Network), string(r.DataStores), string(recs),
	)
}

func (s *SQLite) append(ctx context.Context, table, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert into %s: %v", apperr.ErrStorageWrite, table, err)
	}
	s.log.Debug("row persisted", zap.String("table", table))
	return nil
}

func (s *SQLite) CountSamples(ctx context.Context) (int, error) {
	return s.count(ctx, "metrics")
}

func (s *SQLite) CountSummaries(ctx context.Context) (int, error) {
	return s.count(ctx, "optimization_summaries")
}

func (s *SQLite) CountHealthReports(ctx context.Context) (int, error) {
	return s.count(ctx, "health_reports")
}

// count is only called with the fixed table names above.
func (s *SQLite) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// RecentSamples returns up to n of the newest samples, oldest first.
func (s *SQLite) RecentSamples(ctx context.Context, n int) ([]MetricSample, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, cpu_percent, memory_percent, disk_usage_percent,
       network_io_bytes, process_count, database_connections, system_health_score
FROM (SELECT * FROM metrics ORDER BY id DESC LIMIT ?)
ORDER BY id ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent samples: %w", err)
	}
	defer rows.Close()

	var out []MetricSample
	for rows.Next() {
		var (
			ts    string
			netIO int64
			m     collector.MetricSample
		)
		if err := rows.Scan(&ts, &m.CPUPercent, &m.MemoryPercent, &m.DiskPercent,
			&netIO, &m.ProcessCount, &m.DatabaseConnections, &m.HealthScore); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if m.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse sample timestamp %q: %w", ts, err)
		}
		m.NetworkIOBytes = uint64(netIO)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
