// Package eventbus publishes monitor events to NATS.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"perfmon/collector"
	"perfmon/optimizer"
)

const (
	SubjectSamples  = "perfmon.samples"
	SubjectProgress = "perfmon.optimization.progress"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

type Publisher struct {
	conn Conn
	log  *zap.Logger
}

// NewPublisher connects to natsURL and keeps retrying in the background if
// the server is not up yet.
func NewPublisher(natsURL string, log *zap.Logger) (*Publisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("perfmon"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", natsURL, err)
	}

	log.Info("connected to NATS", zap.String("url", natsURL))
	return NewPublisherWithConn(conn, log), nil
}

// NewPublisherWithConn wraps an existing connection.
func NewPublisherWithConn(conn Conn, log *zap.Logger) *Publisher {
	return &Publisher{conn: conn, log: log.With(zap.String("component", "eventbus"))}
}

type sampleEvent struct {
	Timestamp           time.Time `json:"timestamp"`
	CPUPercent          float64   `json:"cpu_percent"`
	MemoryPercent       float64   `json:"memory_percent"`
	DiskPercent         float64   `json:"disk_usage_percent"`
	NetworkIOBytes      uint64    `json:"network_io_bytes"`
	ProcessCount        int       `json:"process_count"`
	DatabaseConnections int       `json:"database_connections"`
	HealthScore         float64   `json:"system_health_score"`
}

type progressEvent struct {
	OptimizationID string `json:"optimization_id"`
	Phase          string `json:"phase"`
	Index          int    `json:"index"`
	Total          int    `json:"total"`
	Percent        int    `json:"percent"`
}

// PublishSample implements scheduler.Sink.
func (p *Publisher) PublishSample(_ context.Context, s *collector.MetricSample) error {
	return p.publish(SubjectSamples, sampleEvent{
		Timestamp:           s.Timestamp.UTC(),
		CPUPercent:          s.CPUPercent,
		MemoryPercent:       s.MemoryPercent,
		DiskPercent:         s.DiskPercent,
		NetworkIOBytes:      s.NetworkIOBytes,
		ProcessCount:        s.ProcessCount,
		DatabaseConnections: s.DatabaseConnections,
		HealthScore:         s.HealthScore,
	})
}

// PublishProgress matches the optimizer's progress callback signature.
// Failures are logged, never returned, so a dead bus cannot slow a run.
func (p *Publisher) PublishProgress(pr optimizer.Progress) {
	err := p.publish(SubjectProgress, progressEvent{
		OptimizationID: pr.OptimizationID,
		Phase:          pr.Phase,
		Index:          pr.Index,
		Total:          pr.Total,
		Percent:        pr.Percent,
	})
	if err != nil {
		p.log.Warn("progress publish failed", zap.Error(err))
	}
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug("event published", zap.String("subject", subject))
	return nil
}

func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drops the connection. It always returns nil; the error is there so
// Publisher can be closed alongside other io.Closers.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
		p.log.Info("disconnected from NATS")
	}
	return nil
}
