package collector

import "time"

// MetricSample is one observation of the host. It is immutable once the
// collector hands it out.
type MetricSample struct {
	Timestamp           time.Time // wall clock at the end of the sampling window
	CPUPercent          float64   // 0-100
	MemoryPercent       float64   // 0-100
	DiskPercent         float64   // 0-100
	NetworkIOBytes      uint64    // cumulative sent+received since boot
	ProcessCount        int       // number of pids
	DatabaseConnections int       // discoverable local data stores
	HealthScore         float64   // derived, see Score
}

// Reading is the raw output of a Sensor before clamping and scoring.
type Reading struct {
	CPUPercent     float64
	MemoryPercent  float64
	DiskPercent    float64
	NetworkIOBytes uint64
	ProcessCount   int
}

// Status is a coarse level attached to each health dimension.
type Status string

const (
	StatusExcellent Status = "EXCELLENT"
	StatusGood      Status = "GOOD"
	StatusWarning   Status = "WARNING"
	StatusCritical  Status = "CRITICAL"
)

// HealthReport is the per-dimension assessment of one sample.
type HealthReport struct {
	Timestamp       time.Time
	Overall         Status
	CPU             Status
	Memory          Status
	Disk            Status
	Network         Status
	DataStores      Status
	Recommendations []string
}
