package collector

import "math"

// Score combines three inverse-utilisation signals and one capacity proxy
// into a 0-100 health value, rounded to two decimals. Each dimension carries
// a quarter of the weight and is clipped to [0,100].
func Score(cpu, memory, disk float64, storeCount int) float64 {
	cpuScore := math.Max(0, 100-cpu)
	memScore := math.Max(0, 100-memory)
	diskScore := math.Max(0, 100-disk)
	storeScore := math.Min(100, math.Max(0, float64(storeCount)*2))

	score := 0.25*cpuScore + 0.25*memScore + 0.25*diskScore + 0.25*storeScore
	return math.Round(score*100) / 100
}

type thresholds struct {
	good, warning, critical float64
}

var (
	cpuThresholds    = thresholds{good: 30, warning: 60, critical: 85}
	memoryThresholds = thresholds{good: 40, warning: 70, critical: 90}
	diskThresholds   = thresholds{good: 50, warning: 75, critical: 90}
)

// utilisation maps a "lower is better" percentage onto a Status.
func (t thresholds) utilisation(v float64) Status {
	switch {
	case v <= t.good:
		return StatusExcellent
	case v <= t.warning:
		return StatusGood
	case v <= t.critical:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// atLeast maps a "higher is better" value onto a Status.
func atLeast(v, excellent, good, warning float64) Status {
	switch {
	case v >= excellent:
		return StatusExcellent
	case v >= good:
		return StatusGood
	case v >= warning:
		return StatusWarning
	default:
		return StatusCritical
	}
}

const optimalRecommendation = "System operating at optimal performance"

// Assess derives a HealthReport from a sample. It is pure.
func Assess(s *MetricSample) *HealthReport {
	r := &HealthReport{
		Timestamp:  s.Timestamp,
		Overall:    atLeast(s.HealthScore, 80, 60, 40),
		CPU:        cpuThresholds.utilisation(s.CPUPercent),
		Memory:     memoryThresholds.utilisation(s.MemoryPercent),
		Disk:       diskThresholds.utilisation(s.DiskPercent),
		Network:    StatusWarning,
		DataStores: atLeast(float64(s.DatabaseConnections), 20, 10, 5),
	}
	if s.NetworkIOBytes > 0 {
		r.Network = StatusGood
	}

	if s.CPUPercent > 80 {
		r.Recommendations = append(r.Recommendations, "High CPU usage detected - consider optimizing processes")
	}
	if s.MemoryPercent > 80 {
		r.Recommendations = append(r.Recommendations, "High memory usage detected - consider memory optimization")
	}
	if s.DiskPercent > 80 {
		r.Recommendations = append(r.Recommendations, "High disk usage detected - consider cleanup")
	}
	if s.DatabaseConnections < 10 {
		r.Recommendations = append(r.Recommendations, "Low data store count - consider provisioning local stores")
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = []string{optimalRecommendation}
	}
	return r
}
