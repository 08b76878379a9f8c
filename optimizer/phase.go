package optimizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"perfmon/apperr"
	"perfmon/collector"
	"perfmon/history"
	"perfmon/logger"
)

// TotalWeight is the sum every phase list must reach.
const TotalWeight = 100

// PhaseFunc is the body of one phase. Phases are assumed to succeed; a body
// that needs to stop early should honour ctx and return.
type PhaseFunc func(ctx context.Context)

// Phase is one named, weighted unit of work.
type Phase struct {
	Name   string
	Weight int
	Work   PhaseFunc
}

// Validate checks that phases form a runnable list.
func Validate(phases []Phase) error {
	if len(phases) == 0 {
		return fmt.Errorf("%w: no phases configured", apperr.ErrInvalidConfiguration)
	}
	sum := 0
	for i, p := range phases {
		if p.Name == "" {
			return fmt.Errorf("%w: phase %d has no name", apperr.ErrInvalidConfiguration, i)
		}
		if p.Weight <= 0 {
			return fmt.Errorf("%w: phase %q weight must be positive, got %d", apperr.ErrInvalidConfiguration, p.Name, p.Weight)
		}
		sum += p.Weight
	}
	if sum != TotalWeight {
		return fmt.Errorf("%w: phase weights sum to %d, want %d", apperr.ErrInvalidConfiguration, sum, TotalWeight)
	}
	return nil
}

// Default phase names. TransformPhase is the one that reads CPU history.
const (
	AnalysisPhase   = "resource-analysis"
	TransformPhase  = "signal-transform"
	CachePhase      = "cache-optimization"
	ValidationPhase = "validation"
)

// PhaseSpec is the configuration half of a Phase: a name and a weight.
type PhaseSpec struct {
	Name   string `mapstructure:"name"`
	Weight int    `mapstructure:"weight"`
}

// DefaultWeights lists the default phases in order.
var DefaultWeights = []PhaseSpec{
	{Name: AnalysisPhase, Weight: 30},
	{Name: TransformPhase, Weight: 25},
	{Name: CachePhase, Weight: 25},
	{Name: ValidationPhase, Weight: 20},
}

// SpectrumWindow is how many recent CPU samples the transform phase reads.
const SpectrumWindow = 64

// WaitPhase returns a body that waits for d or until ctx is done. It stands
// in for real work.
func WaitPhase(d time.Duration) PhaseFunc {
	return func(ctx context.Context) {
		if d <= 0 {
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}

// TransformWork snapshots the newest CPU readings from h and logs their
// spectrum. The result is diagnostic only.
func TransformWork(h *history.Ring[collector.MetricSample], fallback *zap.Logger) PhaseFunc {
	return func(ctx context.Context) {
		log := logger.FromContext(ctx, fallback)
		samples := h.Recent(SpectrumWindow)
		cpu := make([]float64, len(samples))
		for i, s := range samples {
			cpu[i] = s.CPUPercent
		}

		spectrum := CPUSpectrum(cpu)
		if spectrum == nil {
			log.Debug("not enough history for spectrum", zap.Int("samples", len(cpu)))
			return
		}
		bin, mag := DominantBin(spectrum)
		log.Debug("cpu spectrum computed",
			zap.Int("samples", len(cpu)),
			zap.Int("dominant_bin", bin),
			zap.Float64("magnitude", mag),
		)
	}
}

// Phases builds a phase list from name/weight pairs. Every body is a
// WaitPhase of delay, except TransformPhase which also runs TransformWork.
func Phases(specs []PhaseSpec, h *history.Ring[collector.MetricSample], log *zap.Logger, delay time.Duration) []Phase {
	wait := WaitPhase(delay)
	phases := make([]Phase, 0, len(specs))
	for _, s := range specs {
		work := wait
		if s.Name == TransformPhase && h != nil {
			transform := TransformWork(h, log)
			work = func(ctx context.Context) {
				transform(ctx)
				wait(ctx)
			}
		}
		phases = append(phases, Phase{Name: s.Name, Weight: s.Weight, Work: work})
	}
	return phases
}

// DefaultPhases returns the four default phases.
func DefaultPhases(h *history.Ring[collector.MetricSample], log *zap.Logger, delay time.Duration) []Phase {
	return Phases(DefaultWeights, h, log, delay)
}
