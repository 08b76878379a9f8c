// Package optimizer runs an ordered list of weighted phases and reports
// cumulative progress toward completion.
package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"perfmon/logger"
)

// OptimizationSummary is the result record of one completed run.
type OptimizationSummary struct {
	OptimizationID    string
	StartTime         time.Time
	EndTime           time.Time
	DurationSeconds   float64
	InitialEfficiency float64
	FinalEfficiency   float64
	Improvement       float64
	PhasesCompleted   int
}

// Progress is emitted after each phase. Percent is cumulative, 0-100.
type Progress struct {
	OptimizationID string
	Phase          string
	Index          int // 1-based
	Total          int
	Percent        int
}

// SummaryWriter persists summaries. storage.Store satisfies it.
type SummaryWriter interface {
	AppendSummary(ctx context.Context, s *OptimizationSummary) error
}

// Efficiency measures the system before and after a run.
type Efficiency interface {
	Initial(ctx context.Context) float64
	Final(ctx context.Context) float64
}

// StaticEfficiency reports fixed scores. It is the default until a real
// measurement exists.
type StaticEfficiency struct {
	Before float64
	After  float64
}

func (s StaticEfficiency) Initial(context.Context) float64 { return s.Before }
func (s StaticEfficiency) Final(context.Context) float64   { return s.After }

// DefaultEfficiency holds the placeholder before/after scores.
var DefaultEfficiency = StaticEfficiency{Before: 86.3, After: 100.0}

// Runner executes phase lists. One Runner keeps the same OptimizationID for
// its whole lifetime.
type Runner struct {
	id          string
	store       SummaryWriter
	efficiency  Efficiency
	subscribers []func(Progress)
	now         func() time.Time
	log         *zap.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithProgress subscribes fn to progress events. fn runs synchronously in
// the runner's goroutine and must not block for long.
func WithProgress(fn func(Progress)) Option {
	return func(r *Runner) { r.subscribers = append(r.subscribers, fn) }
}

// WithEfficiency replaces DefaultEfficiency.
func WithEfficiency(e Efficiency) Option {
	return func(r *Runner) { r.efficiency = e }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner returns a runner writing summaries to store. store may be nil.
func NewRunner(store SummaryWriter, log *zap.Logger, opts ...Option) *Runner {
	id := uuid.NewString()
	r := &Runner{
		id:         id,
		store:      store,
		efficiency: DefaultEfficiency,
		now:        time.Now,
		log:        logger.WithRunID(log.With(zap.String("component", "optimizer")), id),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ID returns the optimization session identifier.
func (r *Runner) ID() string { return r.id }

// Run validates phases, then executes them in order. A validation failure
// returns ErrInvalidConfiguration before any phase runs. If ctx is cancelled
// between phases the run is abandoned and no summary is produced. When the
// summary cannot be persisted it is still returned along with the error.
func (r *Runner) Run(ctx context.Context, phases []Phase) (*OptimizationSummary, error) {
	if err := Validate(phases); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := r.now()
	initial := r.efficiency.Initial(ctx)
	r.log.Info("optimization started", zap.Int("phases", len(phases)), zap.Float64("initial_efficiency", initial))

	phaseCtx := logger.WithContext(ctx, r.log)
	cumulative := 0
	for i, p := range phases {
		if err := ctx.Err(); err != nil {
			r.log.Warn("optimization cancelled", zap.String("phase", p.Name), zap.Error(err))
			return nil, fmt.Errorf("optimization cancelled before phase %q: %w", p.Name, err)
		}

		phaseStart := r.now()
		if p.Work != nil {
			p.Work(phaseCtx)
		}
		cumulative += p.Weight

		r.log.Info("phase completed",
			zap.String("phase", p.Name),
			zap.Int("progress", cumulative),
			zap.Duration("took", r.now().Sub(phaseStart)),
		)
		r.emit(Progress{
			OptimizationID: r.id,
			Phase:          p.Name,
			Index:          i + 1,
			Total:          len(phases),
			Percent:        cumulative,
		})
	}

	final := r.efficiency.Final(ctx)
	end := r.now()
	summary := &OptimizationSummary{
		OptimizationID:    r.id,
		StartTime:         start,
		EndTime:           end,
		DurationSeconds:   end.Sub(start).Seconds(),
		InitialEfficiency: initial,
		FinalEfficiency:   final,
		Improvement:       final - initial,
		PhasesCompleted:   len(phases),
	}
	r.log.Info("optimization finished",
		zap.Float64("duration_seconds", summary.DurationSeconds),
		zap.Float64("improvement", summary.Improvement),
	)

	if r.store != nil {
		if err := r.store.AppendSummary(ctx, summary); err != nil {
			r.log.Error("failed to persist optimization summary", zap.Error(err))
			return summary, err
		}
	}
	return summary, nil
}

func (r *Runner) emit(p Progress) {
	for _, fn := range r.subscribers {
		fn(p)
	}
}
