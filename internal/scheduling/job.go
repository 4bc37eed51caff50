package scheduling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"hivewatch/internal/observability/metrics"
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

// PeriodicJob runs a JobFunc on every tick of its source. Ticks that arrive while a run
// is still in flight are skipped, logged and counted.
type PeriodicJob struct {
	name       string
	source     TickSource
	job        JobFunc
	guard      Guard
	runOnStart bool
	logger     *zap.Logger
	skipped    atomic.Int64
	wg         sync.WaitGroup
}

// JobOption configures a PeriodicJob.
type JobOption func(*PeriodicJob)

// WithRunOnStart runs the job once before waiting for the first tick.
func WithRunOnStart(enabled bool) JobOption {
	return func(p *PeriodicJob) {
		p.runOnStart = enabled
	}
}

// WithJobLogger sets the job logger.
func WithJobLogger(logger *zap.Logger) JobOption {
	return func(p *PeriodicJob) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPeriodicJob constructs a PeriodicJob.
func NewPeriodicJob(name string, source TickSource, job JobFunc, opts ...JobOption) (*PeriodicJob, error) {
	if name == "" {
		return nil, errors.New("scheduling: empty job name")
	}
	if source == nil {
		return nil, errors.New("scheduling: nil tick source")
	}
	if job == nil {
		return nil, errors.New("scheduling: nil job")
	}
	p := &PeriodicJob{
		name:   name,
		source: source,
		job:    job,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("job", name))
	return p, nil
}

// Run blocks until ctx is cancelled, then waits for the in-flight run and returns ctx.Err().
func (p *PeriodicJob) Run(ctx context.Context) error {
	if p == nil {
		return errors.New("scheduling: nil job")
	}
	defer p.source.Stop()
	defer p.wg.Wait()

	if p.runOnStart {
		p.fire(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.source.C():
			p.fire(ctx)
		}
	}
}

// Skipped returns the number of ticks dropped because a run was in flight.
func (p *PeriodicJob) Skipped() int64 {
	if p == nil {
		return 0
	}
	return p.skipped.Load()
}

func (p *PeriodicJob) fire(ctx context.Context) {
	if p.guard.Running() {
		p.skip()
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ran := p.guard.TryRun(func() {
			p.runOnce(ctx)
		})
		if !ran {
			p.skip()
		}
	}()
}

func (p *PeriodicJob) skip() {
	p.skipped.Add(1)
	metrics.IncJobSkipped(p.name)
	p.logger.Warn("previous run still in flight, skipping tick")
}

func (p *PeriodicJob) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.Any("panic", r))
		}
	}()
	start := time.Now()
	if err := p.job(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		p.logger.Error("job run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	p.logger.Debug("job run completed", zap.Duration("duration", time.Since(start)))
}
