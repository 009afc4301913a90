// Package batch applies mutation units to the store in sequential, bounded,
// retried batches.
package batch

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agenthands/graphmerge/internal/errors"
	"github.com/agenthands/graphmerge/internal/store"
)

// Unit is one independently idempotent piece of work. Plan is called right
// before the unit's batch is written, and again on every retry.
type Unit interface {
	ID() string
	Plan(ctx context.Context) ([]store.Op, error)
}

// Committer is implemented by units that track progress after their batch
// has been written.
type Committer interface {
	Commit() error
}

type Options struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        Backoff
	Sleep          Sleeper
	DryRun         bool
	Logger         zerolog.Logger
	Now            func() time.Time
}

type BatchStats struct {
	Index      int           `json:"index" yaml:"index"`
	Units      int           `json:"units" yaml:"units"`
	Ops        int           `json:"ops" yaml:"ops"`
	Attempts   int           `json:"attempts" yaml:"attempts"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
	Throughput float64       `json:"throughput" yaml:"throughput"` // units per second, running
	ETA        time.Duration `json:"eta" yaml:"eta"`
}

type RunStats struct {
	Units   int           `json:"units" yaml:"units"`
	Ops     int           `json:"ops" yaml:"ops"`
	Retries int           `json:"retries" yaml:"retries"`
	DryRun  bool          `json:"dry_run" yaml:"dry_run"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Batches []BatchStats  `json:"batches" yaml:"batches"`
}

// Add folds other into s.
func (s *RunStats) Add(other RunStats) {
	s.Units += other.Units
	s.Ops += other.Ops
	s.Retries += other.Retries
	s.Elapsed += other.Elapsed
	s.Batches = append(s.Batches, other.Batches...)
}

type Engine struct {
	store  store.Store
	opts   Options
	tracer trace.Tracer
}

func New(s store.Store, opts Options) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = ExponentialBackoff{}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = opts.Logger.With().Str("component", "batch").Logger()
	return &Engine{store: s, opts: opts, tracer: otel.Tracer("github.com/agenthands/graphmerge/internal/batch")}
}

// DryRun reports whether the engine only plans.
func (e *Engine) DryRun() bool { return e.opts.DryRun }

// Run applies units in batches of at most batchSize. It stops at the first
// non-transient failure or when retries are exhausted; batches committed
// before that stay committed.
func (e *Engine) Run(ctx context.Context, units []Unit, batchSize int) (RunStats, error) {
	if batchSize <= 0 {
		return RunStats{}, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	stats := RunStats{DryRun: e.opts.DryRun}
	start := e.opts.Now()
	total := len(units)

	for idx, offset := 0, 0; offset < total; idx, offset = idx+1, offset+batchSize {
		end := offset + batchSize
		if end > total {
			end = total
		}
		chunk := units[offset:end]

		bs, err := e.runBatch(ctx, idx, chunk)
		stats.Retries += max(bs.Attempts-1, 0)
		if err != nil {
			stats.Elapsed = e.opts.Now().Sub(start)
			return stats, err
		}

		stats.Units += len(chunk)
		stats.Ops += bs.Ops
		stats.Elapsed = e.opts.Now().Sub(start)
		if secs := stats.Elapsed.Seconds(); secs > 0 {
			bs.Throughput = float64(stats.Units) / secs
			bs.ETA = time.Duration(float64(total-stats.Units) / bs.Throughput * float64(time.Second))
		}
		stats.Batches = append(stats.Batches, bs)

		e.opts.Logger.Info().
			Int("batch", idx+1).
			Int("units", bs.Units).
			Int("ops", bs.Ops).
			Int("attempts", bs.Attempts).
			Int("done", stats.Units).
			Int("total", total).
			Dur("elapsed", bs.Elapsed).
			Float64("units_per_sec", bs.Throughput).
			Dur("eta", bs.ETA).
			Bool("dry_run", e.opts.DryRun).
			Msg("batch applied")
	}
	return stats, nil
}

func (e *Engine) runBatch(ctx context.Context, idx int, chunk []Unit) (BatchStats, error) {
	ctx, span := e.tracer.Start(ctx, "batch.apply", trace.WithAttributes(
		attribute.Int("batch.index", idx),
		attribute.Int("batch.units", len(chunk)),
		attribute.Bool("batch.dry_run", e.opts.DryRun),
	))
	defer span.End()

	bs := BatchStats{Index: idx, Units: len(chunk)}
	started := e.opts.Now()

	for attempt := 1; ; attempt++ {
		bs.Attempts = attempt
		ops, err := e.attempt(ctx, chunk)
		if err == nil {
			bs.Ops = ops
			break
		}

		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return bs, fmt.Errorf("batch %d interrupted: %w", idx+1, ctx.Err())
		}
		if !retryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "permanent failure")
			return bs, fmt.Errorf("batch %d failed: %w", idx+1, err)
		}
		if attempt >= e.opts.MaxAttempts {
			span.RecordError(err)
			span.SetStatus(codes.Error, "retries exhausted")
			return bs, fmt.Errorf("batch %d failed after %d attempts: %w", idx+1, attempt, err)
		}

		delay := e.opts.Backoff.NextDelay(attempt)
		e.opts.Logger.Warn().Err(err).
			Int("batch", idx+1).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("transient store failure, retrying batch")
		if err := e.opts.Sleep(ctx, delay); err != nil {
			return bs, fmt.Errorf("batch %d interrupted: %w", idx+1, err)
		}
	}

	if !e.opts.DryRun {
		for _, u := range chunk {
			c, ok := u.(Committer)
			if !ok {
				continue
			}
			if err := c.Commit(); err != nil {
				span.RecordError(err)
				return bs, fmt.Errorf("batch %d: commit %s: %w", idx+1, u.ID(), err)
			}
		}
	}

	bs.Elapsed = e.opts.Now().Sub(started)
	span.SetAttributes(attribute.Int("batch.ops", bs.Ops), attribute.Int("batch.attempts", bs.Attempts))
	return bs, nil
}

// attempt plans every unit and writes the ops as one store call.
func (e *Engine) attempt(ctx context.Context, chunk []Unit) (int, error) {
	if e.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.AttemptTimeout)
		defer cancel()
	}

	var ops []store.Op
	for _, u := range chunk {
		planned, err := u.Plan(ctx)
		if err != nil {
			return 0, fmt.Errorf("plan %s: %w", u.ID(), err)
		}
		e.opts.Logger.Debug().Str("unit", u.ID()).Int("ops", len(planned)).Msg("planned")
		ops = append(ops, planned...)
	}
	if e.opts.DryRun || len(ops) == 0 {
		return len(ops), nil
	}
	if err := e.store.Apply(ctx, ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// retryable treats per-attempt timeouts as transient alongside classified
// driver errors.
func retryable(err error) bool {
	return errors.IsTransient(err) || stderrors.Is(err, context.DeadlineExceeded)
}
