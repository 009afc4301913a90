// Package orchestrator runs the consolidation steps in their fixed order,
// records progress in the graph and validates the result.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenthands/graphmerge/internal/batch"
	"github.com/agenthands/graphmerge/internal/errors"
	"github.com/agenthands/graphmerge/internal/source"
	"github.com/agenthands/graphmerge/internal/store"
	"github.com/agenthands/graphmerge/internal/validation"
)

// Env is what a step may use. It carries no state between steps.
type Env struct {
	Graph  store.Graph
	Engine *batch.Engine
	Source source.Reader
	Logger zerolog.Logger
	Now    func() time.Time
}

type Options struct {
	DryRun bool
	// Skip holds 1-based step indexes.
	Skip []int
	// Resume skips steps the tracking record lists as completed.
	Resume         bool
	SkipValidation bool
	BatchSize      int
}

func (o Options) skips(index int) bool {
	for _, i := range o.Skip {
		if i == index {
			return true
		}
	}
	return false
}

type StepResult struct {
	Index      int            `json:"index" yaml:"index"`
	Name       string         `json:"name" yaml:"name"`
	Skipped    bool           `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	SkipReason string         `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
	Elapsed    time.Duration  `json:"elapsed" yaml:"elapsed"`
	Stats      batch.RunStats `json:"stats" yaml:"stats"`
	// EdgesRemoved is an upper bound on the edges the step may have dropped.
	EdgesRemoved int `json:"edges_removed" yaml:"edges_removed"`
	Details      any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Step is one idempotent stage of the consolidation.
type Step interface {
	Name() string
	Run(ctx context.Context, env *Env, opts Options) (*StepResult, error)
}

// Expecter is implemented by steps that declare the end state validation
// should find once they have completed.
type Expecter interface {
	Expect(exp *validation.Expectations)
}

type RunResult struct {
	DryRun    bool               `json:"dry_run" yaml:"dry_run"`
	Steps     []*StepResult      `json:"steps" yaml:"steps"`
	Completed int                `json:"completed" yaml:"completed"`
	Progress  Progress           `json:"progress" yaml:"progress"`
	Report    *validation.Report `json:"report,omitempty" yaml:"report,omitempty"`
	Elapsed   time.Duration      `json:"elapsed" yaml:"elapsed"`
}

type Orchestrator struct {
	steps     []Step
	env       *Env
	tracker   *Tracker
	validator *validation.Validator
	logger    zerolog.Logger
}

// New builds an orchestrator over steps. validator may be nil, which
// disables validation.
func New(steps []Step, env *Env, validator *validation.Validator) *Orchestrator {
	if env.Now == nil {
		env.Now = time.Now
	}
	return &Orchestrator{
		steps:     steps,
		env:       env,
		tracker:   NewTracker(env.Graph, env.Now),
		validator: validator,
		logger:    env.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

func (o *Orchestrator) Steps() []Step { return o.steps }

// Progress returns the persisted tracking record.
func (o *Orchestrator) Progress(ctx context.Context) (Progress, error) {
	return o.tracker.Load(ctx)
}

// Run executes every step not skipped, stopping at the first failure. Steps
// already applied stay applied; a later run resumes safely because each step
// is idempotent.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunResult, error) {
	start := o.env.Now()
	dryRun := opts.DryRun || (o.env.Engine != nil && o.env.Engine.DryRun())
	result := &RunResult{DryRun: dryRun}

	for _, i := range opts.Skip {
		if i < 1 || i > len(o.steps) {
			return nil, errors.NewConfigError("steps", fmt.Sprintf("skip index %d out of range 1..%d", i, len(o.steps)), nil)
		}
	}

	progress, err := o.tracker.Load(ctx)
	if err != nil {
		return nil, err
	}
	if progress.LastStep > 0 {
		o.logger.Info().
			Int("last_step", progress.LastStep).
			Str("last_step_name", progress.LastStepName).
			Time("updated_at", progress.UpdatedAt).
			Msg("found tracking record from an earlier run")
	}

	validate := !opts.SkipValidation && o.validator != nil
	var baseline *validation.Snapshot
	if validate {
		if baseline, err = o.validator.Snapshot(ctx); err != nil {
			return nil, fmt.Errorf("failed to take baseline snapshot: %w", err)
		}
	}

	for i, step := range o.steps {
		index, name := i+1, step.Name()

		reason := ""
		switch {
		case opts.skips(index):
			reason = "skipped by request"
		case opts.Resume && progress.Done(name):
			reason = "completed in an earlier run"
		}
		if reason != "" {
			o.logger.Info().Int("step", index).Str("name", name).Str("reason", reason).Msg("step skipped")
			result.Steps = append(result.Steps, &StepResult{Index: index, Name: name, Skipped: true, SkipReason: reason})
			continue
		}

		o.logger.Info().Int("step", index).Str("name", name).Bool("dry_run", dryRun).Msg("step started")
		stepStart := o.env.Now()
		res, err := step.Run(ctx, o.env, opts)
		if err != nil {
			o.logger.Error().Err(err).Int("step", index).Str("name", name).Int("completed", result.Completed).Msg("step failed")
			return result, &errors.StepError{Step: name, Index: index, Completed: result.Completed, Err: err}
		}
		if res == nil {
			res = &StepResult{}
		}
		res.Index, res.Name = index, name
		res.Elapsed = o.env.Now().Sub(stepStart)
		result.Steps = append(result.Steps, res)
		result.Completed++

		if !dryRun {
			if progress, err = o.tracker.Record(ctx, progress, index, name); err != nil {
				return result, &errors.StepError{Step: name, Index: index, Completed: result.Completed, Err: err}
			}
		}
		o.logger.Info().
			Int("step", index).
			Str("name", name).
			Int("units", res.Stats.Units).
			Int("ops", res.Stats.Ops).
			Dur("elapsed", res.Elapsed).
			Msg("step finished")
	}
	result.Progress = progress

	if validate {
		report, err := o.validator.Validate(ctx, baseline, o.expectations(result, progress))
		if err != nil {
			return result, fmt.Errorf("failed to validate: %w", err)
		}
		result.Report = report
		if dryRun {
			report.Notes = append(report.Notes, "dry run: nothing was written, checks describe the unchanged graph")
		} else if !report.Passed {
			result.Elapsed = o.env.Now().Sub(start)
			return result, fmt.Errorf("%w: %d check(s) failed", errors.ErrValidation, len(report.Failed()))
		}
	}

	result.Elapsed = o.env.Now().Sub(start)
	return result, nil
}

// expectations collects the end state of every step completed now or in an
// earlier run.
func (o *Orchestrator) expectations(result *RunResult, progress Progress) validation.Expectations {
	ran := map[string]bool{}
	var exp validation.Expectations
	for _, r := range result.Steps {
		if !r.Skipped {
			ran[r.Name] = true
			exp.EdgesRemoved += r.EdgesRemoved
		}
	}
	for _, step := range o.steps {
		if !ran[step.Name()] && !progress.Done(step.Name()) {
			continue
		}
		if e, ok := step.(Expecter); ok {
			e.Expect(&exp)
		}
	}
	return exp
}
