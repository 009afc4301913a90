// Package validation counts what a consolidation run left behind and turns
// the counts into a pass/fail report.
package validation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/graphmerge/internal/core/canonical"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/source"
	"github.com/agenthands/graphmerge/internal/store"
)

// EntityTypes are the categories every snapshot counts.
var EntityTypes = []model.EntityType{
	model.EntityOrganization,
	model.EntityIndividual,
	model.EntityFinancialTransaction,
}

// Snapshot is a set of read-only counts taken at one point in time.
type Snapshot struct {
	TakenAt       time.Time        `json:"taken_at" yaml:"taken_at"`
	Edges         int64            `json:"edges" yaml:"edges"`
	EdgesByType   map[string]int64 `json:"edges_by_type" yaml:"edges_by_type"`
	LegacyRecords map[string]int64 `json:"legacy_records" yaml:"legacy_records"`
	Canonical     map[string]int64 `json:"canonical" yaml:"canonical"`
}

type Options struct {
	// EdgeTypes are counted individually on top of the edge total.
	EdgeTypes   []string
	Parallelism int
	Now         func() time.Time
}

type Validator struct {
	graph  store.Graph
	opts   Options
	logger zerolog.Logger
}

func New(graph store.Graph, opts Options, logger zerolog.Logger) *Validator {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Validator{
		graph:  graph,
		opts:   opts,
		logger: logger.With().Str("component", "validation").Logger(),
	}
}

type countJob struct {
	shape store.CountShape
	set   func(s *Snapshot, n int64)
}

// Snapshot runs every count query, at most Parallelism at a time.
func (v *Validator) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		TakenAt:       v.opts.Now().UTC(),
		EdgesByType:   map[string]int64{},
		LegacyRecords: map[string]int64{},
		Canonical:     map[string]int64{},
	}

	jobs := []countJob{{
		shape: store.CountShape{Edges: true},
		set:   func(s *Snapshot, n int64) { s.Edges = n },
	}}
	for _, t := range v.edgeTypes() {
		t := t
		jobs = append(jobs, countJob{
			shape: store.CountShape{EdgeType: t},
			set:   func(s *Snapshot, n int64) { s.EdgesByType[t] = n },
		})
	}
	for _, et := range EntityTypes {
		key := string(et)
		shape, _ := source.ShapeFor(et)
		for _, label := range shape.Labels {
			jobs = append(jobs, countJob{
				shape: store.CountShape{Label: label},
				set:   func(s *Snapshot, n int64) { s.LegacyRecords[key] += n },
			})
		}
		label := canonical.ProfileFor(et).Label
		jobs = append(jobs, countJob{
			shape: store.CountShape{Label: label},
			set:   func(s *Snapshot, n int64) { s.Canonical[label] = n },
		})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Parallelism)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			n, err := v.graph.Count(gctx, job.shape)
			if err != nil {
				return fmt.Errorf("failed to count %s: %w", job.shape, err)
			}
			mu.Lock()
			job.set(snap, n)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	v.logger.Debug().
		Int64("edges", snap.Edges).
		Int("queries", len(jobs)).
		Msg("snapshot taken")
	return snap, nil
}

func (v *Validator) edgeTypes() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range v.opts.EdgeTypes {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
