package steps

import (
	"context"
	"fmt"

	"github.com/agenthands/graphmerge/internal/core/dedupe"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/orchestrator"
	"github.com/agenthands/graphmerge/internal/validation"
)

// Consolidate merges the record pool of one entity type into canonical entities.
type Consolidate struct {
	name       string
	entityType model.EntityType
}

func NewConsolidate(name string, entityType model.EntityType) *Consolidate {
	return &Consolidate{name: name, entityType: entityType}
}

func (s *Consolidate) Name() string { return s.name }

func (s *Consolidate) EntityType() model.EntityType { return s.entityType }

func (s *Consolidate) Run(ctx context.Context, env *orchestrator.Env, opts orchestrator.Options) (*orchestrator.StepResult, error) {
	records, err := env.Source.Records(ctx, s.entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", s.entityType, err)
	}

	d := dedupe.NewDeduplicator(env.Graph, env.Engine, env.Now, env.Logger)
	res, err := d.Consolidate(ctx, dedupe.Options{EntityType: s.entityType, BatchSize: batchSize(opts)}, records)
	if err != nil {
		return nil, err
	}
	return &orchestrator.StepResult{
		Stats:        res.Stats,
		EdgesRemoved: res.Migration.EdgesRemoved,
		Details:      res,
	}, nil
}

func (s *Consolidate) Expect(exp *validation.Expectations) {
	exp.EntityTypes = append(exp.EntityTypes, s.entityType)
}
