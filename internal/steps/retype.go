package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/agenthands/graphmerge/internal/batch"
	"github.com/agenthands/graphmerge/internal/core/migrate"
	"github.com/agenthands/graphmerge/internal/orchestrator"
	"github.com/agenthands/graphmerge/internal/validation"
)

const ParticipatedIn = "PARTICIPATED_IN"

// Retarget is the replacement for one legacy relationship type.
type Retarget struct {
	Type  string
	Extra map[string]any
}

func participation(role string) Retarget {
	return Retarget{Type: ParticipatedIn, Extra: map[string]any{"role": role, "role_" + role: true}}
}

// ParticipationTypes folds the per-role legacy relationships into
// PARTICIPATED_IN. When one pair held several roles the last one written
// wins on role; every role keeps its own role_<name> flag.
func ParticipationTypes() map[string]Retarget {
	return map[string]Retarget{
		"RECIPIENT_OF":              participation("recipient"),
		"PRINCIPAL_INVESTIGATOR_ON": participation("principal_investigator"),
		"CONTRACTOR_ON":             participation("contractor"),
		"ASSIGNEE_OF":               participation("assignee"),
	}
}

// LegacyRenames maps superseded relationship names to current ones.
func LegacyRenames() map[string]Retarget {
	return map[string]Retarget{
		"FUNDED":       {Type: "FUNDED_BY"},
		"WORKS_AT":     {Type: "AFFILIATED_WITH"},
		"EMPLOYED_BY":  {Type: "AFFILIATED_WITH"},
		"CITES_PATENT": {Type: "CITES"},
	}
}

// Retype rewrites every edge of the legacy types to their replacement.
type Retype struct {
	name    string
	mapping map[string]Retarget
}

func NewRetype(name string, mapping map[string]Retarget) *Retype {
	return &Retype{name: name, mapping: mapping}
}

func (s *Retype) Name() string { return s.name }

// RetypeSummary counts the edges rewritten per legacy type.
type RetypeSummary struct {
	ByType map[string]int `json:"by_type" yaml:"by_type"`
	Total  int            `json:"total" yaml:"total"`
}

func (s *Retype) legacyTypes() []string {
	out := make([]string, 0, len(s.mapping))
	for t := range s.mapping {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Retype) Run(ctx context.Context, env *orchestrator.Env, opts orchestrator.Options) (*orchestrator.StepResult, error) {
	summary := RetypeSummary{ByType: map[string]int{}}
	var units []batch.Unit
	for _, legacy := range s.legacyTypes() {
		edges, err := env.Graph.EdgesByType(ctx, legacy)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s relationships: %w", legacy, err)
		}
		target := s.mapping[legacy]
		for _, e := range edges {
			units = append(units, &migrate.Retype{Edge: e, NewType: target.Type, Extra: target.Extra})
		}
		summary.ByType[legacy] = len(edges)
		summary.Total += len(edges)
	}

	env.Logger.Debug().
		Str("step", s.name).
		Int("edges", summary.Total).
		Msg("relationships to retype")

	stats, err := env.Engine.Run(ctx, units, batchSize(opts))
	res := &orchestrator.StepResult{Stats: stats, EdgesRemoved: summary.Total, Details: summary}
	if err != nil {
		return res, fmt.Errorf("failed to retype relationships: %w", err)
	}
	return res, nil
}

func (s *Retype) Expect(exp *validation.Expectations) {
	for _, legacy := range s.legacyTypes() {
		exp.RetiredEdgeTypes = append(exp.RetiredEdgeTypes, legacy)
		exp.Retyped(legacy, s.mapping[legacy].Type)
	}
}
