package steps

import (
	"context"
	"fmt"

	"github.com/agenthands/graphmerge/internal/batch"
	"github.com/agenthands/graphmerge/internal/core/canonical"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/orchestrator"
	"github.com/agenthands/graphmerge/internal/store"
	"github.com/agenthands/graphmerge/internal/validation"
)

const (
	MetricEdgesTotal     = "metric_edges_total"
	MetricParticipations = "metric_participations"
)

// AggregateMetrics recomputes the relationship metrics kept on every
// canonical entity. Nodes whose metrics are already current are not written.
type AggregateMetrics struct {
	name string
}

func NewAggregateMetrics(name string) *AggregateMetrics {
	return &AggregateMetrics{name: name}
}

func (s *AggregateMetrics) Name() string { return s.name }

type MetricsSummary struct {
	Entities int `json:"entities" yaml:"entities"`
	Updated  int `json:"updated" yaml:"updated"`
}

func (s *AggregateMetrics) Run(ctx context.Context, env *orchestrator.Env, opts orchestrator.Options) (*orchestrator.StepResult, error) {
	var (
		units   []batch.Unit
		metrics []*metricsUnit
	)
	for _, et := range validation.EntityTypes {
		label := canonical.ProfileFor(et).Label
		nodes, err := env.Graph.NodesByLabel(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s entities: %w", label, err)
		}
		for _, n := range nodes {
			u := &metricsUnit{reader: env.Graph, label: label, key: n.Key}
			metrics = append(metrics, u)
			units = append(units, u)
		}
	}

	stats, err := env.Engine.Run(ctx, units, batchSize(opts))
	summary := MetricsSummary{Entities: len(metrics)}
	for _, u := range metrics {
		if u.writes {
			summary.Updated++
		}
	}
	res := &orchestrator.StepResult{Stats: stats, Details: summary}
	if err != nil {
		return res, fmt.Errorf("failed to update aggregate metrics: %w", err)
	}
	return res, nil
}

type metricsUnit struct {
	reader store.Reader
	label  string
	key    string
	writes bool
}

func (u *metricsUnit) ID() string { return "metrics:" + u.key }

func (u *metricsUnit) Plan(ctx context.Context) ([]store.Op, error) {
	u.writes = false
	node, err := u.reader.Node(ctx, u.key)
	if err != nil || node == nil {
		return nil, err
	}
	edges, err := u.reader.IncidentEdges(ctx, u.key)
	if err != nil {
		return nil, err
	}

	total := int64(len(edges))
	var participations int64
	for _, e := range edges {
		if e.Type == ParticipatedIn {
			participations++
		}
	}

	cur, okTotal := model.Int64(node.Props[MetricEdgesTotal])
	curPart, okPart := model.Int64(node.Props[MetricParticipations])
	if okTotal && okPart && cur == total && curPart == participations {
		return nil, nil
	}
	u.writes = true
	return []store.Op{store.UpsertNode(u.label, u.key, map[string]any{
		MetricEdgesTotal:     total,
		MetricParticipations: participations,
	})}, nil
}
