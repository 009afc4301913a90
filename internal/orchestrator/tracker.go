package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/store"
)

const (
	TrackingLabel = "MigrationTracking"
	TrackingKey   = "graphmerge:tracking"
)

// Progress is the persisted record of the steps that have completed.
type Progress struct {
	LastStep     int       `json:"last_step" yaml:"last_step"`
	LastStepName string    `json:"last_step_name" yaml:"last_step_name"`
	Completed    []string  `json:"completed" yaml:"completed"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// Done reports whether the named step has completed in some run.
func (p Progress) Done(name string) bool {
	for _, c := range p.Completed {
		if c == name {
			return true
		}
	}
	return false
}

// Tracker reads and writes the tracking node through the store.
type Tracker struct {
	graph store.Graph
	now   func() time.Time
}

func NewTracker(graph store.Graph, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{graph: graph, now: now}
}

// Load returns the stored progress, or zero progress when none is stored.
func (t *Tracker) Load(ctx context.Context) (Progress, error) {
	n, err := t.graph.Node(ctx, TrackingKey)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to load tracking record: %w", err)
	}
	if n == nil {
		return Progress{}, nil
	}
	p := Progress{Completed: model.StringList(n.Props["completed_steps"])}
	p.LastStepName, _ = n.Props["last_step_name"].(string)
	if v, ok := model.Int64(n.Props["last_step"]); ok {
		p.LastStep = int(v)
	}
	if s, ok := n.Props["updated_at"].(string); ok {
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, s)
	}
	return p, nil
}

// Record marks step index (1-based) as completed and persists the progress.
func (t *Tracker) Record(ctx context.Context, p Progress, index int, name string) (Progress, error) {
	p.LastStep = index
	p.LastStepName = name
	if !p.Done(name) {
		p.Completed = append(append([]string(nil), p.Completed...), name)
	}
	p.UpdatedAt = t.now().UTC()

	op := store.UpsertNode(TrackingLabel, TrackingKey, map[string]any{
		"last_step":       int64(p.LastStep),
		"last_step_name":  p.LastStepName,
		"completed_steps": append([]string{}, p.Completed...),
		"updated_at":      p.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err := t.graph.Apply(ctx, []store.Op{op}); err != nil {
		return p, fmt.Errorf("failed to write tracking record: %w", err)
	}
	return p, nil
}
