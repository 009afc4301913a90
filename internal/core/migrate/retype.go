package migrate

import (
	"context"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/store"
)

// Retype rewrites one edge to a new relationship type. The replacement is
// merged first so a retry after a partial write never loses the edge.
type Retype struct {
	Edge    model.Edge
	NewType string
	// Extra is merged over the edge properties on the replacement.
	Extra map[string]any
}

func (r *Retype) ID() string {
	return "retype:" + r.Edge.Type + ":" + r.Edge.From + "->" + r.Edge.To
}

func (r *Retype) Plan(ctx context.Context) ([]store.Op, error) {
	e := r.Edge
	props := model.MergeProperties(e.Properties, r.Extra)
	ops := []store.Op{
		store.UpsertEdge(r.NewType, e.From, e.To, props).WithLabels(e.FromLabel, e.ToLabel),
	}
	if r.NewType != e.Type {
		ops = append(ops, store.DeleteEdge(e.Type, e.From, e.To))
	}
	return ops, nil
}
