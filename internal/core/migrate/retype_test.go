package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/store"
	"github.com/agenthands/graphmerge/internal/store/memstore"
)

func TestRetypeReplacesEdge(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	s.AddNode("Individual", "p", nil)
	s.AddNode("FinancialTransaction", "t", nil)
	s.AddEdge("PRINCIPAL_INVESTIGATOR_ON", "p", "t", map[string]any{"since": int64(2019)})

	edges, err := s.EdgesByType(ctx, "PRINCIPAL_INVESTIGATOR_ON")
	require.NoError(t, err)
	require.Len(t, edges, 1)

	r := &Retype{Edge: edges[0], NewType: "PARTICIPATED_IN", Extra: map[string]any{"role": "principal_investigator"}}
	assert.Equal(t, "retype:PRINCIPAL_INVESTIGATOR_ON:p->t", r.ID())

	ops, err := r.Plan(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, store.OpUpsertEdge, ops[0].Kind)
	assert.Equal(t, store.OpDeleteEdge, ops[1].Kind)

	require.NoError(t, s.Apply(ctx, ops))
	// a retry after success changes nothing
	require.NoError(t, s.Apply(ctx, ops))

	assert.Equal(t, []model.Edge{{
		Type: "PARTICIPATED_IN", From: "p", To: "t", FromLabel: "Individual", ToLabel: "FinancialTransaction",
		Properties: map[string]any{"since": int64(2019), "role": "principal_investigator"},
	}}, s.Edges())
}

func TestRetypeToSameTypeOnlyMerges(t *testing.T) {
	r := &Retype{Edge: model.Edge{Type: "CITES", From: "a", To: "b"}, NewType: "CITES"}
	ops, err := r.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, store.OpUpsertEdge, ops[0].Kind)
}
