package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/agenthands/graphmerge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	ops := []store.Op{
		store.UpsertNode("Organization", "g", map[string]any{"name": "G"}),
		store.UpsertNode("Agency", "x", nil),
		store.UpsertEdge("FUNDED_BY", "g", "x", map[string]any{"year": 2020}),
	}
	require.NoError(t, s.Apply(ctx, ops))
	require.NoError(t, s.Apply(ctx, ops))

	n, err := s.Count(ctx, store.CountShape{EdgeType: "FUNDED_BY"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Count(ctx, store.CountShape{Label: "Organization", Where: map[string]any{"name": "G"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Count(ctx, store.CountShape{Edges: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsertEdgeNeedsEndpoints(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.AddNode("Organization", "g", nil)
	require.NoError(t, s.Apply(ctx, []store.Op{store.UpsertEdge("FUNDED_BY", "g", "missing", nil)}))
	assert.Empty(t, s.Edges())

	s.AddNode("Agency", "x", nil)
	require.NoError(t, s.Apply(ctx, []store.Op{store.UpsertEdge("FUNDED_BY", "g", "x", nil).WithLabels("Agency", "")}))
	assert.Empty(t, s.Edges(), "label mismatch on endpoint")
}

func TestGuardedDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.AddNode("Company", "f", nil)
	s.AddNode("Agency", "x", nil)
	s.AddNode("Agency", "y", nil)
	s.AddEdge("FUNDED_BY", "f", "x", nil)
	s.AddEdge("FUNDED_BY", "f", "y", nil)

	require.NoError(t, s.Apply(ctx, []store.Op{store.DeleteNodeGuarded("f", 1)}))
	n, _ := s.Node(ctx, "f")
	assert.NotNil(t, n, "node gained edges, delete skipped")

	require.NoError(t, s.Apply(ctx, []store.Op{store.DeleteNodeGuarded("f", 2)}))
	n, _ = s.Node(ctx, "f")
	assert.Nil(t, n)
	assert.Empty(t, s.Edges())
}

func TestApplyIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.SetFailFunc(func(ops []store.Op) error {
		if len(ops) > 1 {
			return boom
		}
		return nil
	})

	err := s.Apply(ctx, []store.Op{store.UpsertNode("A", "1", nil), store.UpsertNode("A", "2", nil)})
	assert.ErrorIs(t, err, boom)
	nodes, _ := s.NodesByLabel(ctx, "A")
	assert.Empty(t, nodes)

	err = s.Apply(ctx, []store.Op{store.UpsertNode("A", "1", nil), store.UpsertNode("bad label", "2", nil)})
	assert.Error(t, err)
	nodes, _ = s.NodesByLabel(ctx, "A")
	assert.Empty(t, nodes)
	assert.Equal(t, 0, s.Applied())
}

func TestReaderQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.AddNode("Company", "f", map[string]any{"name": "F"})
	s.AddNode("Agency", "x", nil)
	s.AddEdge("FUNDED_BY", "f", "x", map[string]any{"amount": int64(5)})
	s.AddEdge("PARTNER_OF", "x", "f", nil)

	edges, err := s.IncidentEdges(ctx, "f")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "FUNDED_BY", edges[0].Type)
	assert.Equal(t, "Company", edges[0].FromLabel)
	assert.Equal(t, "Agency", edges[0].ToLabel)
	assert.Equal(t, int64(5), edges[0].Properties["amount"])

	byType, err := s.EdgesByType(ctx, "PARTNER_OF")
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "x", byType[0].From)

	n, err := s.Node(ctx, "f")
	require.NoError(t, err)
	assert.True(t, n.HasLabel("Company"))
	assert.Equal(t, "f", n.Props[store.KeyProperty])

	require.NoError(t, s.Apply(ctx, []store.Op{store.DeleteEdge("PARTNER_OF", "x", "f")}))
	byType, _ = s.EdgesByType(ctx, "PARTNER_OF")
	assert.Empty(t, byType)
}
