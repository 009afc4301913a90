// Package memstore is an in-memory graph store with the same MERGE semantics
// as the Bolt-backed store. Each Apply is atomic.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/store"
)

type node struct {
	labels []string
	props  map[string]any
}

type edgeID struct {
	typ, from, to string
}

type state struct {
	nodes map[string]*node
	edges map[edgeID]map[string]any
}

func (s *state) clone() *state {
	out := &state{
		nodes: make(map[string]*node, len(s.nodes)),
		edges: make(map[edgeID]map[string]any, len(s.edges)),
	}
	for k, n := range s.nodes {
		out.nodes[k] = &node{labels: append([]string(nil), n.labels...), props: copyProps(n.props)}
	}
	for id, p := range s.edges {
		out.edges[id] = copyProps(p)
	}
	return out
}

// FailFunc lets tests inject store failures. A non-nil error aborts the batch.
type FailFunc func(ops []store.Op) error

type Store struct {
	mu      sync.RWMutex
	st      *state
	fail    FailFunc
	applied int
}

var _ store.Graph = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{nodes: map[string]*node{}, edges: map[edgeID]map[string]any{}}}
}

// SetFailFunc installs f to be consulted before every Apply.
func (s *Store) SetFailFunc(f FailFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = f
}

// Applied returns the number of committed Apply calls.
func (s *Store) Applied() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// AddNode seeds a node directly.
func (s *Store) AddNode(label, key string, props map[string]any) {
	_ = s.Apply(context.Background(), []store.Op{store.UpsertNode(label, key, props)})
}

// AddEdge seeds an edge directly.
func (s *Store) AddEdge(edgeType, from, to string, props map[string]any) {
	_ = s.Apply(context.Background(), []store.Op{store.UpsertEdge(edgeType, from, to, props)})
}

func (s *Store) Apply(ctx context.Context, ops []store.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(ops); err != nil {
			return err
		}
	}

	next := s.st.clone()
	for _, op := range ops {
		next.apply(op)
	}
	s.st = next
	s.applied++
	return nil
}

func (st *state) apply(op store.Op) {
	switch op.Kind {
	case store.OpUpsertNode:
		n, ok := st.nodes[op.Key]
		if !ok {
			n = &node{props: map[string]any{}}
			st.nodes[op.Key] = n
		}
		if !hasLabel(n.labels, op.Label) {
			n.labels = append(n.labels, op.Label)
		}
		for k, v := range op.Attributes {
			n.props[k] = v
		}
		n.props[store.KeyProperty] = op.Key

	case store.OpUpsertEdge:
		if !st.endpoint(op.From, op.FromLabel) || !st.endpoint(op.To, op.ToLabel) {
			return
		}
		id := edgeID{op.EdgeType, op.From, op.To}
		props, ok := st.edges[id]
		if !ok {
			props = map[string]any{}
			st.edges[id] = props
		}
		for k, v := range op.Properties {
			props[k] = v
		}

	case store.OpDeleteNode:
		if _, ok := st.nodes[op.Key]; !ok {
			return
		}
		var incident []edgeID
		for id := range st.edges {
			if id.from == op.Key || id.to == op.Key {
				incident = append(incident, id)
			}
		}
		if op.MaxEdges >= 0 && len(incident) > op.MaxEdges {
			return
		}
		for _, id := range incident {
			delete(st.edges, id)
		}
		delete(st.nodes, op.Key)

	case store.OpDeleteEdge:
		delete(st.edges, edgeID{op.EdgeType, op.From, op.To})
	}
}

func (st *state) endpoint(key, label string) bool {
	n, ok := st.nodes[key]
	if !ok {
		return false
	}
	return label == "" || hasLabel(n.labels, label)
}

func (s *Store) Count(ctx context.Context, shape store.CountShape) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if shape.CountsEdges() {
		for id, props := range s.st.edges {
			if (shape.EdgeType == "" || id.typ == shape.EdgeType) && matches(props, shape.Where) {
				n++
			}
		}
		return n, nil
	}
	for _, nd := range s.st.nodes {
		if (shape.Label == "" || hasLabel(nd.labels, shape.Label)) && matches(nd.props, shape.Where) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Node(ctx context.Context, key string) (*store.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.st.nodes[key]
	if !ok {
		return nil, nil
	}
	out := toNode(key, n)
	return &out, nil
}

func (s *Store) NodesByLabel(ctx context.Context, label string) ([]store.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Node
	for key, n := range s.st.nodes {
		if hasLabel(n.labels, label) {
			out = append(out, toNode(key, n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) IncidentEdges(ctx context.Context, key string) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Edge
	for id, props := range s.st.edges {
		if id.from == key || id.to == key {
			out = append(out, s.edge(id, props))
		}
	}
	model.SortEdges(out)
	return out, nil
}

func (s *Store) EdgesByType(ctx context.Context, edgeType string) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Edge
	for id, props := range s.st.edges {
		if id.typ == edgeType {
			out = append(out, s.edge(id, props))
		}
	}
	model.SortEdges(out)
	return out, nil
}

// Edges returns every edge, sorted.
func (s *Store) Edges() []model.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Edge, 0, len(s.st.edges))
	for id, props := range s.st.edges {
		out = append(out, s.edge(id, props))
	}
	model.SortEdges(out)
	return out
}

func (s *Store) edge(id edgeID, props map[string]any) model.Edge {
	return model.Edge{
		Type:       id.typ,
		From:       id.from,
		To:         id.to,
		FromLabel:  s.primaryLabel(id.from),
		ToLabel:    s.primaryLabel(id.to),
		Properties: copyProps(props),
	}
}

func (s *Store) primaryLabel(key string) string {
	if n, ok := s.st.nodes[key]; ok && len(n.labels) > 0 {
		return n.labels[0]
	}
	return ""
}

func toNode(key string, n *node) store.Node {
	return store.Node{Key: key, Labels: append([]string(nil), n.labels...), Props: copyProps(n.props)}
}

func matches(props, where map[string]any) bool {
	for k, v := range where {
		if props[k] != v {
			return false
		}
	}
	return true
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func copyProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
