// Package store defines the graph store boundary used by the consolidation
// engine: batched mutation ops, count queries, and read-only planning queries.
package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/agenthands/graphmerge/internal/core/model"
)

// KeyProperty is the node property holding the global record key.
const KeyProperty = model.PropKey

type OpKind int

const (
	OpUpsertNode OpKind = iota
	OpUpsertEdge
	OpDeleteNode
	OpDeleteEdge
)

func (k OpKind) String() string {
	switch k {
	case OpUpsertNode:
		return "upsert_node"
	case OpUpsertEdge:
		return "upsert_edge"
	case OpDeleteNode:
		return "delete_node"
	case OpDeleteEdge:
		return "delete_edge"
	}
	return "unknown"
}

// Op is one idempotent store mutation.
type Op struct {
	Kind OpKind

	// nodes
	Label      string
	Key        string
	Attributes map[string]any
	// MaxEdges guards DeleteNode: the node is only removed while its degree
	// is at most MaxEdges. Negative means unguarded.
	MaxEdges int

	// edges
	EdgeType   string
	From       string
	To         string
	FromLabel  string
	ToLabel    string
	Properties map[string]any
}

func UpsertNode(label, key string, attrs map[string]any) Op {
	return Op{Kind: OpUpsertNode, Label: label, Key: key, Attributes: attrs}
}

// UpsertEdge merges a (from)-[type]->(to) edge and sets props on it.
// Endpoint labels are optional and only narrow the endpoint lookup.
func UpsertEdge(edgeType, from, to string, props map[string]any) Op {
	return Op{Kind: OpUpsertEdge, EdgeType: edgeType, From: from, To: to, Properties: props}
}

// DeleteNodeAndEdges removes the node and every edge it holds.
func DeleteNodeAndEdges(key string) Op {
	return Op{Kind: OpDeleteNode, Key: key, MaxEdges: -1}
}

// DeleteNodeGuarded removes the node only while it has at most maxEdges edges.
func DeleteNodeGuarded(key string, maxEdges int) Op {
	return Op{Kind: OpDeleteNode, Key: key, MaxEdges: maxEdges}
}

// DeleteEdge removes every from-[type]->to edge.
func DeleteEdge(edgeType, from, to string) Op {
	return Op{Kind: OpDeleteEdge, EdgeType: edgeType, From: from, To: to}
}

// WithLabels narrows the endpoint lookup of an edge op.
func (o Op) WithLabels(fromLabel, toLabel string) Op {
	o.FromLabel = fromLabel
	o.ToLabel = toLabel
	return o
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a label, edge type or
// property name inside a query.
func ValidIdentifier(s string) bool {
	return identifier.MatchString(s)
}

// Validate checks op shape before it is turned into a query.
func (o Op) Validate() error {
	switch o.Kind {
	case OpUpsertNode:
		if !ValidIdentifier(o.Label) {
			return fmt.Errorf("invalid node label %q", o.Label)
		}
		if o.Key == "" {
			return fmt.Errorf("upsert of %s node without key", o.Label)
		}
	case OpUpsertEdge, OpDeleteEdge:
		if !ValidIdentifier(o.EdgeType) {
			return fmt.Errorf("invalid edge type %q", o.EdgeType)
		}
		if o.From == "" || o.To == "" {
			return fmt.Errorf("%s %s without endpoints", o.Kind, o.EdgeType)
		}
		for _, l := range []string{o.FromLabel, o.ToLabel} {
			if l != "" && !ValidIdentifier(l) {
				return fmt.Errorf("invalid endpoint label %q", l)
			}
		}
	case OpDeleteNode:
		if o.Key == "" {
			return fmt.Errorf("delete without key")
		}
	default:
		return fmt.Errorf("unknown op kind %d", o.Kind)
	}
	return nil
}

// CountShape describes what to count: nodes with Label, or edges of
// EdgeType, optionally restricted by property equality. Edges with an empty
// EdgeType counts edges of every type.
type CountShape struct {
	Label    string
	EdgeType string
	Edges    bool
	Where    map[string]any
}

// CountsEdges reports whether the shape selects edges rather than nodes.
func (s CountShape) CountsEdges() bool {
	return s.Edges || s.EdgeType != ""
}

func (s CountShape) String() string {
	if s.CountsEdges() {
		if s.EdgeType == "" {
			return "edges:*"
		}
		return "edges:" + s.EdgeType
	}
	return "nodes:" + s.Label
}

// Node is a stored node.
type Node struct {
	Key    string
	Labels []string
	Props  map[string]any
}

// HasLabel reports whether the node carries label.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Store applies mutation batches and answers count queries.
type Store interface {
	// Apply runs ops as one bounded write. Either all ops commit or none do.
	Apply(ctx context.Context, ops []Op) error
	Count(ctx context.Context, shape CountShape) (int64, error)
}

// Reader answers the read-only queries used to plan consolidation work.
type Reader interface {
	// Node returns the node with key, or nil when it does not exist.
	Node(ctx context.Context, key string) (*Node, error)
	NodesByLabel(ctx context.Context, label string) ([]Node, error)
	IncidentEdges(ctx context.Context, key string) ([]model.Edge, error)
	EdgesByType(ctx context.Context, edgeType string) ([]model.Edge, error)
}

// Graph is a full store.
type Graph interface {
	Store
	Reader
}
