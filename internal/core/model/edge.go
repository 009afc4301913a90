package model

import "sort"

// Edge is a typed, directed relationship between two keyed graph nodes.
type Edge struct {
	Type       string         `json:"type"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	FromLabel  string         `json:"from_label,omitempty"`
	ToLabel    string         `json:"to_label,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Orient reports the direction of e as seen from key and the far endpoint.
func (e Edge) Orient(key string) (Direction, string, string) {
	if e.From == key {
		return Outgoing, e.To, e.ToLabel
	}
	return Incoming, e.From, e.FromLabel
}

// EdgeKey identifies an edge by type, direction and far endpoint. At most one
// edge per EdgeKey may exist on a canonical entity.
type EdgeKey struct {
	Type      string
	Direction Direction
	Far       string
}

// MergeProperties returns the union of base and overlay, overlay winning.
func MergeProperties(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// SortEdges orders edges deterministically by type, from, to.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Type != edges[j].Type {
			return edges[i].Type < edges[j].Type
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
}
