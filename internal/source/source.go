// Package source supplies the raw record pool of each entity type. Records
// come from legacy nodes already in the graph, from a YAML or JSON file, or
// from a Postgres staging table.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/store"
)

// Reader returns the records of one entity type.
type Reader interface {
	Records(ctx context.Context, entityType model.EntityType) ([]model.RawRecord, error)
}

// GraphSource reads legacy-shaped nodes from the store.
type GraphSource struct {
	reader store.Reader
}

func NewGraphSource(reader store.Reader) *GraphSource {
	return &GraphSource{reader: reader}
}

func (g *GraphSource) Records(ctx context.Context, entityType model.EntityType) ([]model.RawRecord, error) {
	shape, ok := ShapeFor(entityType)
	if !ok {
		return nil, fmt.Errorf("no legacy shape for entity type %q", entityType)
	}

	var out []model.RawRecord
	seen := map[string]bool{}
	for _, label := range shape.Labels {
		nodes, err := g.reader.NodesByLabel(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s records: %w", label, err)
		}
		for _, n := range nodes {
			if n.Key == "" || seen[n.Key] {
				continue
			}
			seen[n.Key] = true
			out = append(out, FromNode(shape, label, n))
		}
	}
	return out, nil
}

// FromNode maps a legacy node onto a record using shape.
func FromNode(shape Shape, label string, n store.Node) model.RawRecord {
	r := model.RawRecord{
		Key:         n.Key,
		EntityType:  shape.EntityType,
		PrimaryID:   propString(n.Props[shape.PrimaryProp]),
		SecondaryID: propString(n.Props[shape.SecondaryProp]),
		Name:        propString(n.Props[shape.NameProp]),
		Attributes:  map[string]string{},
		Counters:    map[string]int64{},
		Source:      strings.ToLower(label),
		Label:       label,
	}
	if src := propString(n.Props["source"]); src != "" {
		r.Source = src
	}

	props := make([]string, 0, len(shape.Attributes))
	for p := range shape.Attributes {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		attr := shape.Attributes[p]
		if v := propString(n.Props[p]); v != "" && r.Attributes[attr] == "" {
			r.Attributes[attr] = v
		}
	}
	for p, counter := range shape.Counters {
		if v, ok := model.Int64(n.Props[p]); ok {
			r.Counters[counter] += v
		}
	}
	return r
}

func propString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
