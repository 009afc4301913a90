// Package graphstore implements the store boundary on top of a Bolt graph
// driver using MERGE-based Cypher.
package graphstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/store"
)

type Store struct {
	driver driver.GraphDriver
	logger zerolog.Logger
}

var _ store.Graph = (*Store)(nil)

func New(d driver.GraphDriver, logger zerolog.Logger) *Store {
	return &Store{driver: d, logger: logger.With().Str("component", "graphstore").Logger()}
}

// Apply turns ops into statements and runs them in one write transaction.
func (s *Store) Apply(ctx context.Context, ops []store.Op) error {
	stmts := make([]driver.Statement, 0, len(ops))
	for _, op := range ops {
		st, err := Statement(op)
		if err != nil {
			return err
		}
		stmts = append(stmts, st)
	}
	return s.driver.ExecuteWrite(ctx, stmts)
}

// Statement renders one op as Cypher.
func Statement(op store.Op) (driver.Statement, error) {
	if err := op.Validate(); err != nil {
		return driver.Statement{}, err
	}
	switch op.Kind {
	case store.OpUpsertNode:
		props := op.Attributes
		if props == nil {
			props = map[string]any{}
		}
		return driver.Statement{
			Query:  fmt.Sprintf(driver.UpsertNodeQuery, op.Label),
			Params: map[string]interface{}{"key": op.Key, "props": props},
		}, nil
	case store.OpUpsertEdge:
		props := op.Properties
		if props == nil {
			props = map[string]any{}
		}
		return driver.Statement{
			Query:  fmt.Sprintf(driver.UpsertEdgeQuery, labelSuffix(op.FromLabel), labelSuffix(op.ToLabel), op.EdgeType),
			Params: map[string]interface{}{"from": op.From, "to": op.To, "props": props},
		}, nil
	case store.OpDeleteNode:
		return driver.Statement{
			Query:  driver.DeleteNodeQuery,
			Params: map[string]interface{}{"key": op.Key, "max_edges": int64(op.MaxEdges)},
		}, nil
	default:
		return driver.Statement{
			Query:  fmt.Sprintf(driver.DeleteEdgeQuery, op.EdgeType),
			Params: map[string]interface{}{"from": op.From, "to": op.To},
		}, nil
	}
}

func (s *Store) Count(ctx context.Context, shape store.CountShape) (int64, error) {
	where, params, err := whereClause(shape.Where)
	if err != nil {
		return 0, err
	}

	var query string
	if shape.CountsEdges() {
		if shape.EdgeType != "" && !store.ValidIdentifier(shape.EdgeType) {
			return 0, fmt.Errorf("invalid edge type %q", shape.EdgeType)
		}
		query = fmt.Sprintf(driver.CountEdgesQuery, labelSuffix(shape.EdgeType), where)
	} else {
		if shape.Label != "" && !store.ValidIdentifier(shape.Label) {
			return 0, fmt.Errorf("invalid label %q", shape.Label)
		}
		query = fmt.Sprintf(driver.CountNodesQuery, labelSuffix(shape.Label), where)
	}

	res, err := s.driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", shape, err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	v, _ := res.Records[0].Get("count")
	n, _ := model.Int64(v)
	return n, nil
}

func (s *Store) Node(ctx context.Context, key string) (*store.Node, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.NodeByKeyQuery, map[string]interface{}{"key": key})
	if err != nil {
		return nil, fmt.Errorf("failed to load node %s: %w", key, err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	n := toNode(res.Records[0])
	return &n, nil
}

func (s *Store) NodesByLabel(ctx context.Context, label string) ([]store.Node, error) {
	if !store.ValidIdentifier(label) {
		return nil, fmt.Errorf("invalid label %q", label)
	}
	res, err := s.driver.ExecuteQuery(ctx, fmt.Sprintf(driver.NodesByLabelQuery, label), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s nodes: %w", label, err)
	}
	out := make([]store.Node, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, toNode(rec))
	}
	return out, nil
}

func (s *Store) IncidentEdges(ctx context.Context, key string) ([]model.Edge, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.IncidentEdgesQuery, map[string]interface{}{"key": key})
	if err != nil {
		return nil, fmt.Errorf("failed to load edges of %s: %w", key, err)
	}
	return toEdges(res.Records), nil
}

func (s *Store) EdgesByType(ctx context.Context, edgeType string) ([]model.Edge, error) {
	if !store.ValidIdentifier(edgeType) {
		return nil, fmt.Errorf("invalid edge type %q", edgeType)
	}
	res, err := s.driver.ExecuteQuery(ctx, fmt.Sprintf(driver.EdgesByTypeQuery, edgeType), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s edges: %w", edgeType, err)
	}
	return toEdges(res.Records), nil
}

// EnsureKeyIndexes makes sure every label has an index on the key property.
func (s *Store) EnsureKeyIndexes(ctx context.Context, labels []string) error {
	for _, label := range labels {
		res, err := s.driver.EnsureIndex(ctx, label, store.KeyProperty)
		if err != nil {
			return err
		}
		s.logger.Debug().Str("label", label).Str("result", res.String()).Msg("key index")
	}
	return nil
}

func toNode(rec *neo4j.Record) store.Node {
	key, _ := rec.Get("key")
	labels, _ := rec.Get("labels")
	props, _ := rec.Get("props")
	n := store.Node{Labels: model.StringList(labels), Props: map[string]any{}}
	n.Key, _ = key.(string)
	if p, ok := props.(map[string]any); ok {
		n.Props = p
	}
	return n
}

// toEdges keeps parallel edges: callers merge them by EdgeKey and need the
// real degree for guarded deletes.
func toEdges(records []*neo4j.Record) []model.Edge {
	out := make([]model.Edge, 0, len(records))
	for _, rec := range records {
		var e model.Edge
		v, _ := rec.Get("type")
		e.Type, _ = v.(string)
		v, _ = rec.Get("from")
		e.From, _ = v.(string)
		v, _ = rec.Get("to")
		e.To, _ = v.(string)
		v, _ = rec.Get("from_label")
		e.FromLabel, _ = v.(string)
		v, _ = rec.Get("to_label")
		e.ToLabel, _ = v.(string)
		if v, _ = rec.Get("props"); v != nil {
			e.Properties, _ = v.(map[string]any)
		}
		out = append(out, e)
	}
	model.SortEdges(out)
	return out
}

func whereClause(where map[string]any) (string, map[string]interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		if !store.ValidIdentifier(k) {
			return "", nil, fmt.Errorf("invalid property name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make(map[string]interface{}, len(keys))
	conds := make([]string, 0, len(keys))
	for i, k := range keys {
		p := fmt.Sprintf("w%d", i)
		conds = append(conds, fmt.Sprintf("n.%s = $%s", k, p))
		params[p] = where[k]
	}
	return "WHERE " + strings.Join(conds, " AND "), params, nil
}

func labelSuffix(label string) string {
	if label == "" {
		return ""
	}
	return ":" + label
}
