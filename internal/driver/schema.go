package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphmerge/internal/core/model"
)

func (d *BoltDriver) EnsureIndex(ctx context.Context, label, property string) (SchemaResult, error) {
	return ensure(ctx, d, d.Dialect, label, property, false)
}

func (d *BoltDriver) EnsureConstraint(ctx context.Context, label, property string) (SchemaResult, error) {
	return ensure(ctx, d, d.Dialect, label, property, true)
}

// ensure looks the schema object up first and only creates it when missing,
// so "already exists" never travels as an error.
func ensure(ctx context.Context, d GraphDriver, dialect, label, property string, unique bool) (SchemaResult, error) {
	if !validName(label) || !validName(property) {
		return SchemaCreated, fmt.Errorf("invalid schema target %q.%q", label, property)
	}

	kind := "index"
	if unique {
		kind = "constraint"
	}

	present, err := schemaPresent(ctx, d, dialect, label, property, unique)
	if err != nil {
		return SchemaCreated, fmt.Errorf("failed to inspect %s on :%s(%s): %w", kind, label, property, err)
	}
	if present {
		return SchemaAlreadyPresent, nil
	}

	if _, err := d.ExecuteQuery(ctx, createSchemaQuery(dialect, label, property, unique), nil); err != nil {
		return SchemaCreated, fmt.Errorf("failed to create %s on :%s(%s): %w", kind, label, property, err)
	}
	return SchemaCreated, nil
}

func schemaPresent(ctx context.Context, d GraphDriver, dialect, label, property string, unique bool) (bool, error) {
	if dialect == DialectMemgraph {
		query := ShowIndexInfoMemgraph
		if unique {
			query = ShowConstraintInfoMemgraph
		}
		res, err := d.ExecuteQuery(ctx, query, nil)
		if err != nil {
			return false, err
		}
		for _, rec := range res.Records {
			if unique {
				if t, _ := recordValue(rec, "constraint type").(string); t != "unique" {
					continue
				}
			}
			l, _ := recordValue(rec, "label").(string)
			props := recordValue(rec, "property")
			if props == nil {
				props = recordValue(rec, "properties")
			}
			if l == label && propertyMatches(props, property) {
				return true, nil
			}
		}
		return false, nil
	}

	query := ShowIndexesNeo4j
	if unique {
		query = ShowConstraintsNeo4j
	}
	res, err := d.ExecuteQuery(ctx, query, map[string]interface{}{"label": label, "property": property})
	if err != nil {
		return false, err
	}
	if len(res.Records) == 0 {
		return false, nil
	}
	n, _ := model.Int64(recordValue(res.Records[0], "count"))
	return n > 0, nil
}

func createSchemaQuery(dialect, label, property string, unique bool) string {
	switch {
	case dialect == DialectMemgraph && unique:
		return fmt.Sprintf(CreateConstraintMemgraph, label, property)
	case dialect == DialectMemgraph:
		return fmt.Sprintf(CreateIndexMemgraph, label, property)
	case unique:
		return fmt.Sprintf(CreateConstraintNeo4j, schemaName("uniq", label, property), label, property)
	default:
		return fmt.Sprintf(CreateIndexNeo4j, schemaName("idx", label, property), label, property)
	}
}

func schemaName(prefix, label, property string) string {
	return fmt.Sprintf("graphmerge_%s_%s_%s", prefix, label, property)
}

func recordValue(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func propertyMatches(v any, property string) bool {
	switch p := v.(type) {
	case string:
		return p == property
	case []any:
		return len(p) == 1 && p[0] == property
	case []string:
		return len(p) == 1 && p[0] == property
	}
	return false
}
