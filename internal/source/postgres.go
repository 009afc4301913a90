package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenthands/graphmerge/internal/core/model"
)

// Querier is the part of pgxpool.Pool the source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads staged records from a table with the columns
// key, entity_type, primary_id, secondary_id, name, attributes (jsonb),
// counters (jsonb) and source.
type PostgresSource struct {
	db    Querier
	table string
}

func NewPostgresSource(db Querier, table string) *PostgresSource {
	return &PostgresSource{db: db, table: table}
}

// OpenPostgres connects a pool for dsn.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return pool, nil
}

const selectRecordsQuery = `
	SELECT key, entity_type, COALESCE(primary_id, ''), COALESCE(secondary_id, ''), COALESCE(name, ''),
		COALESCE(attributes, '{}'::jsonb), COALESCE(counters, '{}'::jsonb), COALESCE(source, '')
	FROM %s
	WHERE entity_type = $1
	ORDER BY key
`

func (p *PostgresSource) Records(ctx context.Context, entityType model.EntityType) ([]model.RawRecord, error) {
	query := fmt.Sprintf(selectRecordsQuery, pgx.Identifier{p.table}.Sanitize())
	rows, err := p.db.Query(ctx, query, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to query staged %s records: %w", entityType, err)
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var (
			r               model.RawRecord
			et              string
			attrs, counters []byte
		)
		if err := rows.Scan(&r.Key, &et, &r.PrimaryID, &r.SecondaryID, &r.Name, &attrs, &counters, &r.Source); err != nil {
			return nil, fmt.Errorf("failed to scan staged record: %w", err)
		}
		r.EntityType = model.EntityType(et)
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return nil, fmt.Errorf("bad attributes on staged record %s: %w", r.Key, err)
		}
		if err := json.Unmarshal(counters, &r.Counters); err != nil {
			return nil, fmt.Errorf("bad counters on staged record %s: %w", r.Key, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read staged records: %w", err)
	}
	return out, nil
}
