package driver

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type MockDriver struct {
	Queries     []string
	QueryParams map[string]interface{}
	Results     []neo4j.EagerResult
	Err         error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Queries = append(m.Queries, query)
	m.QueryParams = params
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	if len(m.Results) == 0 {
		return neo4j.EagerResult{}, nil
	}
	res := m.Results[0]
	m.Results = m.Results[1:]
	return res, nil
}

func (m *MockDriver) ExecuteWrite(ctx context.Context, stmts []Statement) error {
	for _, st := range stmts {
		m.Queries = append(m.Queries, st.Query)
	}
	return m.Err
}

func (m *MockDriver) EnsureIndex(ctx context.Context, label, property string) (SchemaResult, error) {
	return ensure(ctx, m, DialectNeo4j, label, property, false)
}

func (m *MockDriver) EnsureConstraint(ctx context.Context, label, property string) (SchemaResult, error) {
	return ensure(ctx, m, DialectNeo4j, label, property, true)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}

func countResult(n int64) neo4j.EagerResult {
	return neo4j.EagerResult{Records: []*neo4j.Record{{Keys: []string{"count"}, Values: []any{n}}}}
}
