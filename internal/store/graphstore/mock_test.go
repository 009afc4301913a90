package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphmerge/internal/driver"
)

type MockDriver struct {
	QueryExecuted string
	QueryParams   map[string]interface{}
	Written       []driver.Statement
	MockResult    neo4j.EagerResult
	Indexed       []string
	Err           error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.QueryExecuted = query
	m.QueryParams = params
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	return m.MockResult, nil
}

func (m *MockDriver) ExecuteWrite(ctx context.Context, stmts []driver.Statement) error {
	if m.Err != nil {
		return m.Err
	}
	m.Written = append(m.Written, stmts...)
	return nil
}

func (m *MockDriver) EnsureIndex(ctx context.Context, label, property string) (driver.SchemaResult, error) {
	m.Indexed = append(m.Indexed, label+"."+property)
	return driver.SchemaAlreadyPresent, m.Err
}

func (m *MockDriver) EnsureConstraint(ctx context.Context, label, property string) (driver.SchemaResult, error) {
	return driver.SchemaAlreadyPresent, m.Err
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}
