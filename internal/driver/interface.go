package driver

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Statement is one parameterized Cypher statement.
type Statement struct {
	Query  string
	Params map[string]interface{}
}

// SchemaResult reports what an ensure operation did.
type SchemaResult int

const (
	SchemaCreated SchemaResult = iota
	SchemaAlreadyPresent
)

func (r SchemaResult) String() string {
	if r == SchemaAlreadyPresent {
		return "already_present"
	}
	return "created"
}

type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error)
	// ExecuteWrite runs all statements in one write transaction.
	ExecuteWrite(ctx context.Context, stmts []Statement) error
	// EnsureIndex and EnsureConstraint succeed when the schema object already exists.
	EnsureIndex(ctx context.Context, label, property string) (SchemaResult, error)
	EnsureConstraint(ctx context.Context, label, property string) (SchemaResult, error)
	Close(ctx context.Context) error
}
