package driver

import (
	"context"
	"fmt"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"

	"github.com/agenthands/graphmerge/internal/errors"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("noop", nil))

	auth := &neo4j.Neo4jError{Code: "Neo.ClientError.Security.Unauthorized", Msg: "bad credentials"}
	err := Classify("connect", auth)
	assert.ErrorIs(t, err, errors.ErrAuth)
	assert.False(t, errors.IsTransient(err))

	deadlock := &neo4j.Neo4jError{Code: "Neo.TransientError.Transaction.DeadlockDetected", Msg: "deadlock"}
	assert.True(t, errors.IsTransient(Classify("write", deadlock)))

	memgraph := &neo4j.Neo4jError{Code: "Memgraph.TransientError.MemgraphError.MemgraphError", Msg: "conflict"}
	assert.True(t, errors.IsTransient(Classify("write", memgraph)))

	assert.True(t, errors.IsTransient(Classify("write", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))))
	assert.True(t, errors.IsTransient(Classify("write", fmt.Errorf("read tcp: connection reset by peer"))))

	syntax := &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "oops"}
	err = Classify("write", syntax)
	assert.False(t, errors.IsTransient(err))
	assert.Contains(t, err.Error(), "failed to write")
}
