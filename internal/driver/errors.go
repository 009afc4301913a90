package driver

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/graphmerge/internal/errors"
)

// Classify maps driver errors onto the engine's error taxonomy: retryable
// failures become TransientError, rejected credentials wrap ErrAuth.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isAuth(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, errors.ErrAuth, err)
	}
	if isTransient(err) {
		return errors.NewTransient(op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isAuth(err error) bool {
	var nerr *neo4j.Neo4jError
	return stderrors.As(err, &nerr) && strings.HasPrefix(nerr.Code, "Neo.ClientError.Security.")
}

func isTransient(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) {
		return true
	}
	var nerr *neo4j.Neo4jError
	if stderrors.As(err, &nerr) && strings.Contains(nerr.Code, "TransientError") {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "i/o timeout")
}

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validName(s string) bool { return nameRE.MatchString(s) }
