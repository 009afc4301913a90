package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/errors"
)

const (
	DialectNeo4j    = "neo4j"
	DialectMemgraph = "memgraph"
)

// BoltDriver talks to Neo4j or Memgraph over Bolt.
type BoltDriver struct {
	Driver   neo4j.DriverWithContext
	Database string
	Dialect  string
	logger   zerolog.Logger
}

// NewBoltDriver connects and verifies connectivity. Failures are returned as
// configuration or auth errors so callers abort before any mutation.
func NewBoltDriver(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (*BoltDriver, error) {
	auth := neo4j.NoAuth()
	if cfg.User != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		if cfg.ConnectTimeout.Duration > 0 {
			c.SocketConnectTimeout = cfg.ConnectTimeout.Duration
		}
	})
	if err != nil {
		return nil, errors.NewConfigError("store", "invalid driver settings", err)
	}

	verifyCtx := ctx
	if cfg.ConnectTimeout.Duration > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout.Duration)
		defer cancel()
	}
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		if isAuth(err) {
			return nil, fmt.Errorf("failed to connect to %s: %w: %w", cfg.URI, errors.ErrAuth, err)
		}
		return nil, errors.NewConfigError("store", fmt.Sprintf("cannot reach %s", cfg.URI), err)
	}

	dialect := cfg.Dialect
	if dialect == "" {
		dialect = DialectNeo4j
	}
	logger = logger.With().Str("component", "driver").Str("dialect", dialect).Logger()
	logger.Info().Str("uri", cfg.URI).Msg("connected to graph store")

	return &BoltDriver{Driver: driver, Database: cfg.Database, Dialect: dialect, logger: logger}, nil
}

func (d *BoltDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *BoltDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.Database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, Classify("execute query", err)
	}
	return *result, nil
}

func (d *BoltDriver) ExecuteWrite(ctx context.Context, stmts []Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	session := d.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.Query, st.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return Classify(fmt.Sprintf("write of %d statement(s)", len(stmts)), err)
	}
	return nil
}
