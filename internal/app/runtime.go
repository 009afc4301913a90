package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core/canonical"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/orchestrator"
	"github.com/agenthands/graphmerge/internal/source"
	"github.com/agenthands/graphmerge/internal/store"
	"github.com/agenthands/graphmerge/internal/store/graphstore"
	"github.com/agenthands/graphmerge/internal/validation"
)

// Runtime is an open graph connection plus the record source.
type Runtime struct {
	Graph  store.Graph
	Source source.Reader
	// Target names the graph in prompts and logs.
	Target string
	// Prepare makes the schema changes mutation needs. It may be nil.
	Prepare func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

// OnClose registers f to run on Close.
func (r *Runtime) OnClose(f func(ctx context.Context) error) {
	r.closers = append(r.closers, f)
}

func (r *Runtime) Close(ctx context.Context) error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// KeyLabels are the labels whose key property gets an index before mutation.
func KeyLabels() []string {
	labels := []string{orchestrator.TrackingLabel}
	for _, et := range validation.EntityTypes {
		labels = append(labels, canonical.ProfileFor(et).Label)
	}
	return append(labels, source.LegacyLabels()...)
}

// Connect opens the Bolt driver, verifying connectivity and credentials
// before anything else runs, and the configured record source.
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	d, err := driver.NewBoltDriver(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	gs := graphstore.New(d, logger)

	rt := &Runtime{
		Graph:  gs,
		Target: cfg.Store.URI,
		Prepare: func(ctx context.Context) error {
			return gs.EnsureKeyIndexes(ctx, KeyLabels())
		},
	}
	rt.OnClose(d.Close)

	switch cfg.Source.Kind {
	case "graph":
		rt.Source = source.NewGraphSource(gs)
	case "file":
		rt.Source = source.NewFileSource(cfg.Source.Path)
	case "postgres":
		pool, err := source.OpenPostgres(ctx, cfg.Source.DSN)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		rt.OnClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		rt.Source = source.NewPostgresSource(pool, cfg.Source.Table)
	default:
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
	return rt, nil
}
