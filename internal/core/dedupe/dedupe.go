// Package dedupe consolidates the record pool of one entity type: it groups
// duplicates, merges each cluster into a canonical entity, writes the
// canonical entities and migrates the absorbed records onto them.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenthands/graphmerge/internal/batch"
	"github.com/agenthands/graphmerge/internal/core/canonical"
	"github.com/agenthands/graphmerge/internal/core/grouping"
	"github.com/agenthands/graphmerge/internal/core/migrate"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/errors"
	"github.com/agenthands/graphmerge/internal/store"
)

type Options struct {
	EntityType model.EntityType
	// Label of the canonical nodes; defaults to the entity type profile label.
	Label      string
	Strategies []grouping.MatchKey
	BatchSize  int
}

// Plan is the computed, not yet applied, consolidation of one pool.
type Plan struct {
	EntityType model.EntityType         `json:"entity_type" yaml:"entity_type"`
	Label      string                   `json:"label" yaml:"label"`
	Records    int                      `json:"records" yaml:"records"`
	Clusters   []model.DuplicateCluster `json:"-" yaml:"-"`
	Leftover   int                      `json:"leftover" yaml:"leftover"`
	Decisions  []model.MergeDecision    `json:"decisions" yaml:"decisions"`
	Canonicals []*model.CanonicalEntity `json:"-" yaml:"-"`
	Moves      []migrate.Move           `json:"-" yaml:"-"`
}

// Result summarizes an applied consolidation.
type Result struct {
	EntityType      model.EntityType `json:"entity_type" yaml:"entity_type"`
	Records         int              `json:"records" yaml:"records"`
	Clusters        int              `json:"clusters" yaml:"clusters"`
	Created         int              `json:"created" yaml:"created"`
	Updated         int              `json:"updated" yaml:"updated"`
	Unchanged       int              `json:"unchanged" yaml:"unchanged"`
	Absorbed        int              `json:"absorbed" yaml:"absorbed"`
	AlreadyAbsorbed int              `json:"already_absorbed" yaml:"already_absorbed"`
	Conflicts       []model.Conflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Migration       migrate.Summary  `json:"migration" yaml:"migration"`
	Stats           batch.RunStats   `json:"stats" yaml:"stats"`
}

type Deduplicator struct {
	graph    store.Graph
	engine   *batch.Engine
	selector *canonical.Selector
	migrator *migrate.Migrator
	logger   zerolog.Logger
}

func NewDeduplicator(graph store.Graph, engine *batch.Engine, now func() time.Time, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		graph:    graph,
		engine:   engine,
		selector: canonical.NewSelector(now),
		migrator: migrate.New(graph, logger),
		logger:   logger.With().Str("component", "dedupe").Logger(),
	}
}

// Plan groups records and merges every cluster against the canonical
// entities already in the store. It reads but never writes.
func (d *Deduplicator) Plan(ctx context.Context, opts Options, records []model.RawRecord) (*Plan, error) {
	label := opts.Label
	if label == "" {
		label = canonical.ProfileFor(opts.EntityType).Label
	}
	strategies := opts.Strategies
	if strategies == nil {
		strategies = grouping.DefaultStrategies()
	}

	index, err := d.loadCanonicals(ctx, label)
	if err != nil {
		return nil, err
	}

	clusters, leftover := grouping.Group(records, strategies)
	plan := &Plan{
		EntityType: opts.EntityType,
		Label:      label,
		Records:    len(records),
		Clusters:   clusters,
		Leftover:   len(leftover),
	}

	changed := map[string]bool{}
	var order []string
	for _, cluster := range clusters {
		candidates := index.lookup(cluster)
		var existing *model.CanonicalEntity
		if len(candidates) > 0 {
			existing = index.byID[candidates[0]]
		}

		// Members already absorbed by another canonical entity stay there.
		members, elsewhere := index.split(cluster, existing)
		cluster.Members = members

		c, decision := d.selector.Select(cluster, existing)
		c.Label = label
		if len(candidates) > 1 {
			decision.Candidates = candidates[1:]
			d.logger.Warn().
				Str("canonical", c.ID).
				Strs("also_matched", decision.Candidates).
				Msg("cluster matches several canonical entities, merging into the strongest match only")
		}
		for _, key := range sortedKeys(elsewhere) {
			decision.AbsorbedElsewhere = append(decision.AbsorbedElsewhere, key)
			plan.Moves = append(plan.Moves, migrate.Move{RecordKey: key, CanonicalID: elsewhere[key], CanonicalLabel: label})
		}
		for _, cf := range decision.Conflicts {
			d.logger.Warn().Err(&errors.ConflictError{
				RecordKey:   cf.RecordKey,
				CanonicalID: c.ID,
				Field:       cf.Field,
				Canonical:   cf.Canonical,
				Incoming:    cf.Incoming,
			}).Msg("record left unmerged for review")
		}

		index.put(c)
		plan.Decisions = append(plan.Decisions, decision)
		if decision.Changed() {
			if !changed[c.ID] {
				order = append(order, c.ID)
			}
			changed[c.ID] = true
		}
		for _, key := range decision.Retire() {
			if key == c.ID {
				continue
			}
			plan.Moves = append(plan.Moves, migrate.Move{RecordKey: key, CanonicalID: c.ID, CanonicalLabel: label})
		}
	}
	for _, id := range order {
		plan.Canonicals = append(plan.Canonicals, index.byID[id])
	}

	d.logger.Debug().
		Str("entity_type", string(opts.EntityType)).
		Int("records", plan.Records).
		Int("clusters", len(clusters)).
		Int("canonical_writes", len(plan.Canonicals)).
		Int("moves", len(plan.Moves)).
		Msg("consolidation planned")
	return plan, nil
}

// Consolidate plans and applies: canonical upserts first, then migrations.
func (d *Deduplicator) Consolidate(ctx context.Context, opts Options, records []model.RawRecord) (*Result, error) {
	plan, err := d.Plan(ctx, opts, records)
	if err != nil {
		return nil, err
	}
	res := summarize(plan)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	upserts := make([]batch.Unit, 0, len(plan.Canonicals))
	for _, c := range plan.Canonicals {
		upserts = append(upserts, &upsertUnit{entity: c})
	}
	stats, err := d.engine.Run(ctx, upserts, batchSize)
	res.Stats.Add(stats)
	if err != nil {
		return res, fmt.Errorf("failed to write %s canonical entities: %w", opts.EntityType, err)
	}

	migrations := d.migrator.Units(plan.Moves)
	units := make([]batch.Unit, 0, len(migrations))
	for _, m := range migrations {
		units = append(units, m)
	}
	stats, err = d.engine.Run(ctx, units, batchSize)
	res.Stats.Add(stats)
	res.Migration = migrate.Summarize(migrations)
	if err != nil {
		return res, fmt.Errorf("failed to migrate absorbed %s records: %w", opts.EntityType, err)
	}

	d.logger.Info().
		Str("entity_type", string(opts.EntityType)).
		Int("records", res.Records).
		Int("clusters", res.Clusters).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("absorbed", res.Absorbed).
		Int("conflicts", len(res.Conflicts)).
		Int("retired", res.Migration.Done-res.Migration.Missing).
		Msg("consolidation finished")
	return res, nil
}

func (d *Deduplicator) loadCanonicals(ctx context.Context, label string) (*canonicalIndex, error) {
	nodes, err := d.graph.NodesByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s canonical entities: %w", label, err)
	}
	index := newCanonicalIndex()
	for _, n := range nodes {
		c, err := model.CanonicalFromProps(label, n.Props)
		if err != nil {
			return nil, err
		}
		if c.ID == "" {
			c.ID = n.Key
		}
		index.put(c)
	}
	return index, nil
}

func summarize(plan *Plan) *Result {
	res := &Result{
		EntityType: plan.EntityType,
		Records:    plan.Records,
		Clusters:   len(plan.Clusters),
	}
	for _, dec := range plan.Decisions {
		switch {
		case dec.Created:
			res.Created++
		case dec.Changed():
			res.Updated++
		default:
			res.Unchanged++
		}
		res.Absorbed += len(dec.Absorbed)
		res.AlreadyAbsorbed += len(dec.AlreadyAbsorbed)
		res.Conflicts = append(res.Conflicts, dec.Conflicts...)
	}
	return res
}

type upsertUnit struct {
	entity *model.CanonicalEntity
}

func (u *upsertUnit) ID() string { return "canonical:" + u.entity.ID }

func (u *upsertUnit) Plan(ctx context.Context) ([]store.Op, error) {
	props, err := u.entity.Props()
	if err != nil {
		return nil, err
	}
	return []store.Op{store.UpsertNode(u.entity.Label, u.entity.ID, props)}, nil
}
