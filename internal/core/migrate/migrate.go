// Package migrate re-points the relationships of absorbed records onto their
// canonical entity and retires the absorbed records.
package migrate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/store"
)

// Move assigns an absorbed record to its canonical entity.
type Move struct {
	RecordKey      string
	CanonicalID    string
	CanonicalLabel string
}

type target struct {
	id, label string
}

// Redirects maps every record absorbed in the run to its canonical entity so
// edges between two absorbed records land on canonical endpoints.
type Redirects map[string]target

func NewRedirects(moves []Move) Redirects {
	r := make(Redirects, len(moves))
	for _, m := range moves {
		r[m.RecordKey] = target{id: m.CanonicalID, label: m.CanonicalLabel}
	}
	return r
}

type Migrator struct {
	reader store.Reader
	logger zerolog.Logger
}

func New(reader store.Reader, logger zerolog.Logger) *Migrator {
	return &Migrator{reader: reader, logger: logger.With().Str("component", "migrate").Logger()}
}

// Units returns one migration per move, all in the Pending state.
func (m *Migrator) Units(moves []Move) []*Migration {
	redirects := NewRedirects(moves)
	out := make([]*Migration, 0, len(moves))
	for _, mv := range moves {
		out = append(out, &Migration{move: mv, redirects: redirects, migrator: m})
	}
	return out
}

// PlanSummary describes the last plan computed for a migration.
type PlanSummary struct {
	Missing      bool
	EdgesCopied  int
	EdgesRemoved int
	SelfLoops    int
}

// Migration moves one absorbed record. It is a batch unit.
type Migration struct {
	move      Move
	redirects Redirects
	migrator  *Migrator
	state     State
	summary   PlanSummary
}

func (m *Migration) ID() string { return "migrate:" + m.move.RecordKey }
func (m *Migration) Move() Move { return m.move }
func (m *Migration) State() State { return m.state }
func (m *Migration) Summary() PlanSummary { return m.summary }

// Advance moves the state machine one step forward.
func (m *Migration) Advance(to State) error {
	s, err := Transition(m.state, to)
	if err != nil {
		return fmt.Errorf("migration of %s: %w", m.move.RecordKey, err)
	}
	m.state = s
	return nil
}

// Plan reads the record's current edges and returns the upserts that copy
// them onto the canonical entity followed by the guarded delete of the record.
// A record that no longer exists plans nothing.
func (m *Migration) Plan(ctx context.Context) ([]store.Op, error) {
	key := m.move.RecordKey
	m.summary = PlanSummary{}

	node, err := m.migrator.reader.Node(ctx, key)
	if err != nil {
		return nil, err
	}
	if node == nil {
		m.summary.Missing = true
		return nil, nil
	}

	edges, err := m.migrator.reader.IncidentEdges(ctx, key)
	if err != nil {
		return nil, err
	}

	ops, selfLoops := m.copyOps(edges)
	m.summary.EdgesCopied = len(ops)
	m.summary.EdgesRemoved = len(edges)
	m.summary.SelfLoops = selfLoops

	ops = append(ops, store.DeleteNodeGuarded(key, len(edges)))

	m.migrator.logger.Debug().
		Str("record", key).
		Str("canonical", m.move.CanonicalID).
		Int("edges", len(edges)).
		Int("self_loops", selfLoops).
		Msg("planned migration")
	return ops, nil
}

func (m *Migration) copyOps(edges []model.Edge) ([]store.Op, int) {
	key := m.move.RecordKey
	canonical := m.move.CanonicalID

	merged := make(map[model.EdgeKey]map[string]any)
	labels := make(map[model.EdgeKey]string)
	var order []model.EdgeKey
	selfLoops := 0

	for _, e := range edges {
		dir, far, farLabel := e.Orient(key)
		if far == key {
			far, farLabel = canonical, m.move.CanonicalLabel
		}
		if t, ok := m.redirects[far]; ok {
			far, farLabel = t.id, t.label
		}
		if far == canonical {
			selfLoops++
			continue
		}

		ek := model.EdgeKey{Type: e.Type, Direction: dir, Far: far}
		if _, seen := merged[ek]; !seen {
			order = append(order, ek)
		}
		merged[ek] = model.MergeProperties(merged[ek], e.Properties)
		labels[ek] = farLabel
	}

	ops := make([]store.Op, 0, len(order)+1)
	for _, ek := range order {
		if ek.Direction == model.Outgoing {
			ops = append(ops, store.UpsertEdge(ek.Type, canonical, ek.Far, merged[ek]).
				WithLabels(m.move.CanonicalLabel, labels[ek]))
		} else {
			ops = append(ops, store.UpsertEdge(ek.Type, ek.Far, canonical, merged[ek]).
				WithLabels(labels[ek], m.move.CanonicalLabel))
		}
	}
	return ops, selfLoops
}

// Commit walks the state machine to Done once the unit's batch is written.
func (m *Migration) Commit() error {
	for _, s := range []State{EdgesCopied, RecordRetired, Done} {
		if err := m.Advance(s); err != nil {
			return err
		}
	}
	return nil
}

// Summary totals a set of migrations.
type Summary struct {
	Records      int `json:"records" yaml:"records"`
	Done         int `json:"done" yaml:"done"`
	Missing      int `json:"missing" yaml:"missing"`
	EdgesCopied  int `json:"edges_copied" yaml:"edges_copied"`
	EdgesRemoved int `json:"edges_removed" yaml:"edges_removed"`
	SelfLoops    int `json:"self_loops" yaml:"self_loops"`
}

func Summarize(ms []*Migration) Summary {
	s := Summary{Records: len(ms)}
	for _, m := range ms {
		if m.state == Done {
			s.Done++
		}
		ps := m.summary
		if ps.Missing {
			s.Missing++
		}
		s.EdgesCopied += ps.EdgesCopied
		s.EdgesRemoved += ps.EdgesRemoved
		s.SelfLoops += ps.SelfLoops
	}
	return s
}
