package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/batch"
	"github.com/agenthands/graphmerge/internal/core/canonical"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/logging"
	"github.com/agenthands/graphmerge/internal/store"
	"github.com/agenthands/graphmerge/internal/store/memstore"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newDedup(s *memstore.Store) *Deduplicator {
	engine := batch.New(s, batch.Options{MaxAttempts: 2, Logger: logging.Nop()})
	return NewDeduplicator(s, engine, func() time.Time { return now }, logging.Nop())
}

func orgOpts() Options {
	return Options{EntityType: model.EntityOrganization, BatchSize: 2}
}

// seed stores records as legacy Company nodes.
func seed(s *memstore.Store, records ...model.RawRecord) []model.RawRecord {
	for _, r := range records {
		s.AddNode("Company", r.Key, map[string]any{"name": r.Name})
	}
	return records
}

func org(key, primary, name string, attrs map[string]string) model.RawRecord {
	return model.RawRecord{Key: key, EntityType: model.EntityOrganization, PrimaryID: primary, Name: name, Attributes: attrs, Source: "awards"}
}

func canonicals(t *testing.T, s *memstore.Store) []*model.CanonicalEntity {
	t.Helper()
	nodes, err := s.NodesByLabel(context.Background(), "Organization")
	require.NoError(t, err)
	var out []*model.CanonicalEntity
	for _, n := range nodes {
		c, err := model.CanonicalFromProps("Organization", n.Props)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestConsolidatePrimaryIDDuplicates(t *testing.T) {
	s := memstore.New()
	pool := seed(s,
		org("A", "ABC 123 DEF 456", "Acme Corp", nil),
		org("B", "abc123def456", "ACME CORPORATION", map[string]string{"street": "123 Main St"}),
	)

	res, err := newDedup(s).Consolidate(context.Background(), orgOpts(), pool)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Absorbed)
	assert.Equal(t, 2, res.Migration.Done)

	cs := canonicals(t, s)
	require.Len(t, cs, 1)
	assert.Equal(t, canonical.CanonicalID(model.EntityOrganization, "primary:ABC123DEF456"), cs[0].ID)
	assert.Equal(t, "123 Main St", cs[0].Attributes["street"])
	assert.Equal(t, "ABC123DEF456", cs[0].PrimaryID)
	assert.True(t, cs[0].HasAbsorbed("A"))
	assert.True(t, cs[0].HasAbsorbed("B"))

	n, _ := s.Count(context.Background(), store.CountShape{Label: "Company"})
	assert.Equal(t, int64(0), n)
}

func TestConsolidateNameOnlyCluster(t *testing.T) {
	s := memstore.New()
	pool := seed(s,
		org("D", "", "ACME Corp.", map[string]string{"url": "acme.example"}),
		org("C", "", "Acme Corp", map[string]string{"city": "Springfield", "state": "IL", "postal_code": "62701"}),
		org("E", "", "acme corp", nil),
	)

	plan, err := newDedup(s).Plan(context.Background(), orgOpts(), pool)
	require.NoError(t, err)
	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, "C", plan.Decisions[0].Seed)
	require.Len(t, plan.Canonicals, 1)
	c := plan.Canonicals[0]
	assert.Equal(t, "Springfield", c.Attributes["city"])
	assert.Equal(t, "acme.example", c.Attributes["url"])
	assert.Len(t, plan.Moves, 3)
}

func TestConsolidateIsIdempotent(t *testing.T) {
	s := memstore.New()
	pool := seed(s,
		org("A", "P1", "Acme", nil),
		org("B", "P1", "Acme Inc", nil),
		org("C", "", "Globex", nil),
		org("D", "", "", nil),
	)
	s.AddNode("Agency", "X", nil)
	s.AddEdge("FUNDED_BY", "A", "X", nil)
	s.AddEdge("FUNDED_BY", "B", "X", map[string]any{"year": int64(2021)})

	d := newDedup(s)
	first, err := d.Consolidate(context.Background(), orgOpts(), pool)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	before := canonicals(t, s)
	edgesBefore := s.Edges()

	second, err := d.Consolidate(context.Background(), orgOpts(), pool)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 0, second.Absorbed)
	assert.Equal(t, 4, second.AlreadyAbsorbed)
	assert.Equal(t, before, canonicals(t, s))
	assert.Equal(t, edgesBefore, s.Edges())

	n, _ := s.Count(context.Background(), store.CountShape{Label: "Company"})
	assert.Equal(t, int64(0), n)
}

func TestConsolidateRepointsEdgesOnce(t *testing.T) {
	s := memstore.New()
	pool := seed(s,
		org("F", "P9", "Foo", nil),
		org("G0", "P9", "Foo Labs", map[string]string{"url": "foo.example"}),
	)
	s.AddNode("Agency", "AgencyX", nil)
	s.AddEdge("FUNDED_BY", "F", "AgencyX", map[string]any{"amount": int64(5)})
	s.AddEdge("FUNDED_BY", "G0", "AgencyX", map[string]any{"program": "SBIR"})

	res, err := newDedup(s).Consolidate(context.Background(), orgOpts(), pool)
	require.NoError(t, err)

	id := canonical.CanonicalID(model.EntityOrganization, "primary:P9")
	edges, _ := s.IncidentEdges(context.Background(), id)
	require.Len(t, edges, 1)
	assert.Equal(t, "FUNDED_BY", edges[0].Type)
	assert.Equal(t, "AgencyX", edges[0].To)
	assert.Equal(t, map[string]any{"amount": int64(5), "program": "SBIR"}, edges[0].Properties)
	assert.Equal(t, 2, res.Migration.EdgesRemoved)

	n, _ := s.Node(context.Background(), "F")
	assert.Nil(t, n)
}

func TestConsolidateLeavesConflictingRecord(t *testing.T) {
	s := memstore.New()
	pool := seed(s,
		org("A", "", "Acme", map[string]string{"city": "x"}),
		org("B", "", "Acme", nil),
	)
	pool[0].SecondaryID = "111"
	pool[1].SecondaryID = "222"

	res, err := newDedup(s).Consolidate(context.Background(), orgOpts(), pool)
	require.NoError(t, err)

	// different secondary ids do not group; both are name matches
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "B", res.Conflicts[0].RecordKey)
	n, _ := s.Node(context.Background(), "B")
	assert.NotNil(t, n, "conflicting record stays for review")
	n, _ = s.Node(context.Background(), "A")
	assert.Nil(t, n)
}

func TestDryRunPlansWithoutWriting(t *testing.T) {
	s := memstore.New()
	pool := seed(s, org("A", "P", "Acme", nil), org("B", "P", "Acme", nil))
	engine := batch.New(s, batch.Options{DryRun: true, Logger: logging.Nop()})
	d := NewDeduplicator(s, engine, nil, logging.Nop())

	res, err := d.Consolidate(context.Background(), orgOpts(), pool)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.True(t, res.Stats.DryRun)
	assert.Empty(t, canonicals(t, s))
	n, _ := s.Count(context.Background(), store.CountShape{Label: "Company"})
	assert.Equal(t, int64(2), n)
}

func TestLaterRecordJoinsExistingCanonical(t *testing.T) {
	s := memstore.New()
	d := newDedup(s)
	_, err := d.Consolidate(context.Background(), orgOpts(), seed(s, org("A", "P", "Acme", nil)))
	require.NoError(t, err)

	res, err := d.Consolidate(context.Background(), orgOpts(), seed(s,
		org("A", "P", "Acme", nil),
		org("N", "p", "Acme New", map[string]string{"city": "Springfield"}),
	))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Absorbed)

	cs := canonicals(t, s)
	require.Len(t, cs, 1)
	assert.Equal(t, "Acme", cs[0].Name)
	assert.Equal(t, "Springfield", cs[0].Attributes["city"])
}

func TestRecordAbsorbedElsewhereIsNotMergedTwice(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	d := newDedup(s)

	m1 := org("M1", "P1", "Acme", nil)
	m1.Counters = map[string]int64{"linked_records": 3}
	m2 := org("M2", "", "Acme", nil)
	m2.Counters = map[string]int64{"linked_records": 5}

	_, err := d.Consolidate(ctx, orgOpts(), seed(s, m1))
	require.NoError(t, err)
	// no identifiers, so the identified canonical is not a name match
	_, err = d.Consolidate(ctx, orgOpts(), seed(s, m2))
	require.NoError(t, err)
	require.Len(t, canonicals(t, s), 2)

	plan, err := d.Plan(ctx, orgOpts(), seed(s, m1, m2))
	require.NoError(t, err)
	require.Len(t, plan.Decisions, 1)
	dec := plan.Decisions[0]
	assert.Empty(t, dec.Absorbed)
	assert.Equal(t, []string{"M1"}, dec.AlreadyAbsorbed)
	assert.Equal(t, []string{"M2"}, dec.AbsorbedElsewhere)
	assert.Len(t, dec.Candidates, 1)

	res, err := d.Consolidate(ctx, orgOpts(), seed(s, m1, m2))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Absorbed)

	owners := map[string]int{}
	var total int64
	for _, c := range canonicals(t, s) {
		for _, m := range c.MergeHistory {
			owners[m.RecordKey]++
		}
		total += c.Counters["linked_records"]
	}
	assert.Equal(t, map[string]int{"M1": 1, "M2": 1}, owners)
	assert.Equal(t, int64(8), total)

	for _, key := range []string{"M1", "M2"} {
		n, err := s.Node(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, n, key)
	}
}

func TestKeylessRecordsFromOneFeedAreBothMerged(t *testing.T) {
	s := memstore.New()
	first := org("", "", "Acme", map[string]string{"city": "Springfield"})
	first.Counters = map[string]int64{"linked_records": 2}
	second := org("", "", "Acme", map[string]string{"url": "acme.example"})
	second.Counters = map[string]int64{"linked_records": 3}

	res, err := newDedup(s).Consolidate(context.Background(), orgOpts(), []model.RawRecord{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Absorbed)

	cs := canonicals(t, s)
	require.Len(t, cs, 1)
	assert.Equal(t, int64(5), cs[0].Counters["linked_records"])
	assert.Equal(t, "Springfield", cs[0].Attributes["city"])
	assert.Equal(t, "acme.example", cs[0].Attributes["url"])
	assert.Len(t, cs[0].MergeHistory, 2)
}
