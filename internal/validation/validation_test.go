package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/logging"
	"github.com/agenthands/graphmerge/internal/store/memstore"
)

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newValidator(s *memstore.Store, edgeTypes ...string) *Validator {
	return New(s, Options{EdgeTypes: edgeTypes, Parallelism: 2, Now: func() time.Time { return fixed }}, logging.Nop())
}

func addCanonical(t *testing.T, s *memstore.Store, c *model.CanonicalEntity) {
	t.Helper()
	props, err := c.Props()
	require.NoError(t, err)
	s.AddNode(c.Label, c.ID, props)
}

func history(keys ...string) []model.MergeEntry {
	out := make([]model.MergeEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.MergeEntry{RecordKey: k, Source: "awards", Strategy: "primary-id-exact", MergedAt: fixed})
	}
	return out
}

func checkNamed(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no check named %s", name)
	return Check{}
}

func TestSnapshotCounts(t *testing.T) {
	s := memstore.New()
	s.AddNode("Company", "c1", nil)
	s.AddNode("Company", "c2", nil)
	s.AddNode("Institution", "i1", nil)
	s.AddNode("Organization", "g", nil)
	s.AddNode("Agency", "x", nil)
	s.AddEdge("FUNDED_BY", "c1", "x", nil)
	s.AddEdge("FUNDED_BY", "c2", "x", nil)
	s.AddEdge("CITES", "c1", "c2", nil)

	snap, err := newValidator(s, "FUNDED_BY", "CITES", "FUNDED_BY").Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed, snap.TakenAt)
	assert.Equal(t, int64(3), snap.Edges)
	assert.Equal(t, map[string]int64{"FUNDED_BY": 2, "CITES": 1}, snap.EdgesByType)
	assert.Equal(t, int64(3), snap.LegacyRecords["organization"])
	assert.Equal(t, int64(0), snap.LegacyRecords["individual"])
	assert.Equal(t, int64(1), snap.Canonical["Organization"])
}

func TestValidatePassesWithConflictWarning(t *testing.T) {
	s := memstore.New()
	addCanonical(t, s, &model.CanonicalEntity{
		ID: "g", EntityType: model.EntityOrganization, Label: "Organization", Name: "Acme",
		PrimaryID:    "ABC",
		MergeHistory: history("a", "b"),
		Conflicts:    []model.Conflict{{RecordKey: "held", Field: "primary_id", Canonical: "ABC", Incoming: "XYZ", SeenAt: fixed}},
	})
	s.AddNode("Company", "held", map[string]any{"uei": "XYZ"})
	s.AddNode("Agency", "x", nil)
	s.AddEdge("FUNDED_BY", "g", "x", nil)
	s.AddEdge("FUNDED_BY", "held", "x", nil)

	report, err := newValidator(s, "FUNDED_BY", "FUNDED").Validate(context.Background(), &Snapshot{Edges: 3},
		Expectations{EntityTypes: []model.EntityType{model.EntityOrganization}, RetiredEdgeTypes: []string{"FUNDED"}, EdgesRemoved: 1})
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Empty(t, report.Failed())

	legacy := checkNamed(t, report, "legacy_records/organization")
	assert.True(t, legacy.Passed)
	assert.Equal(t, "1", legacy.Actual)
	assert.Equal(t, "1 held back by conflicts", legacy.Notes)

	edges := checkNamed(t, report, "edges/total")
	assert.True(t, edges.Passed)
	assert.Equal(t, "2..3", edges.Expected)

	assert.True(t, checkNamed(t, report, "retired_edges/FUNDED").Passed)

	conflicts := checkNamed(t, report, "conflicts")
	assert.False(t, conflicts.Passed)
	assert.Equal(t, SeverityWarning, conflicts.Severity)
	require.Len(t, report.Notes, 1)
	assert.Contains(t, report.Notes[0], "record held has \"XYZ\"")

	assert.Equal(t, int64(1), report.Counts["merge_history/Organization/2"])
	assert.Equal(t, int64(0), report.Counts["merge_history/Organization/6+"])
	assert.Equal(t, int64(1), report.Counts["canonical/Organization"])
	assert.Equal(t, int64(2), report.Counts["edges/FUNDED_BY"])

	// individuals were not consolidated, so no legacy check is made for them
	for _, c := range report.Checks {
		assert.NotEqual(t, "legacy_records/individual", c.Name)
	}
}

func TestValidateFailures(t *testing.T) {
	s := memstore.New()
	s.AddNode("Company", "left", nil)
	s.AddNode("Agency", "x", nil)
	s.AddEdge("FUNDED_BY", "left", "x", nil)
	s.AddEdge("FUNDED", "left", "x", nil)

	report, err := newValidator(s, "FUNDED").Validate(context.Background(), &Snapshot{Edges: 1},
		Expectations{EntityTypes: []model.EntityType{model.EntityOrganization}, RetiredEdgeTypes: []string{"FUNDED", "WORKS_AT"}})
	require.NoError(t, err)

	assert.False(t, report.Passed)
	var failed []string
	for _, c := range report.Failed() {
		failed = append(failed, c.Name)
	}
	assert.ElementsMatch(t, []string{"legacy_records/organization", "edges/total", "retired_edges/FUNDED", "retired_edges/WORKS_AT"}, failed)
	assert.Equal(t, "edge type was not counted", checkNamed(t, report, "retired_edges/WORKS_AT").Notes)
}

func TestValidateWithoutBaseline(t *testing.T) {
	report, err := newValidator(memstore.New()).Validate(context.Background(), nil, Expectations{})
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Contains(t, report.Notes, "no baseline snapshot, edge totals not compared")
}

func TestBucket(t *testing.T) {
	assert.Equal(t, "1", bucket(1))
	assert.Equal(t, "2", bucket(2))
	assert.Equal(t, "3-5", bucket(4))
	assert.Equal(t, "6+", bucket(40))
	assert.Equal(t, "0", bucket(0))
}

func TestRender(t *testing.T) {
	report := &Report{
		GeneratedAt: fixed,
		Passed:      false,
		Checks: []Check{
			{Name: "conflicts", Passed: false, Severity: SeverityWarning, Expected: "0", Actual: "2"},
			{Name: "edges/total", Passed: true, Severity: SeverityError, Expected: "2..3", Actual: "3"},
		},
		Counts: map[string]int64{"edges": 3},
		Notes:  []string{"something to review"},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatJSON))
	var back Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, report.Checks, back.Checks)

	buf.Reset()
	require.NoError(t, Render(&buf, report, FormatYAML))
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, int64(3), fromYAML.Counts["edges"])

	buf.Reset()
	require.NoError(t, Render(&buf, report, FormatTable))
	out := buf.String()
	assert.Contains(t, out, "Validation FAILED")
	assert.Contains(t, out, "conflicts")
	assert.Contains(t, out, "something to review")

	assert.Error(t, Render(&buf, report, Format("xml")))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, "yml": FormatYAML, "table": FormatTable} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestValidateEdgeCountsByType(t *testing.T) {
	s := memstore.New()
	s.AddNode("Organization", "g", nil)
	s.AddNode("Award", "a", nil)
	s.AddNode("Award", "b", nil)
	s.AddEdge("PARTICIPATED_IN", "g", "a", nil)
	s.AddEdge("PARTICIPATED_IN", "g", "b", nil)
	s.AddEdge("CITES", "a", "b", nil)

	v := newValidator(s, "PARTICIPATED_IN", "RECIPIENT_OF", "CITES")
	baseline := &Snapshot{
		Edges:       4,
		EdgesByType: map[string]int64{"PARTICIPATED_IN": 0, "RECIPIENT_OF": 2, "CITES": 2},
	}
	exp := Expectations{RetiredEdgeTypes: []string{"RECIPIENT_OF"}, EdgesRemoved: 2}
	exp.Retyped("RECIPIENT_OF", "PARTICIPATED_IN")

	report, err := v.Validate(context.Background(), baseline, exp)
	require.NoError(t, err)
	assert.True(t, report.Passed, "%+v", report.Failed())

	participated := checkNamed(t, report, "edges/PARTICIPATED_IN")
	assert.True(t, participated.Passed)
	assert.Equal(t, "0..2", participated.Expected)
	assert.Equal(t, "2", participated.Actual)
	assert.Equal(t, "0..2", checkNamed(t, report, "edges/CITES").Expected)
	assert.Equal(t, int64(2), report.Counts["edges/baseline/RECIPIENT_OF"])
	for _, c := range report.Checks {
		assert.NotEqual(t, "edges/RECIPIENT_OF", c.Name, "retired types have their own check")
	}

	// a type that grows beyond what was retyped into it fails
	s.AddNode("Award", "c", nil)
	s.AddEdge("PARTICIPATED_IN", "g", "c", nil)
	report, err = v.Validate(context.Background(), baseline, exp)
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.False(t, checkNamed(t, report, "edges/PARTICIPATED_IN").Passed)

	// an unrelated type may not grow at all
	exp.RetypedInto = nil
	baseline.EdgesByType["PARTICIPATED_IN"] = 3
	s.AddEdge("CITES", "b", "c", nil)
	s.AddEdge("CITES", "a", "c", nil)
	report, err = v.Validate(context.Background(), baseline, exp)
	require.NoError(t, err)
	cites := checkNamed(t, report, "edges/CITES")
	assert.False(t, cites.Passed)
	assert.Equal(t, "3", cites.Actual)
}
