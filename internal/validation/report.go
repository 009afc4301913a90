package validation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agenthands/graphmerge/internal/core/canonical"
	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/source"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Check struct {
	Name     string   `json:"name" yaml:"name"`
	Passed   bool     `json:"passed" yaml:"passed"`
	Severity Severity `json:"severity" yaml:"severity"`
	Expected string   `json:"expected" yaml:"expected"`
	Actual   string   `json:"actual" yaml:"actual"`
	Notes    string   `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Report is the outcome of a validation pass. Passed is false when any
// error-severity check failed; warnings never fail a report.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
	Passed      bool             `json:"passed" yaml:"passed"`
	Checks      []Check          `json:"checks" yaml:"checks"`
	Counts      map[string]int64 `json:"counts" yaml:"counts"`
	Notes       []string         `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Failed returns the error-severity checks that did not pass.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed && c.Severity == SeverityError {
			out = append(out, c)
		}
	}
	return out
}

// Expectations describe the end state the completed steps should have produced.
type Expectations struct {
	// EntityTypes whose legacy-shaped records should all be gone.
	EntityTypes []model.EntityType
	// RetiredEdgeTypes should have no edges left.
	RetiredEdgeTypes []string
	// EdgesRemoved bounds how far the edge total may drop below the baseline.
	EdgesRemoved int
	// RetypedInto maps a replacement edge type to the legacy types folded into it.
	RetypedInto map[string][]string
}

// Retyped records that edges of type from are rewritten to type to.
func (e *Expectations) Retyped(from, to string) {
	if e.RetypedInto == nil {
		e.RetypedInto = map[string][]string{}
	}
	e.RetypedInto[to] = append(e.RetypedInto[to], from)
}

// HistogramBuckets groups canonical entities by merge-history size.
var HistogramBuckets = []struct {
	Name     string
	Min, Max int
}{
	{"1", 1, 1},
	{"2", 2, 2},
	{"3-5", 3, 5},
	{"6+", 6, int(^uint(0) >> 1)},
}

func bucket(n int) string {
	for _, b := range HistogramBuckets {
		if n >= b.Min && n <= b.Max {
			return b.Name
		}
	}
	return "0"
}

// Validate compares the current graph against baseline and exp. A nil
// baseline skips the edge total comparison.
func (v *Validator) Validate(ctx context.Context, baseline *Snapshot, exp Expectations) (*Report, error) {
	after, err := v.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{
		GeneratedAt: v.opts.Now().UTC(),
		Counts:      map[string]int64{},
	}
	report.Counts["edges"] = after.Edges
	for t, n := range after.EdgesByType {
		report.Counts["edges/"+t] = n
	}

	expected := map[model.EntityType]bool{}
	for _, et := range exp.EntityTypes {
		expected[et] = true
	}

	var conflicts []string
	for _, et := range EntityTypes {
		label := canonical.ProfileFor(et).Label
		report.Counts["legacy/"+string(et)] = after.LegacyRecords[string(et)]
		report.Counts["canonical/"+label] = after.Canonical[label]

		entities, err := v.canonicals(ctx, label)
		if err != nil {
			return nil, err
		}
		for _, b := range HistogramBuckets {
			report.Counts["merge_history/"+label+"/"+b.Name] = 0
		}
		review := map[string]bool{}
		for _, c := range entities {
			if n := len(c.MergeHistory); n > 0 {
				report.Counts["merge_history/"+label+"/"+bucket(n)]++
			}
			for _, cf := range c.Conflicts {
				review[cf.RecordKey] = true
				conflicts = append(conflicts, fmt.Sprintf("%s: %s %s=%q, record %s has %q", label, c.ID, cf.Field, cf.Canonical, cf.RecordKey, cf.Incoming))
			}
		}

		report.Checks = append(report.Checks, Check{
			Name:     "canonical_entities/" + label,
			Passed:   true,
			Severity: SeverityInfo,
			Expected: ">= 0",
			Actual:   fmt.Sprint(after.Canonical[label]),
		})

		if !expected[et] {
			continue
		}
		check, err := v.legacyCheck(ctx, et, after.LegacyRecords[string(et)], review)
		if err != nil {
			return nil, err
		}
		report.Checks = append(report.Checks, check)
	}

	retired := append([]string(nil), exp.RetiredEdgeTypes...)
	sort.Strings(retired)

	if baseline != nil {
		report.Checks = append(report.Checks, edgeTotalCheck(baseline.Edges, after.Edges, exp.EdgesRemoved))
		report.Counts["edges/baseline"] = baseline.Edges
		report.Checks = append(report.Checks, edgeTypeChecks(baseline, after, exp, retired, report.Counts)...)
	} else {
		report.Notes = append(report.Notes, "no baseline snapshot, edge totals not compared")
	}

	for _, t := range retired {
		n, ok := after.EdgesByType[t]
		check := Check{
			Name:     "retired_edges/" + t,
			Severity: SeverityError,
			Expected: "0",
			Actual:   fmt.Sprint(n),
			Passed:   ok && n == 0,
		}
		if !ok {
			check.Notes = "edge type was not counted"
		}
		report.Checks = append(report.Checks, check)
	}

	sort.Strings(conflicts)
	report.Counts["conflicts"] = int64(len(conflicts))
	conflictCheck := Check{
		Name:     "conflicts",
		Severity: SeverityWarning,
		Expected: "0",
		Actual:   fmt.Sprint(len(conflicts)),
		Passed:   len(conflicts) == 0,
	}
	if len(conflicts) > 0 {
		conflictCheck.Notes = "records left unmerged for manual review"
		report.Notes = append(report.Notes, conflicts...)
	}
	report.Checks = append(report.Checks, conflictCheck)

	report.Passed = len(report.Failed()) == 0

	ev := v.logger.Info()
	if !report.Passed {
		ev = v.logger.Warn()
	}
	ev.Bool("passed", report.Passed).
		Int("checks", len(report.Checks)).
		Int("failed", len(report.Failed())).
		Int("conflicts", len(conflicts)).
		Msg("validation finished")
	return report, nil
}

func (v *Validator) canonicals(ctx context.Context, label string) ([]*model.CanonicalEntity, error) {
	nodes, err := v.graph.NodesByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s canonical entities: %w", label, err)
	}
	out := make([]*model.CanonicalEntity, 0, len(nodes))
	for _, n := range nodes {
		c, err := model.CanonicalFromProps(label, n.Props)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// legacyCheck expects no legacy-shaped record to remain, except records held
// back by a conflict.
func (v *Validator) legacyCheck(ctx context.Context, et model.EntityType, remaining int64, review map[string]bool) (Check, error) {
	shape, _ := source.ShapeFor(et)
	var held int64
	keys := make([]string, 0, len(review))
	for k := range review {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		n, err := v.graph.Node(ctx, key)
		if err != nil {
			return Check{}, fmt.Errorf("failed to look up record %s: %w", key, err)
		}
		if n == nil {
			continue
		}
		for _, l := range shape.Labels {
			if n.HasLabel(l) {
				held++
				break
			}
		}
	}

	check := Check{
		Name:     "legacy_records/" + string(et),
		Severity: SeverityError,
		Expected: "0",
		Actual:   fmt.Sprint(remaining),
		Passed:   remaining-held <= 0,
	}
	if held > 0 {
		check.Notes = fmt.Sprintf("%d held back by conflicts", held)
	}
	return check, nil
}

// edgeTotalCheck bounds the edge total: merging never adds edges, and never
// drops more than the migration removed.
func edgeTotalCheck(before, after int64, removed int) Check {
	lower := before - int64(removed)
	if lower < 0 {
		lower = 0
	}
	return Check{
		Name:     "edges/total",
		Severity: SeverityError,
		Expected: fmt.Sprintf("%d..%d", lower, before),
		Actual:   fmt.Sprint(after),
		Passed:   after <= before && after >= lower,
	}
}

// edgeTypeChecks compares every edge type counted in both snapshots. A type
// may lose at most the edges the migration removed and may only grow by the
// baseline count of the legacy types retyped into it. Retired types are
// covered by their own check.
func edgeTypeChecks(before, after *Snapshot, exp Expectations, retired []string, counts map[string]int64) []Check {
	types := make([]string, 0, len(before.EdgesByType))
	for t := range before.EdgesByType {
		if _, ok := after.EdgesByType[t]; ok {
			types = append(types, t)
		}
	}
	sort.Strings(types)

	var checks []Check
	for _, t := range types {
		was, now := before.EdgesByType[t], after.EdgesByType[t]
		counts["edges/baseline/"+t] = was
		if i := sort.SearchStrings(retired, t); i < len(retired) && retired[i] == t {
			continue
		}

		upper := was
		for _, legacy := range exp.RetypedInto[t] {
			upper += before.EdgesByType[legacy]
		}
		lower := was - int64(exp.EdgesRemoved)
		if lower < 0 {
			lower = 0
		}
		check := Check{
			Name:     "edges/" + t,
			Severity: SeverityError,
			Expected: fmt.Sprintf("%d..%d", lower, upper),
			Actual:   fmt.Sprint(now),
			Passed:   now >= lower && now <= upper,
		}
		if upper > was {
			check.Notes = fmt.Sprintf("may grow by %d retyped", upper-was)
		}
		checks = append(checks, check)
	}
	return checks
}
