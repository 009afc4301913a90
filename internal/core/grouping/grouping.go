// Package grouping partitions a record pool into duplicate clusters using a
// cascading, priority-ordered list of match keys.
package grouping

import (
	"sort"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/core/normalize"
)

const (
	StrategyPrimaryID      = "primary-id-exact"
	StrategySecondaryID    = "secondary-id-exact"
	StrategyNameLocality   = "normalized-name+locality"
	StrategyNormalizedName = "normalized-name"
	StrategySingleton      = "singleton"
)

// KeyFunc maps a record to a key value. "" means null.
type KeyFunc func(model.RawRecord) string

// MatchKey is one strategy of the cascade. Lower Priority runs first.
type MatchKey struct {
	Name     string
	Priority int
	Key      KeyFunc
}

// DefaultStrategies is the identifier cascade used for every entity type.
func DefaultStrategies() []MatchKey {
	return []MatchKey{
		{Name: StrategyPrimaryID, Priority: 1, Key: func(r model.RawRecord) string {
			return normalize.PrimaryID(r.PrimaryID)
		}},
		{Name: StrategySecondaryID, Priority: 2, Key: func(r model.RawRecord) string {
			return normalize.SecondaryID(r.SecondaryID)
		}},
		{Name: StrategyNameLocality, Priority: 3, Key: NameLocalityKey},
	}
}

// NameLocalityKey is null unless the record has a name, city and state.
func NameLocalityKey(r model.RawRecord) string {
	name := normalize.Name(r.Name)
	loc := normalize.Locality(r.Attr("city"), r.Attr("state"))
	if name == "" || loc == "" {
		return ""
	}
	return name + "|" + loc
}

// Group runs the cascade over pool. A record leaves the pool only when its key
// under some strategy matched at least one other record; everything still in
// the pool afterwards is grouped by exact normalized name. Records without a
// usable name become one-member clusters and are also returned as leftover.
// Strategies run in Priority order whatever their order in the slice.
// Records are deduplicated by identity, first occurrence wins.
func Group(pool []model.RawRecord, strategies []MatchKey) ([]model.DuplicateCluster, []model.RawRecord) {
	remaining := dedupe(pool)
	var clusters []model.DuplicateCluster

	ordered := append([]MatchKey(nil), strategies...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	lastPriority := 0
	for _, s := range ordered {
		if s.Priority > lastPriority {
			lastPriority = s.Priority
		}
		var emitted []model.DuplicateCluster
		emitted, remaining = pass(remaining, s, 2)
		clusters = append(clusters, emitted...)
	}

	byName := MatchKey{
		Name:     StrategyNormalizedName,
		Priority: lastPriority + 1,
		Key:      func(r model.RawRecord) string { return normalize.Name(r.Name) },
	}
	emitted, leftover := pass(remaining, byName, 1)
	clusters = append(clusters, emitted...)

	for _, r := range leftover {
		clusters = append(clusters, model.DuplicateCluster{
			Strategy: StrategySingleton,
			Priority: lastPriority + 2,
			KeyValue: r.Identity(),
			Members:  []model.RawRecord{r},
		})
	}
	return clusters, leftover
}

// pass groups records by key and emits groups of at least minSize members,
// preserving first-seen order. Unemitted records are returned in input order.
func pass(records []model.RawRecord, s MatchKey, minSize int) ([]model.DuplicateCluster, []model.RawRecord) {
	groups := make(map[string][]int)
	var order []string
	for i, r := range records {
		k := s.Key(r)
		if k == "" {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	consumed := make([]bool, len(records))
	var clusters []model.DuplicateCluster
	for _, k := range order {
		idx := groups[k]
		if len(idx) < minSize {
			continue
		}
		members := make([]model.RawRecord, 0, len(idx))
		for _, i := range idx {
			members = append(members, records[i])
			consumed[i] = true
		}
		clusters = append(clusters, model.DuplicateCluster{
			Strategy: s.Name,
			Priority: s.Priority,
			KeyValue: k,
			Members:  members,
		})
	}

	rest := make([]model.RawRecord, 0, len(records))
	for i, r := range records {
		if !consumed[i] {
			rest = append(rest, r)
		}
	}
	return clusters, rest
}

func dedupe(pool []model.RawRecord) []model.RawRecord {
	seen := make(map[string]bool, len(pool))
	out := make([]model.RawRecord, 0, len(pool))
	for _, r := range pool {
		id := r.Identity()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
