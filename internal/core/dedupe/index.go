package dedupe

import (
	"sort"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/core/normalize"
)

// canonicalIndex finds existing canonical entities for a cluster. It is
// updated as clusters are merged so later clusters in the same run see
// earlier results.
type canonicalIndex struct {
	byID        map[string]*model.CanonicalEntity
	byAbsorbed  map[string]string
	byPrimary   map[string]string
	bySecondary map[string]string
	byName      map[string]string
}

func newCanonicalIndex() *canonicalIndex {
	return &canonicalIndex{
		byID:        map[string]*model.CanonicalEntity{},
		byAbsorbed:  map[string]string{},
		byPrimary:   map[string]string{},
		bySecondary: map[string]string{},
		byName:      map[string]string{},
	}
}

func (ix *canonicalIndex) put(c *model.CanonicalEntity) {
	ix.byID[c.ID] = c
	for _, m := range c.MergeHistory {
		ix.byAbsorbed[m.RecordKey] = c.ID
	}
	if c.PrimaryID != "" {
		ix.byPrimary[c.PrimaryID] = c.ID
	}
	if c.SecondaryID != "" {
		ix.bySecondary[c.SecondaryID] = c.ID
	}
	if c.NormalizedName != "" && c.PrimaryID == "" && c.SecondaryID == "" {
		if _, taken := ix.byName[c.NormalizedName]; !taken {
			ix.byName[c.NormalizedName] = c.ID
		}
	}
}

// lookup returns the ids of canonical entities the cluster matches, strongest
// evidence first: absorbed record keys, then primary ids, secondary ids, and
// for identifier-less clusters the normalized name.
func (ix *canonicalIndex) lookup(cluster model.DuplicateCluster) []string {
	var ids []string
	seen := map[string]bool{}
	add := func(id string, ok bool) {
		if ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, m := range cluster.Members {
		id, ok := ix.byAbsorbed[m.Identity()]
		add(id, ok)
	}
	hasIDs := false
	for _, m := range cluster.Members {
		if p := normalize.PrimaryID(m.PrimaryID); p != "" {
			hasIDs = true
			id, ok := ix.byPrimary[p]
			add(id, ok)
		}
	}
	for _, m := range cluster.Members {
		if s := normalize.SecondaryID(m.SecondaryID); s != "" {
			hasIDs = true
			id, ok := ix.bySecondary[s]
			add(id, ok)
		}
	}
	if !hasIDs {
		for _, m := range cluster.Members {
			id, ok := ix.byName[normalize.Name(m.Name)]
			add(id, ok)
		}
	}
	return ids
}

// split separates the cluster members absorbed by a canonical entity other
// than chosen. Those are returned keyed to their owner and must not be merged
// again. chosen may be nil.
func (ix *canonicalIndex) split(cluster model.DuplicateCluster, chosen *model.CanonicalEntity) ([]model.RawRecord, map[string]string) {
	elsewhere := map[string]string{}
	members := make([]model.RawRecord, 0, len(cluster.Members))
	for _, m := range cluster.Members {
		owner, ok := ix.byAbsorbed[m.Identity()]
		if ok && (chosen == nil || owner != chosen.ID) {
			elsewhere[m.Identity()] = owner
			continue
		}
		members = append(members, m)
	}
	return members, elsewhere
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
