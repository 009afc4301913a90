// Package canonical picks or creates the canonical entity of a duplicate
// cluster and merges member attributes into it.
package canonical

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/core/normalize"
)

// Namespace seeds deterministic canonical ids.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/agenthands/graphmerge"))

const (
	FieldPrimaryID   = "primary_id"
	FieldSecondaryID = "secondary_id"
	FieldName        = "name"
)

type Selector struct {
	now func() time.Time
}

func NewSelector(now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{now: now}
}

// CanonicalID derives the id a new canonical entity gets for the given
// entity type and identity key.
func CanonicalID(t model.EntityType, identity string) string {
	return uuid.NewSHA1(Namespace, []byte(string(t)+"|"+identity)).String()
}

// Order returns the cluster members in seed order: completeness descending,
// then primary id present, secondary id present, display field present, and
// finally input order.
func Order(p Profile, members []model.RawRecord) []model.RawRecord {
	out := append([]model.RawRecord(nil), members...)
	score := make(map[string]int, len(out))
	for _, m := range out {
		score[m.Identity()] = p.Completeness(m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if sa, sb := score[a.Identity()], score[b.Identity()]; sa != sb {
			return sa > sb
		}
		if pa, pb := primary(a) != "", primary(b) != ""; pa != pb {
			return pa
		}
		if sa, sb := secondary(a) != "", secondary(b) != ""; sa != sb {
			return sa
		}
		if da, db := p.hasDisplay(a), p.hasDisplay(b); da != db {
			return da
		}
		return false
	})
	return out
}

// Select merges cluster into existing (nil when no canonical entity exists
// yet). existing is never modified; the returned entity is a new value.
func (s *Selector) Select(cluster model.DuplicateCluster, existing *model.CanonicalEntity) (*model.CanonicalEntity, model.MergeDecision) {
	now := s.now().UTC()
	entityType := clusterType(cluster, existing)
	profile := ProfileFor(entityType)
	ordered := Order(profile, cluster.Members)

	decision := model.MergeDecision{Strategy: cluster.Strategy}

	var c *model.CanonicalEntity
	if existing != nil {
		c = existing.Clone()
		if c.Attributes == nil {
			c.Attributes = map[string]string{}
		}
		if c.Counters == nil {
			c.Counters = map[string]int64{}
		}
	} else {
		c = &model.CanonicalEntity{
			ID:         CanonicalID(entityType, identityKey(ordered)),
			EntityType: entityType,
			Label:      profile.Label,
			Attributes: map[string]string{},
			Counters:   map[string]int64{},
			CreatedAt:  now,
		}
		decision.Created = true
	}
	if c.Label == "" {
		c.Label = profile.Label
	}
	decision.CanonicalID = c.ID

	fill := func(field string, dst *string, value string) {
		if *dst != "" || value == "" {
			return
		}
		*dst = value
		if !decision.Created {
			decision.FilledFields = append(decision.FilledFields, field)
		}
	}

	// Identifiers are fixed by the first member that carries one; members
	// disagreeing with a fixed identifier are left out of the merge.
	var accepted []model.RawRecord
	for _, m := range ordered {
		key := m.Identity()
		p, sec := primary(m), secondary(m)
		conflict := false
		if p != "" && c.PrimaryID != "" && p != c.PrimaryID {
			conflict = true
			s.conflict(c, &decision, key, FieldPrimaryID, c.PrimaryID, p, now)
		}
		if sec != "" && c.SecondaryID != "" && sec != c.SecondaryID {
			conflict = true
			s.conflict(c, &decision, key, FieldSecondaryID, c.SecondaryID, sec, now)
		}
		if conflict {
			continue
		}
		fill(FieldPrimaryID, &c.PrimaryID, p)
		fill(FieldSecondaryID, &c.SecondaryID, sec)
		accepted = append(accepted, m)
	}

	for i, m := range accepted {
		key := m.Identity()
		if i == 0 {
			decision.Seed = key
		}
		if c.HasAbsorbed(key) {
			decision.AlreadyAbsorbed = append(decision.AlreadyAbsorbed, key)
			continue
		}

		c.MergeHistory = append(c.MergeHistory, model.MergeEntry{
			RecordKey:   key,
			Source:      m.Source,
			PrimaryID:   primary(m),
			SecondaryID: secondary(m),
			Strategy:    cluster.Strategy,
			Seed:        i == 0 && decision.Created,
			MergedAt:    now,
		})
		decision.Absorbed = append(decision.Absorbed, key)
		c.AddSource(m.Source)
		for name, n := range m.Counters {
			c.Counters[name] += n
		}
	}

	for _, m := range accepted {
		fill(FieldName, &c.Name, m.Name)
		for _, k := range sortedKeys(m.Attributes) {
			cur := c.Attributes[k]
			fill("attr:"+k, &cur, m.Attr(k))
			if cur != "" {
				c.Attributes[k] = cur
			}
		}
	}
	c.NormalizedName = normalize.Name(c.Name)

	if decision.Changed() {
		c.UpdatedAt = now
	}
	return c, decision
}

func (s *Selector) conflict(c *model.CanonicalEntity, d *model.MergeDecision, key, field, canonical, incoming string, now time.Time) {
	cf := model.Conflict{RecordKey: key, Field: field, Canonical: canonical, Incoming: incoming, SeenAt: now}
	if c.HasConflict(key, field, incoming) {
		return
	}
	c.Conflicts = append(c.Conflicts, cf)
	d.Conflicts = append(d.Conflicts, cf)
}

func clusterType(cluster model.DuplicateCluster, existing *model.CanonicalEntity) model.EntityType {
	if existing != nil && existing.EntityType != "" {
		return existing.EntityType
	}
	for _, m := range cluster.Members {
		if m.EntityType != "" {
			return m.EntityType
		}
	}
	return ""
}

// identityKey is the strongest identifier among ordered members.
func identityKey(ordered []model.RawRecord) string {
	for _, m := range ordered {
		if p := primary(m); p != "" {
			return "primary:" + p
		}
	}
	for _, m := range ordered {
		if s := secondary(m); s != "" {
			return "secondary:" + s
		}
	}
	if len(ordered) == 0 {
		return ""
	}
	return "record:" + ordered[0].Identity()
}

func primary(r model.RawRecord) string   { return normalize.PrimaryID(r.PrimaryID) }
func secondary(r model.RawRecord) string { return normalize.SecondaryID(r.SecondaryID) }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
