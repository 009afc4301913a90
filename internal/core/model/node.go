package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MergeEntry records one raw record absorbed into a canonical entity.
type MergeEntry struct {
	RecordKey   string    `json:"record_key"`
	Source      string    `json:"source"`
	PrimaryID   string    `json:"primary_id,omitempty"`
	SecondaryID string    `json:"secondary_id,omitempty"`
	Strategy    string    `json:"strategy"`
	Seed        bool      `json:"seed,omitempty"`
	MergedAt    time.Time `json:"merged_at"`
}

// Conflict records a member that disagreed with the canonical entity on an
// immutable identifier and was left unmerged for manual review.
type Conflict struct {
	RecordKey string    `json:"record_key"`
	Field     string    `json:"field"`
	Canonical string    `json:"canonical"`
	Incoming  string    `json:"incoming"`
	SeenAt    time.Time `json:"seen_at"`
}

// CanonicalEntity is the persisted, merged representation of one or more raw records.
type CanonicalEntity struct {
	ID             string
	EntityType     EntityType
	Label          string
	Name           string
	NormalizedName string
	PrimaryID      string
	SecondaryID    string
	Attributes     map[string]string
	Counters       map[string]int64
	Sources        []string
	MergeHistory   []MergeEntry
	Conflicts      []Conflict
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasAbsorbed reports whether key is already in the merge history.
func (c *CanonicalEntity) HasAbsorbed(key string) bool {
	for _, m := range c.MergeHistory {
		if m.RecordKey == key {
			return true
		}
	}
	return false
}

// HasConflict reports whether an identical conflict is already recorded.
func (c *CanonicalEntity) HasConflict(key, field, incoming string) bool {
	for _, cf := range c.Conflicts {
		if cf.RecordKey == key && cf.Field == field && cf.Incoming == incoming {
			return true
		}
	}
	return false
}

// AddSource inserts a source tag keeping the set sorted.
func (c *CanonicalEntity) AddSource(src string) {
	if src == "" {
		return
	}
	i := sort.SearchStrings(c.Sources, src)
	if i < len(c.Sources) && c.Sources[i] == src {
		return
	}
	c.Sources = append(c.Sources, "")
	copy(c.Sources[i+1:], c.Sources[i:])
	c.Sources[i] = src
}

// Clone returns a deep copy.
func (c *CanonicalEntity) Clone() *CanonicalEntity {
	if c == nil {
		return nil
	}
	out := *c
	out.Attributes = make(map[string]string, len(c.Attributes))
	for k, v := range c.Attributes {
		out.Attributes[k] = v
	}
	out.Counters = make(map[string]int64, len(c.Counters))
	for k, v := range c.Counters {
		out.Counters[k] = v
	}
	out.Sources = append([]string(nil), c.Sources...)
	out.MergeHistory = append([]MergeEntry(nil), c.MergeHistory...)
	out.Conflicts = append([]Conflict(nil), c.Conflicts...)
	return &out
}

const (
	PropKey            = "uid"
	PropEntityType     = "entity_type"
	PropName           = "name"
	PropNormalizedName = "name_normalized"
	PropPrimaryID      = "primary_id"
	PropSecondaryID    = "secondary_id"
	PropSources        = "sources"
	PropAbsorbedKeys   = "absorbed_keys"
	PropMergeHistory   = "merge_history"
	PropMergeCount     = "merge_count"
	PropConflicts      = "conflicts"
	PropCreatedAt      = "created_at"
	PropUpdatedAt      = "updated_at"

	attrPrefix    = "attr_"
	counterPrefix = "counter_"
)

// Props flattens the entity into graph node properties. Merge history and
// conflicts are stored as JSON strings since graph properties cannot nest.
func (c *CanonicalEntity) Props() (map[string]any, error) {
	history, err := json.Marshal(c.MergeHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merge history: %w", err)
	}
	conflicts, err := json.Marshal(c.Conflicts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conflicts: %w", err)
	}

	absorbed := make([]string, 0, len(c.MergeHistory))
	for _, m := range c.MergeHistory {
		absorbed = append(absorbed, m.RecordKey)
	}

	props := map[string]any{
		PropKey:            c.ID,
		PropEntityType:     string(c.EntityType),
		PropName:           c.Name,
		PropNormalizedName: c.NormalizedName,
		PropPrimaryID:      c.PrimaryID,
		PropSecondaryID:    c.SecondaryID,
		PropSources:        append([]string{}, c.Sources...),
		PropAbsorbedKeys:   absorbed,
		PropMergeHistory:   string(history),
		PropMergeCount:     int64(len(c.MergeHistory)),
		PropConflicts:      string(conflicts),
		PropCreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339Nano),
		PropUpdatedAt:      c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range c.Attributes {
		props[attrPrefix+k] = v
	}
	for k, v := range c.Counters {
		props[counterPrefix+k] = v
	}
	return props, nil
}

// CanonicalFromProps rebuilds an entity from graph node properties.
func CanonicalFromProps(label string, props map[string]any) (*CanonicalEntity, error) {
	c := &CanonicalEntity{
		ID:             stringProp(props, PropKey),
		EntityType:     EntityType(stringProp(props, PropEntityType)),
		Label:          label,
		Name:           stringProp(props, PropName),
		NormalizedName: stringProp(props, PropNormalizedName),
		PrimaryID:      stringProp(props, PropPrimaryID),
		SecondaryID:    stringProp(props, PropSecondaryID),
		Attributes:     map[string]string{},
		Counters:       map[string]int64{},
		Sources:        StringList(props[PropSources]),
	}
	sort.Strings(c.Sources)

	if raw := stringProp(props, PropMergeHistory); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.MergeHistory); err != nil {
			return nil, fmt.Errorf("failed to decode merge history of %s: %w", c.ID, err)
		}
	}
	if raw := stringProp(props, PropConflicts); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Conflicts); err != nil {
			return nil, fmt.Errorf("failed to decode conflicts of %s: %w", c.ID, err)
		}
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, stringProp(props, PropCreatedAt))
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, stringProp(props, PropUpdatedAt))

	for k, v := range props {
		switch {
		case strings.HasPrefix(k, attrPrefix):
			if s, ok := v.(string); ok {
				c.Attributes[strings.TrimPrefix(k, attrPrefix)] = s
			}
		case strings.HasPrefix(k, counterPrefix):
			if n, ok := Int64(v); ok {
				c.Counters[strings.TrimPrefix(k, counterPrefix)] = n
			}
		}
	}
	return c, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// StringList converts list-valued properties ([]string or driver []any).
func StringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string{}, list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Int64 converts numeric property values.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
