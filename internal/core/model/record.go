package model

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

type EntityType string

const (
	EntityOrganization         EntityType = "organization"
	EntityIndividual           EntityType = "individual"
	EntityFinancialTransaction EntityType = "financial_transaction"
)

// RawRecord is one source-tagged record as delivered by the extraction stage.
// Empty identifier strings mean the identifier is absent.
type RawRecord struct {
	Key         string            `json:"key" yaml:"key"`
	EntityType  EntityType        `json:"entity_type" yaml:"entity_type"`
	PrimaryID   string            `json:"primary_id,omitempty" yaml:"primary_id,omitempty"`
	SecondaryID string            `json:"secondary_id,omitempty" yaml:"secondary_id,omitempty"`
	Name        string            `json:"name" yaml:"name"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Counters    map[string]int64  `json:"counters,omitempty" yaml:"counters,omitempty"`
	Source      string            `json:"source" yaml:"source"`

	// Label is the graph label of the legacy node backing this record, if any.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Attr returns an attribute value, or "" when unset.
func (r RawRecord) Attr(name string) string {
	if r.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(r.Attributes[name])
}

// Identity returns the record key, deriving a stable one from the full
// record content when the source did not supply a key. Keyless records that
// differ in any attribute or counter get different identities.
func (r RawRecord) Identity() string {
	if r.Key != "" {
		return r.Key
	}
	parts := []string{r.Source, string(r.EntityType), r.PrimaryID, r.SecondaryID, r.Name}
	for _, k := range sortedKeys(r.Attributes) {
		parts = append(parts, "a:"+k+"="+r.Attributes[k])
	}
	counters := make([]string, 0, len(r.Counters))
	for k, n := range r.Counters {
		counters = append(counters, "c:"+k+"="+strconv.FormatInt(n, 10))
	}
	sort.Strings(counters)
	parts = append(parts, counters...)

	sum := sha1.Sum([]byte(strings.Join(parts, "\x1f")))
	return r.Source + ":" + hex.EncodeToString(sum[:8])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
