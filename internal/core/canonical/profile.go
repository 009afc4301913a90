package canonical

import "github.com/agenthands/graphmerge/internal/core/model"

// Profile lists the fields that make up an entity type's completeness score.
type Profile struct {
	Label        string
	Fields       []string
	Counters     []string
	DisplayField string
}

var profiles = map[model.EntityType]Profile{
	model.EntityOrganization: {
		Label:        "Organization",
		Fields:       []string{"url", "street", "city", "state", "postal_code"},
		Counters:     []string{"linked_records"},
		DisplayField: "url",
	},
	model.EntityIndividual: {
		Label:        "Individual",
		Fields:       []string{"email", "affiliation", "city", "state", "country"},
		Counters:     []string{"linked_records"},
		DisplayField: "email",
	},
	model.EntityFinancialTransaction: {
		Label:        "FinancialTransaction",
		Fields:       []string{"amount", "currency", "award_date", "agency", "program"},
		Counters:     []string{"linked_records"},
		DisplayField: "agency",
	},
}

// ProfileFor returns the profile of t. Unknown types score on identifiers only.
func ProfileFor(t model.EntityType) Profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return Profile{Label: "Entity"}
}

// Completeness counts the populated profile fields of r, identifiers included.
func (p Profile) Completeness(r model.RawRecord) int {
	score := 0
	for _, f := range p.Fields {
		if r.Attr(f) != "" {
			score++
		}
	}
	for _, c := range p.Counters {
		if r.Counters[c] > 0 {
			score++
		}
	}
	if primary(r) != "" {
		score++
	}
	if secondary(r) != "" {
		score++
	}
	return score
}

func (p Profile) hasDisplay(r model.RawRecord) bool {
	if p.DisplayField != "" && r.Attr(p.DisplayField) != "" {
		return true
	}
	return r.Name != ""
}
