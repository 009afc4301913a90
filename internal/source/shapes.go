package source

import "github.com/agenthands/graphmerge/internal/core/model"

// Shape describes how legacy nodes of one entity type look in the graph.
type Shape struct {
	EntityType    model.EntityType
	Labels        []string
	PrimaryProp   string
	SecondaryProp string
	NameProp      string
	// Attributes maps legacy property names onto record attribute names.
	Attributes map[string]string
	Counters   map[string]string
}

var shapes = []Shape{
	{
		EntityType:    model.EntityOrganization,
		Labels:        []string{"Company", "Institution", "PatentAssignee"},
		PrimaryProp:   "uei",
		SecondaryProp: "duns",
		NameProp:      "name",
		Attributes: map[string]string{
			"url":         "url",
			"website":     "url",
			"street":      "street",
			"address":     "street",
			"city":        "city",
			"state":       "state",
			"postal_code": "postal_code",
			"zip":         "postal_code",
		},
		Counters: map[string]string{"award_count": "linked_records"},
	},
	{
		EntityType:    model.EntityIndividual,
		Labels:        []string{"Researcher", "Inventor", "PrincipalInvestigator"},
		PrimaryProp:   "orcid",
		SecondaryProp: "person_id",
		NameProp:      "full_name",
		Attributes: map[string]string{
			"email":       "email",
			"affiliation": "affiliation",
			"city":        "city",
			"state":       "state",
			"country":     "country",
		},
		Counters: map[string]string{"patent_count": "linked_records"},
	},
	{
		EntityType:    model.EntityFinancialTransaction,
		Labels:        []string{"Award", "Contract"},
		PrimaryProp:   "award_id",
		SecondaryProp: "solicitation_number",
		NameProp:      "title",
		Attributes: map[string]string{
			"amount":     "amount",
			"obligation": "amount",
			"currency":   "currency",
			"award_date": "award_date",
			"agency":     "agency",
			"program":    "program",
		},
	},
}

// Shapes returns the legacy shape of every entity type, in consolidation order.
func Shapes() []Shape {
	return append([]Shape(nil), shapes...)
}

// ShapeFor returns the legacy shape of t.
func ShapeFor(t model.EntityType) (Shape, bool) {
	for _, s := range shapes {
		if s.EntityType == t {
			return s, true
		}
	}
	return Shape{}, false
}

// LegacyLabels lists every legacy node label.
func LegacyLabels() []string {
	var out []string
	for _, s := range shapes {
		out = append(out, s.Labels...)
	}
	return out
}
