package model

// DuplicateCluster is a set of records sharing one key value under one match strategy.
type DuplicateCluster struct {
	Strategy string      `json:"strategy"`
	Priority int         `json:"priority"`
	KeyValue string      `json:"key_value"`
	Members  []RawRecord `json:"members"`
}

// Keys returns the member identities in member order.
func (c DuplicateCluster) Keys() []string {
	keys := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		keys = append(keys, m.Identity())
	}
	return keys
}

// MergeDecision explains what the canonical selector did with one cluster.
type MergeDecision struct {
	CanonicalID     string     `json:"canonical_id"`
	Created         bool       `json:"created"`
	Strategy        string     `json:"strategy"`
	Seed            string     `json:"seed"`
	Absorbed        []string   `json:"absorbed,omitempty"`
	AlreadyAbsorbed []string   `json:"already_absorbed,omitempty"`
	FilledFields    []string   `json:"filled_fields,omitempty"`
	Conflicts       []Conflict `json:"conflicts,omitempty"`
	// Candidates lists other existing canonical entities the cluster also matched.
	Candidates []string `json:"candidates,omitempty"`
	// AbsorbedElsewhere lists members owned by one of the Candidates. They
	// are not merged again.
	AbsorbedElsewhere []string `json:"absorbed_elsewhere,omitempty"`
}

// Changed reports whether the canonical entity needs to be written.
func (d MergeDecision) Changed() bool {
	return d.Created || len(d.Absorbed) > 0 || len(d.FilledFields) > 0 || len(d.Conflicts) > 0
}

// Retire lists the member keys whose records should be migrated onto the
// canonical entity: everything absorbed now or in an earlier run.
func (d MergeDecision) Retire() []string {
	out := make([]string, 0, len(d.Absorbed)+len(d.AlreadyAbsorbed))
	out = append(out, d.Absorbed...)
	return append(out, d.AlreadyAbsorbed...)
}
