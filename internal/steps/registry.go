// Package steps holds the consolidation steps in the order the orchestrator
// runs them.
package steps

import (
	"sort"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/agenthands/graphmerge/internal/orchestrator"
)

const defaultBatchSize = 500

// Registry returns the steps in run order. Indexes used by --skip-step are
// 1-based positions in this list.
func Registry() []orchestrator.Step {
	return []orchestrator.Step{
		NewConsolidate("consolidate-organizations", model.EntityOrganization),
		NewConsolidate("consolidate-individuals", model.EntityIndividual),
		NewConsolidate("consolidate-financial-transactions", model.EntityFinancialTransaction),
		NewRetype("unify-participation", ParticipationTypes()),
		NewAggregateMetrics("aggregate-metrics"),
		NewRetype("rename-legacy-relationships", LegacyRenames()),
	}
}

// TrackedEdgeTypes lists every relationship type the steps read or write.
func TrackedEdgeTypes() []string {
	seen := map[string]bool{}
	for _, m := range []map[string]Retarget{ParticipationTypes(), LegacyRenames()} {
		for from, to := range m {
			seen[from] = true
			seen[to.Type] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func batchSize(opts orchestrator.Options) int {
	if opts.BatchSize > 0 {
		return opts.BatchSize
	}
	return defaultBatchSize
}
