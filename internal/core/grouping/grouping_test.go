package grouping

import (
	"testing"

	"github.com/agenthands/graphmerge/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(key, primary, secondary, name string, attrs map[string]string) model.RawRecord {
	return model.RawRecord{
		Key:         key,
		EntityType:  model.EntityOrganization,
		PrimaryID:   primary,
		SecondaryID: secondary,
		Name:        name,
		Attributes:  attrs,
		Source:      "test",
	}
}

func memberKeys(c model.DuplicateCluster) []string { return c.Keys() }

func TestGroupPrimaryIDNormalized(t *testing.T) {
	pool := []model.RawRecord{
		rec("A", "ABC 123 DEF 456", "", "Acme Corp", nil),
		rec("B", "abc123def456", "", "ACME CORPORATION", map[string]string{"street": "123 Main St"}),
	}

	clusters, leftover := Group(pool, DefaultStrategies())
	require.Len(t, clusters, 1)
	assert.Empty(t, leftover)
	assert.Equal(t, StrategyPrimaryID, clusters[0].Strategy)
	assert.Equal(t, "ABC123DEF456", clusters[0].KeyValue)
	assert.Equal(t, []string{"A", "B"}, memberKeys(clusters[0]))
}

func TestGroupCascadePriority(t *testing.T) {
	// X matches Y on primary id and Z on name; primary id wins.
	pool := []model.RawRecord{
		rec("X", "P1", "", "Globex", nil),
		rec("Y", "P1", "", "Globex Holdings", nil),
		rec("Z", "", "", "Globex", nil),
	}

	clusters, _ := Group(pool, DefaultStrategies())
	require.Len(t, clusters, 2)
	assert.Equal(t, StrategyPrimaryID, clusters[0].Strategy)
	assert.Equal(t, []string{"X", "Y"}, memberKeys(clusters[0]))
	assert.Equal(t, StrategyNormalizedName, clusters[1].Strategy)
	assert.Equal(t, []string{"Z"}, memberKeys(clusters[1]))
}

func TestGroupRunsStrategiesByPriority(t *testing.T) {
	pool := []model.RawRecord{
		rec("X", "P1", "", "Globex", nil),
		rec("Y", "P1", "", "Globex Holdings", nil),
		rec("Z", "", "", "Globex", nil),
	}
	defaults := DefaultStrategies()
	reversed := make([]MatchKey, 0, len(defaults))
	for i := len(defaults) - 1; i >= 0; i-- {
		reversed = append(reversed, defaults[i])
	}

	clusters, _ := Group(pool, reversed)
	require.Len(t, clusters, 2)
	assert.Equal(t, StrategyPrimaryID, clusters[0].Strategy)
	assert.Equal(t, []string{"X", "Y"}, memberKeys(clusters[0]))
	assert.Equal(t, 4, clusters[1].Priority)
}

func TestGroupKeepsKeylessRecordsThatDiffer(t *testing.T) {
	a := rec("", "", "", "Acme", map[string]string{"city": "Springfield"})
	b := rec("", "", "", "Acme", map[string]string{"url": "acme.example"})

	clusters, leftover := Group([]model.RawRecord{a, b, a}, DefaultStrategies())
	assert.Empty(t, leftover)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 2)
}

func TestGroupSecondaryWhenOnlyOneSideHasPrimary(t *testing.T) {
	pool := []model.RawRecord{
		rec("A", "P1", "12-345", "Initech", nil),
		rec("B", "", "12345", "Initech LLC", nil),
	}

	clusters, _ := Group(pool, DefaultStrategies())
	require.Len(t, clusters, 1)
	assert.Equal(t, StrategySecondaryID, clusters[0].Strategy)
	assert.Equal(t, []string{"A", "B"}, memberKeys(clusters[0]))
}

func TestGroupNameFallbackIncludesPartialLocality(t *testing.T) {
	pool := []model.RawRecord{
		rec("C", "", "", "Acme Corp", map[string]string{"city": "Springfield", "state": "IL", "postal_code": "62701"}),
		rec("D", "", "", "ACME CORP.", nil),
		rec("E", "", "", "acme corp", nil),
	}

	clusters, leftover := Group(pool, DefaultStrategies())
	require.Len(t, clusters, 1)
	assert.Empty(t, leftover)
	assert.Equal(t, StrategyNormalizedName, clusters[0].Strategy)
	assert.Equal(t, "acme corp", clusters[0].KeyValue)
	assert.Equal(t, []string{"C", "D", "E"}, memberKeys(clusters[0]))
}

func TestGroupNameLocality(t *testing.T) {
	il := map[string]string{"city": "Springfield", "state": "IL"}
	or := map[string]string{"city": "Springfield", "state": "OR"}
	pool := []model.RawRecord{
		rec("A", "", "", "Acme", il),
		rec("B", "", "", "ACME", il),
		rec("C", "", "", "Acme", or),
	}

	clusters, _ := Group(pool, DefaultStrategies())
	require.Len(t, clusters, 2)
	assert.Equal(t, StrategyNameLocality, clusters[0].Strategy)
	assert.Equal(t, []string{"A", "B"}, memberKeys(clusters[0]))
	assert.Equal(t, []string{"C"}, memberKeys(clusters[1]))
}

func TestGroupEveryRecordExactlyOnce(t *testing.T) {
	pool := []model.RawRecord{
		rec("1", "P1", "", "One", nil),
		rec("2", "P1", "9", "Two", nil),
		rec("3", "", "9", "Three", nil),
		rec("4", "", "", "Four", nil),
		rec("5", "", "", "", nil),
		rec("6", "P2", "", "Six", nil),
		rec("1", "P1", "", "One", nil),
	}

	clusters, leftover := Group(pool, DefaultStrategies())

	seen := map[string]int{}
	for _, c := range clusters {
		assert.NotEmpty(t, c.Members)
		for _, k := range c.Keys() {
			seen[k]++
		}
	}
	for _, k := range []string{"1", "2", "3", "4", "5", "6"} {
		assert.Equal(t, 1, seen[k], "record %s", k)
	}
	require.Len(t, leftover, 1)
	assert.Equal(t, "5", leftover[0].Key)
	assert.Equal(t, StrategySingleton, clusters[len(clusters)-1].Strategy)
}

func TestGroupDeterministic(t *testing.T) {
	pool := []model.RawRecord{
		rec("a", "", "", "Foo", nil),
		rec("b", "Q", "", "Bar", nil),
		rec("c", "q", "", "Baz", nil),
		rec("d", "", "", "foo", nil),
	}
	first, _ := Group(pool, DefaultStrategies())
	second, _ := Group(pool, DefaultStrategies())
	assert.Equal(t, first, second)
}
