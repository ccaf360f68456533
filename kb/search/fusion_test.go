package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/kb/types"
)

func hit(id string, score float64, source string) *types.SearchResult {
	return &types.SearchResult{
		Claim:  &types.Claim{ID: id, Statement: "claim " + id},
		Score:  score,
		Source: source,
	}
}

func TestFuseRRF_AgreementBeatsSingleList(t *testing.T) {
	// X tops both lists; Y and Z each top only one. With K=60 the doubly
	// ranked claim must win: 2/60 > 1/60 + anything a rank-1 slot adds
	// to nothing.
	lists := []rankedList{
		{strategy: "lexical", results: []*types.SearchResult{
			hit("X", 5.0, "lexical"), hit("Y", 4.0, "lexical"),
		}},
		{strategy: "vector", results: []*types.SearchResult{
			hit("X", 0.9, "vector"), hit("Z", 0.8, "vector"),
		}},
	}

	fused := fuseRRF(lists, 60)
	require.Len(t, fused, 3)
	assert.Equal(t, "X", fused[0].Claim.ID)
	assert.InDelta(t, 2.0/60.0, fused[0].Score, 1e-12)
	assert.ElementsMatch(t, []string{"lexical", "vector"}, fused[0].Contributors)
}

func TestFuseRRF_SymmetricListsScoreEqually(t *testing.T) {
	// list1 = [X, Y, Z], list2 = [Y, X, W]: X and Y swap ranks 0 and 1, so
	// their totals are identical, and both beat the single-list claims.
	lists := []rankedList{
		{strategy: "one", results: []*types.SearchResult{
			hit("X", 3, "one"), hit("Y", 2, "one"), hit("Z", 1, "one"),
		}},
		{strategy: "two", results: []*types.SearchResult{
			hit("Y", 3, "two"), hit("X", 2, "two"), hit("W", 1, "two"),
		}},
	}

	fused := fuseRRF(lists, 60)
	require.Len(t, fused, 4)

	scores := make(map[string]float64, 4)
	for _, result := range fused {
		scores[result.Claim.ID] = result.Score
	}
	expected := 1.0/60.0 + 1.0/61.0
	assert.InDelta(t, expected, scores["X"], 1e-12)
	assert.InDelta(t, expected, scores["Y"], 1e-12)
	assert.Greater(t, scores["X"], scores["Z"])
	assert.Greater(t, scores["Y"], scores["W"])
	assert.InDelta(t, 1.0/62.0, scores["Z"], 1e-12)
}

func TestFuseRRF_RawScoresNeverMix(t *testing.T) {
	// The lexical score (5.0) dwarfs the vector score (0.9), but fusion only
	// sees ranks: both claims sit at rank 1 of one list each.
	lists := []rankedList{
		{strategy: "lexical", results: []*types.SearchResult{hit("A", 5.0, "lexical")}},
		{strategy: "vector", results: []*types.SearchResult{hit("B", 0.9, "vector")}},
	}

	fused := fuseRRF(lists, 60)
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].Score, fused[1].Score, 1e-12)
}

func TestFuseRRF_TieBreaksByInputOrder(t *testing.T) {
	lists := []rankedList{
		{strategy: "lexical", results: []*types.SearchResult{hit("A", 1, "lexical")}},
		{strategy: "vector", results: []*types.SearchResult{hit("B", 1, "vector")}},
	}

	for i := 0; i < 10; i++ {
		fused := fuseRRF(lists, 60)
		require.Len(t, fused, 2)
		assert.Equal(t, "A", fused[0].Claim.ID, "ties resolve by first appearance")
		assert.Equal(t, "B", fused[1].Claim.ID)
	}
}

func TestFuseRRF_DuplicateWithinListCountsOnce(t *testing.T) {
	lists := []rankedList{
		{strategy: "lexical", results: []*types.SearchResult{
			hit("A", 3, "lexical"), hit("A", 2, "lexical"), hit("B", 1, "lexical"),
		}},
	}

	fused := fuseRRF(lists, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "A", fused[0].Claim.ID)
	assert.InDelta(t, 1.0/60.0, fused[0].Score, 1e-12, "second appearance in the same list is ignored")
}

func TestFuseRRF_KeepsStrongerNativeInstance(t *testing.T) {
	lists := []rankedList{
		{strategy: "lexical", results: []*types.SearchResult{hit("A", 2.5, "lexical")}},
		{strategy: "vector", results: []*types.SearchResult{hit("A", 0.4, "vector")}},
	}

	fused := fuseRRF(lists, 60)
	require.Len(t, fused, 1)
	assert.Equal(t, "lexical", fused[0].Source, "surviving instance carries the stronger native score")
	assert.ElementsMatch(t, []string{"lexical", "vector"}, fused[0].Contributors)
}

func TestFuseRRF_EmptyAndNilListsAreHarmless(t *testing.T) {
	lists := []rankedList{
		{strategy: "lexical", results: nil},
		{strategy: "vector", results: []*types.SearchResult{hit("A", 1, "vector")}},
	}

	fused := fuseRRF(lists, 0)
	require.Len(t, fused, 1)
	assert.Equal(t, "A", fused[0].Claim.ID)
}
