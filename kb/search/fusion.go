package search

import (
	"sort"

	"github.com/personakb/persona/kb/types"
)

// DefaultRRFK is the standard Reciprocal Rank Fusion constant.
const DefaultRRFK = 60

// rankedList is one strategy's ordered output entering fusion.
type rankedList struct {
	strategy string
	results  []*types.SearchResult
}

// fuseRRF merges the strategy lists with Reciprocal Rank Fusion:
// each appearance at zero-based rank r contributes 1/(r+k). Raw strategy
// scores never mix; only ranks do. Duplicates within a single list keep
// their best rank. The output is deterministic: ties break by first
// appearance across the lists in input order.
func fuseRRF(lists []rankedList, k int) []*types.SearchResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	type fused struct {
		result       *types.SearchResult
		score        float64
		contributors []string
		order        int
	}

	byID := make(map[string]*fused)
	var ids []string
	order := 0

	for _, list := range lists {
		seenInList := make(map[string]bool, len(list.results))
		for rank, result := range list.results {
			if result == nil || result.Claim == nil {
				continue
			}
			id := result.Claim.ID
			if seenInList[id] {
				continue
			}
			seenInList[id] = true

			contribution := 1.0 / float64(rank+k)
			entry, ok := byID[id]
			if !ok {
				entry = &fused{result: result, order: order}
				order++
				byID[id] = entry
				ids = append(ids, id)
			} else if result.Score > entry.result.Score {
				// Keep the instance with the better native score so the
				// surviving Source reflects the strongest signal.
				entry.result = result
			}
			entry.score += contribution
			entry.contributors = append(entry.contributors, list.strategy)
		}
	}

	merged := make([]*fused, 0, len(ids))
	for _, id := range ids {
		merged = append(merged, byID[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].order < merged[j].order
	})

	out := make([]*types.SearchResult, len(merged))
	for i, entry := range merged {
		out[i] = &types.SearchResult{
			Claim:        entry.result.Claim,
			Score:        entry.score,
			Source:       entry.result.Source,
			IsContested:  entry.result.IsContested,
			Warnings:     entry.result.Warnings,
			Contributors: entry.contributors,
		}
	}
	return out
}
