package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/kb/types"
)

// rerank sends the fused top-N to the provider for reordering. Candidates
// the provider omits keep their relative order and follow the reranked
// ones. Any provider failure returns the input unchanged; reranking is an
// optional polish, never a point of failure.
func rerank(ctx context.Context, client provider.Client, query string, results []*types.SearchResult, topN int, logger *zap.SugaredLogger) []*types.SearchResult {
	if client == nil || len(results) < 2 {
		return results
	}
	if topN <= 0 || topN > len(results) {
		topN = len(results)
	}

	head := results[:topN]
	tail := results[topN:]

	candidates := make([]provider.Candidate, len(head))
	for i, result := range head {
		candidates[i] = provider.Candidate{ID: result.Claim.ID, Text: result.Claim.Statement}
	}

	orderedIDs, err := client.Rerank(ctx, query, candidates)
	if err != nil {
		if logger != nil {
			logger.Warnw("Rerank failed, keeping fused order", "error", err)
		}
		return results
	}

	byID := make(map[string]*types.SearchResult, len(head))
	for _, result := range head {
		byID[result.Claim.ID] = result
	}

	reordered := make([]*types.SearchResult, 0, len(results))
	used := make(map[string]bool, len(head))
	for _, id := range orderedIDs {
		if result, ok := byID[id]; ok && !used[id] {
			used[id] = true
			reordered = append(reordered, result)
		}
	}
	// Omitted candidates keep their fused order after the reranked ones.
	for _, result := range head {
		if !used[result.Claim.ID] {
			reordered = append(reordered, result)
		}
	}
	return append(reordered, tail...)
}
