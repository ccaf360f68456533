package search

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/kb/storage"
	"github.com/personakb/persona/kb/storage/testutil"
	"github.com/personakb/persona/kb/types"
)

// fakeProvider is a deterministic in-process stand-in for the LLM provider.
type fakeProvider struct {
	embedFn   func(text string) ([]float32, error)
	rewriteFn func(text string) (*provider.QueryRewrite, error)
	scoreFn   func(query string, candidates []provider.Candidate) ([]provider.Score, error)
	rerankFn  func(query string, candidates []provider.Candidate) ([]string, error)
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if f.embedFn != nil {
		return f.embedFn(text)
	}
	return wordVector(text), nil
}

func (f *fakeProvider) RewriteQuery(_ context.Context, text string) (*provider.QueryRewrite, error) {
	if f.rewriteFn != nil {
		return f.rewriteFn(text)
	}
	return &provider.QueryRewrite{IndexQuery: text}, nil
}

func (f *fakeProvider) ScoreBatch(_ context.Context, query string, candidates []provider.Candidate) ([]provider.Score, error) {
	if f.scoreFn != nil {
		return f.scoreFn(query, candidates)
	}
	return nil, nil
}

func (f *fakeProvider) Rerank(_ context.Context, query string, candidates []provider.Candidate) ([]string, error) {
	if f.rerankFn != nil {
		return f.rerankFn(query, candidates)
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids, nil
}

func (f *fakeProvider) EmbeddingModel() string { return "fake-embedder" }

// wordVector embeds text by hashing each word into a fixed dimension.
// Texts sharing words land near each other, which is all the tests need.
func wordVector(text string) []float32 {
	vec := make([]float32, 1536)
	for _, word := range splitWords(text) {
		h := 0
		for _, r := range word {
			h = h*31 + int(r)
		}
		if h < 0 {
			h = -h
		}
		vec[h%1536] += 1
	}
	return vec
}

func splitWords(text string) []string {
	var words []string
	var current []rune
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			if len(current) > 0 {
				words = append(words, string(current))
				current = nil
			}
			continue
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return words
}

type fixture struct {
	db         *sql.DB
	claims     *storage.ClaimStore
	embeddings *storage.EmbeddingStore
}

func setupSearchFixture(t *testing.T) *fixture {
	t.Helper()
	database := testutil.SetupTestDB(t)
	return &fixture{
		db:         database,
		claims:     storage.NewClaimStore(database, nil),
		embeddings: storage.NewEmbeddingStore(database, nil),
	}
}

func (f *fixture) addClaim(t *testing.T, id, statement string) *types.Claim {
	t.Helper()
	claim := testutil.NewClaim(id, statement)
	require.NoError(t, f.claims.Add(testutil.Ctx(t), claim, nil, nil))
	return claim
}

func resultIDs(results []*types.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Claim.ID
	}
	return ids
}
