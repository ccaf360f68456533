package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/storage/testutil"
	"github.com/personakb/persona/kb/types"
)

func TestRerank_ReordersHead(t *testing.T) {
	client := &fakeProvider{
		rerankFn: func(_ string, _ []provider.Candidate) ([]string, error) {
			return []string{"B", "A"}, nil
		},
	}
	input := []*types.SearchResult{hit("A", 3, "lexical"), hit("B", 2, "lexical"), hit("C", 1, "lexical")}

	out := rerank(testutil.Ctx(t), client, "q", input, 2, nil)
	assert.Equal(t, []string{"B", "A", "C"}, resultIDs(out), "tail past topN keeps its place")
}

func TestRerank_OmittedIDsFollowInOriginalOrder(t *testing.T) {
	client := &fakeProvider{
		rerankFn: func(_ string, _ []provider.Candidate) ([]string, error) {
			return []string{"C"}, nil
		},
	}
	input := []*types.SearchResult{hit("A", 3, "l"), hit("B", 2, "l"), hit("C", 1, "l")}

	out := rerank(testutil.Ctx(t), client, "q", input, 3, nil)
	assert.Equal(t, []string{"C", "A", "B"}, resultIDs(out))
}

func TestRerank_UnknownIDsIgnored(t *testing.T) {
	client := &fakeProvider{
		rerankFn: func(_ string, _ []provider.Candidate) ([]string, error) {
			return []string{"ghost", "B", "B"}, nil
		},
	}
	input := []*types.SearchResult{hit("A", 2, "l"), hit("B", 1, "l")}

	out := rerank(testutil.Ctx(t), client, "q", input, 2, nil)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"B", "A"}, resultIDs(out))
}

func TestRerank_FailureKeepsFusedOrder(t *testing.T) {
	client := &fakeProvider{
		rerankFn: func(_ string, _ []provider.Candidate) ([]string, error) {
			return nil, errors.New("provider down")
		},
	}
	input := []*types.SearchResult{hit("A", 2, "l"), hit("B", 1, "l")}

	out := rerank(testutil.Ctx(t), client, "q", input, 2, nil)
	assert.Equal(t, []string{"A", "B"}, resultIDs(out))
}

func TestRerank_NilClientIsNoop(t *testing.T) {
	input := []*types.SearchResult{hit("A", 2, "l"), hit("B", 1, "l")}
	out := rerank(testutil.Ctx(t), nil, "q", input, 2, nil)
	assert.Equal(t, []string{"A", "B"}, resultIDs(out))
}
