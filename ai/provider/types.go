// Package provider defines the external LLM/embedding collaborator contracts
// consumed by the search strategies, and an OpenAI-compatible implementation.
// The engine never performs model inference itself; everything goes through
// these narrow call shapes.
package provider

import "context"

// QueryRewrite is the structured form of a natural-language query.
type QueryRewrite struct {
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
	Entities []string `json:"entities"`
	// IndexQuery is a query string ready for the lexical index
	IndexQuery string `json:"index_query"`
}

// Candidate is a claim passed to scoring or reranking calls.
type Candidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Score is one scored candidate from a batch relevance call.
type Score struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// Client is the collaborator interface implemented by an external
// LLM/embedding provider.
type Client interface {
	// Embed returns a fixed-length embedding vector for text
	Embed(ctx context.Context, text string) ([]float32, error)

	// RewriteQuery transforms a natural-language query into keywords, tags,
	// entities, and an index-ready query string
	RewriteQuery(ctx context.Context, text string) (*QueryRewrite, error)

	// ScoreBatch rates each candidate's relevance to the query
	ScoreBatch(ctx context.Context, query string, candidates []Candidate) ([]Score, error)

	// Rerank reorders candidates by relevance and returns their ids in the
	// new order. Omitted ids are treated as "keep original position after
	// the reranked ones".
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]string, error)

	// EmbeddingModel identifies the model producing Embed vectors, stored
	// alongside cached embeddings
	EmbeddingModel() string
}
