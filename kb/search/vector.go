package search

import (
	"context"
	"database/sql"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"go.uber.org/zap"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/storage"
	"github.com/personakb/persona/kb/types"
	"github.com/personakb/persona/pool"
)

// StrategyVector names the embedding-similarity strategy.
const StrategyVector = "vector"

// VectorStrategy ranks claims by embedding similarity. Embeddings are
// computed lazily: before each query, candidates passing the filters that
// have no cached vector are embedded through the worker pool, then a single
// KNN query against the vec0 index produces the ranking.
type VectorStrategy struct {
	db           *sql.DB
	claims       *storage.ClaimStore
	embeddings   *storage.EmbeddingStore
	provider     provider.Client
	fillPool     *pool.Pool
	batchTimeout time.Duration
	threshold    float64
	logger       *zap.SugaredLogger
}

// VectorStrategyParams carries the collaborators of a VectorStrategy.
type VectorStrategyParams struct {
	DB           *sql.DB
	Claims       *storage.ClaimStore
	Embeddings   *storage.EmbeddingStore
	Provider     provider.Client
	FillPool     *pool.Pool
	BatchTimeout time.Duration
	// Threshold drops results scoring below it; zero keeps everything
	Threshold float64
	Logger    *zap.SugaredLogger
}

// NewVectorStrategy creates the embedding-similarity strategy
func NewVectorStrategy(p VectorStrategyParams) *VectorStrategy {
	return &VectorStrategy{
		db:           p.DB,
		claims:       p.Claims,
		embeddings:   p.Embeddings,
		provider:     p.Provider,
		fillPool:     p.FillPool,
		batchTimeout: p.BatchTimeout,
		threshold:    p.Threshold,
		logger:       p.Logger,
	}
}

// Name implements kb.SearchStrategy.
func (s *VectorStrategy) Name() string { return StrategyVector }

// Search implements kb.SearchStrategy.
func (s *VectorStrategy) Search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]*types.SearchResult, error) {
	if s.provider == nil {
		return nil, errors.Wrap(errors.ErrStrategyUnavailable, "no embedding provider configured")
	}
	if k <= 0 {
		k = 10
	}
	if len(filters.Statuses) == 0 {
		filters.Statuses = types.DefaultSearchFilters().Statuses
	}

	if err := s.ensureEmbeddings(ctx, filters); err != nil {
		return nil, err
	}

	queryVec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	queryBlob, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, errors.Wrap(err, "serialize query embedding")
	}

	where, filterArgs := storage.RenderSearchFilters(filters, "c2")

	// The IN constraint narrows the KNN search to embeddings of claims
	// passing the filters, so this returns the k nearest claims of the
	// filtered set rather than the filtered survivors of an unfiltered
	// neighborhood.
	sqlQuery := `
		SELECT ` + claimSelectColumns("c") + `, 1.0 / (1.0 + v.distance) AS score
		FROM vec_embeddings v
		JOIN embeddings e ON e.id = v.embedding_id
		JOIN claims c ON c.id = e.claim_id
		WHERE v.embedding MATCH ? AND v.k = ?
		  AND v.embedding_id IN (
			SELECT e2.id FROM embeddings e2
			JOIN claims c2 ON c2.id = e2.claim_id
			WHERE ` + where + `)
		ORDER BY v.distance`

	args := append([]interface{}{queryBlob, k}, filterArgs...)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "vector search")
	}
	defer rows.Close()

	var results []*types.SearchResult
	for rows.Next() {
		result, err := scanResultRow(rows, StrategyVector)
		if err != nil {
			return nil, err
		}
		if s.threshold > 0 && result.Score < s.threshold {
			continue
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// ensureEmbeddings fills the embedding cache for every filtered candidate
// that lacks one, bounded by the fill pool and the batch timeout. One claim
// failing to embed skips that claim; it does not fail the query.
func (s *VectorStrategy) ensureEmbeddings(ctx context.Context, filters types.SearchFilters) error {
	candidates, err := s.claims.List(ctx, filters)
	if err != nil {
		return errors.Wrap(err, "list vector candidates")
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	byID := make(map[string]*types.Claim, len(candidates))
	for i, claim := range candidates {
		ids[i] = claim.ID
		byID[claim.ID] = claim
	}

	missing, err := s.embeddings.MissingForClaims(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "find missing embeddings")
	}
	if len(missing) == 0 {
		return nil
	}

	batchCtx := ctx
	if s.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.batchTimeout)
		defer cancel()
	}

	tasks := make([]pool.Task, len(missing))
	for i, claimID := range missing {
		claim := byID[claimID]
		tasks[i] = pool.Task{
			Name: "embed-" + claimID,
			Run: func(taskCtx context.Context) error {
				vec, err := s.provider.Embed(taskCtx, claim.Statement)
				if err != nil {
					return errors.Wrapf(err, "embed claim %s", claim.ID)
				}
				return s.embeddings.Save(taskCtx, claim.ID, claim.Statement, s.provider.EmbeddingModel(), vec)
			},
		}
	}

	failed := 0
	for _, err := range s.fillPool.RunAll(batchCtx, tasks) {
		if err != nil {
			failed++
			if s.logger != nil {
				s.logger.Warnw("Embedding fill failed", "error", err)
			}
		}
	}
	if failed == len(missing) {
		return errors.Newf("all %d embedding fills failed", failed)
	}
	return nil
}
