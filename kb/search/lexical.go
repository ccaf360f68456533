// Package search implements the multi-strategy retrieval pipeline: lexical,
// vector, rewrite, and LLM-score strategies fanned out per query, fused with
// Reciprocal Rank Fusion, and optionally reranked.
package search

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/storage"
	"github.com/personakb/persona/kb/types"
)

// StrategyLexical names the FTS5 full-text strategy.
const StrategyLexical = "lexical"

// LexicalStrategy ranks claims with SQLite FTS5 over claim statements.
// bm25() returns lower-is-better, so scores are negated to keep the
// higher-is-better convention.
type LexicalStrategy struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewLexicalStrategy creates the FTS5-backed strategy
func NewLexicalStrategy(database *sql.DB, logger *zap.SugaredLogger) *LexicalStrategy {
	return &LexicalStrategy{db: database, logger: logger}
}

// Name implements kb.SearchStrategy.
func (s *LexicalStrategy) Name() string { return StrategyLexical }

// Search implements kb.SearchStrategy.
func (s *LexicalStrategy) Search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]*types.SearchResult, error) {
	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	qb := newClaimFilter(filters)

	sqlQuery := `
		SELECT ` + claimSelectColumns("c") + `, -bm25(claims_fts) AS rank
		FROM claims_fts f
		JOIN claims c ON c.rowid = f.rowid
		WHERE claims_fts MATCH ? AND ` + qb.where + `
		ORDER BY rank DESC
		LIMIT ?`

	args := append([]interface{}{ftsQuery}, qb.args...)
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "lexical search")
	}
	defer rows.Close()

	var results []*types.SearchResult
	for rows.Next() {
		result, err := scanResultRow(rows, StrategyLexical)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

var ftsTokenPattern = regexp.MustCompile(`[^\w\s-]`)

// sanitizeFTSQuery makes arbitrary user input safe for FTS5 MATCH. All
// operator characters are stripped; the result matches either the exact
// phrase or any token as a prefix. Punctuation-only input yields "".
func sanitizeFTSQuery(query string) string {
	cleaned := ftsTokenPattern.ReplaceAllString(query, " ")
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}

	parts := make([]string, 0, len(tokens)+1)
	parts = append(parts, `"`+strings.Join(tokens, " ")+`"`)
	for _, token := range tokens {
		parts = append(parts, `"`+token+`"*`)
	}
	return strings.Join(parts, " OR ")
}

// claimFilter is the rendered WHERE fragment for a SearchFilters value,
// with columns qualified by the claims alias.
type claimFilter struct {
	where string
	args  []interface{}
}

func newClaimFilter(filters types.SearchFilters) claimFilter {
	if len(filters.Statuses) == 0 {
		filters.Statuses = types.DefaultSearchFilters().Statuses
	}
	where, args := storage.RenderSearchFilters(filters, "c")
	return claimFilter{where: where, args: args}
}

func claimSelectColumns(alias string) string {
	cols := []string{"id", "statement", "claim_type", "context_domain", "status",
		"confidence", "valid_from", "valid_to", "friendly_id", "metadata",
		"created_at", "updated_at"}
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

// scanResultRow scans a claim row followed by a score column.
func scanResultRow(rows *sql.Rows, source string) (*types.SearchResult, error) {
	claim, score, err := storage.ScanClaimWithScore(rows)
	if err != nil {
		return nil, err
	}
	return &types.SearchResult{
		Claim:       claim,
		Score:       score,
		Source:      source,
		IsContested: claim.IsContested(),
	}, nil
}
