package storage

import (
	"strings"
	"time"

	"github.com/personakb/persona/kb/types"
)

// queryBuilder accumulates SQL WHERE clauses and parameters for claim
// queries. A non-empty alias qualifies column names for joined queries.
type queryBuilder struct {
	alias        string
	whereClauses []string
	args         []interface{}
}

// col qualifies a column name with the builder's table alias
func (qb *queryBuilder) col(name string) string {
	if qb.alias == "" {
		return name
	}
	return qb.alias + "." + name
}

// addClause appends a WHERE clause with its arguments
func (qb *queryBuilder) addClause(clause string, args ...interface{}) {
	qb.whereClauses = append(qb.whereClauses, clause)
	qb.args = append(qb.args, args...)
}

// build returns the WHERE clauses joined with AND, or "1=1" when empty
func (qb *queryBuilder) build() string {
	if len(qb.whereClauses) == 0 {
		return "1=1"
	}
	return strings.Join(qb.whereClauses, " AND ")
}

// buildInFilter creates an IN clause over a string-valued column
func (qb *queryBuilder) buildInFilter(column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		qb.args = append(qb.args, v)
	}
	qb.whereClauses = append(qb.whereClauses, column+" IN ("+strings.Join(placeholders, ", ")+")")
}

// buildStatusFilter restricts by lifecycle status
func (qb *queryBuilder) buildStatusFilter(statuses []types.ClaimStatus) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	qb.buildInFilter(qb.col("status"), values)
}

// buildDomainFilter restricts by context domain
func (qb *queryBuilder) buildDomainFilter(domains []types.Domain) {
	values := make([]string, len(domains))
	for i, d := range domains {
		values[i] = string(d)
	}
	qb.buildInFilter(qb.col("context_domain"), values)
}

// buildTypeFilter restricts by claim type
func (qb *queryBuilder) buildTypeFilter(claimTypes []types.ClaimType) {
	values := make([]string, len(claimTypes))
	for i, ct := range claimTypes {
		values[i] = string(ct)
	}
	qb.buildInFilter(qb.col("claim_type"), values)
}

// buildValidityFilter restricts to claims whose validity window contains ts.
// Open-ended bounds (NULL) always match.
func (qb *queryBuilder) buildValidityFilter(ts *time.Time) {
	if ts == nil {
		return
	}
	formatted := ts.UTC().Format(time.RFC3339)
	qb.addClause("("+qb.col("valid_from")+" IS NULL OR "+qb.col("valid_from")+" <= ?)", formatted)
	qb.addClause("("+qb.col("valid_to")+" IS NULL OR "+qb.col("valid_to")+" >= ?)", formatted)
}

// buildOwnerScopeFilter restricts to claims visible in the given scope.
// Claims with no visibility metadata are visible everywhere.
func (qb *queryBuilder) buildOwnerScopeFilter(scope string) {
	if scope == "" {
		return
	}
	md := qb.col("metadata")
	qb.addClause("(json_extract("+md+", '$.visibility') IS NULL OR json_extract("+md+", '$.visibility') = ?)", scope)
}

// applySearchFilters adds every filter from a SearchFilters value.
// This is the single pre-filter path shared by List and all search strategies.
func (qb *queryBuilder) applySearchFilters(filters types.SearchFilters) {
	qb.buildStatusFilter(filters.Statuses)
	qb.buildDomainFilter(filters.Domains)
	qb.buildTypeFilter(filters.Types)
	qb.buildValidityFilter(filters.ValidAt)
	qb.buildOwnerScopeFilter(filters.OwnerScope)
}
