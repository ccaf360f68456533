package types

import "time"

// SearchFilters scope a search. All strategies and the fusion step apply the
// same filters at the data-access layer, never post-hoc.
type SearchFilters struct {
	Statuses []ClaimStatus `json:"statuses,omitempty"`
	Domains  []Domain      `json:"domains,omitempty"`
	Types    []ClaimType   `json:"types,omitempty"`
	// ValidAt restricts to claims whose validity window contains the timestamp
	ValidAt *time.Time `json:"valid_at,omitempty"`
	// OwnerScope restricts to claims carrying a matching visibility metadata key
	OwnerScope string `json:"owner_scope,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// DefaultSearchFilters returns the filter set used when a query does not
// provide one: non-retracted, non-draft claims.
func DefaultSearchFilters() SearchFilters {
	return SearchFilters{
		Statuses: []ClaimStatus{StatusActive, StatusContested, StatusHistorical, StatusSuperseded},
	}
}

// SearchResult is a transient scored hit. Score is strategy- or
// fusion-specific; higher is always better.
type SearchResult struct {
	Claim       *Claim   `json:"claim"`
	Score       float64  `json:"score"`
	Source      string   `json:"source"`
	IsContested bool     `json:"is_contested"`
	Warnings    []string `json:"warnings,omitempty"`
	// Contributors lists the strategies that ranked this claim (set by fusion)
	Contributors []string `json:"contributors,omitempty"`
}

// SearchRequest is the search call contract exposed by the engine.
type SearchRequest struct {
	Query      string        `json:"query"`
	K          int           `json:"k"`
	Filters    SearchFilters `json:"filters"`
	Strategies []string      `json:"strategies,omitempty"`
}
