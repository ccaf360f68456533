package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/db"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb"
	"github.com/personakb/persona/kb/types"
	"github.com/personakb/persona/pool"
)

const defaultK = 10

// Orchestrator fans a query out over the selected strategies, fuses their
// rankings with RRF, and optionally reranks the fused head. A single failing
// strategy degrades the result set; only all strategies failing (or invalid
// filters) fails the query.
type Orchestrator struct {
	registry          *Registry
	pool              *pool.Pool
	reranker          provider.Client
	defaultStrategies []string
	rrfK              int
	strategyTimeout   time.Duration
	rerankEnabled     bool
	rerankTopN        int
	logger            *zap.SugaredLogger
}

// OrchestratorParams carries the collaborators of an Orchestrator.
type OrchestratorParams struct {
	Registry *Registry
	// Pool bounds concurrent strategy execution per query
	Pool *pool.Pool
	// Reranker is optional; nil disables the rerank pass regardless of config
	Reranker provider.Client
	// DefaultStrategies run when a request does not name its own subset
	DefaultStrategies []string
	RRFK              int
	StrategyTimeout   time.Duration
	RerankEnabled     bool
	RerankTopN        int
	Logger            *zap.SugaredLogger
}

// NewOrchestrator creates the search orchestrator
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	if p.RRFK <= 0 {
		p.RRFK = DefaultRRFK
	}
	return &Orchestrator{
		registry:          p.Registry,
		pool:              p.Pool,
		reranker:          p.Reranker,
		defaultStrategies: p.DefaultStrategies,
		rrfK:              p.RRFK,
		strategyTimeout:   p.StrategyTimeout,
		rerankEnabled:     p.RerankEnabled,
		rerankTopN:        p.RerankTopN,
		logger:            p.Logger,
	}
}

// Search runs the request through the pipeline and returns at most K fused
// results, best first. Output is deterministic for a fixed store state and
// fixed strategy outputs.
func (o *Orchestrator) Search(ctx context.Context, req types.SearchRequest) ([]*types.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query cannot be empty")
	}
	if err := validateFilters(req.Filters); err != nil {
		return nil, err
	}

	k := req.K
	if k <= 0 {
		k = defaultK
	}
	filters := req.Filters
	if len(filters.Statuses) == 0 {
		filters.Statuses = types.DefaultSearchFilters().Statuses
	}

	names := req.Strategies
	if len(names) == 0 {
		names = o.defaultStrategies
	}
	if len(names) == 0 {
		names = o.registry.Names()
	}

	strategies := make([]kb.SearchStrategy, len(names))
	for i, name := range names {
		strategy, err := o.registry.Get(name)
		if err != nil {
			return nil, err
		}
		strategies[i] = strategy
	}

	// One result slot per strategy, filled concurrently. Fusion reads the
	// slots in input order, which keeps tie-breaking deterministic.
	lists := make([]rankedList, len(strategies))
	tasks := make([]pool.Task, len(strategies))
	for i, strategy := range strategies {
		lists[i].strategy = strategy.Name()
		tasks[i] = pool.Task{
			Name:    strategy.Name(),
			Timeout: o.strategyTimeout,
			Run: func(taskCtx context.Context) error {
				results, err := strategy.Search(taskCtx, req.Query, k, filters)
				if err != nil {
					return err
				}
				lists[i].results = results
				return nil
			},
		}
	}

	taskErrs := o.pool.RunAll(ctx, tasks)

	failures := 0
	var lastErr error
	for i, err := range taskErrs {
		if err == nil {
			continue
		}
		failures++
		lastErr = err
		lists[i].results = nil
		if o.logger != nil {
			if db.IsDatabaseClosed(err) {
				// Shutdown race, not a strategy defect.
				o.logger.Debugw("Search strategy hit closed database",
					"strategy", names[i], "query", req.Query)
			} else {
				o.logger.Warnw("Search strategy failed",
					"strategy", names[i], "query", req.Query, "error", err)
			}
		}
	}
	if failures == len(strategies) {
		return nil, errors.Wrap(lastErr, "all search strategies failed")
	}

	fused := fuseRRF(lists, o.rrfK)

	if o.rerankEnabled && o.reranker != nil {
		fused = rerank(ctx, o.reranker, req.Query, fused, o.rerankTopN, o.logger)
	}

	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

func validateFilters(filters types.SearchFilters) error {
	for _, status := range filters.Statuses {
		if !types.ValidStatuses[status] {
			return errors.Newf("invalid status filter %q", status)
		}
	}
	for _, domain := range filters.Domains {
		if !types.ValidDomains[domain] {
			return errors.Newf("invalid domain filter %q", domain)
		}
	}
	for _, claimType := range filters.Types {
		if !types.ValidClaimTypes[claimType] {
			return errors.Newf("invalid type filter %q", claimType)
		}
	}
	return nil
}
