package commands

import (
	"database/sql"
	"time"

	"github.com/personakb/persona/ai/provider"
	"github.com/personakb/persona/config"
	"github.com/personakb/persona/db"
	"github.com/personakb/persona/errors"
	"github.com/personakb/persona/kb/resolve"
	"github.com/personakb/persona/kb/search"
	"github.com/personakb/persona/kb/storage"
	"github.com/personakb/persona/logger"
	"github.com/personakb/persona/pool"
)

// openDatabase opens the configured database and applies migrations.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		dbPath = cfg.Database.Path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}

// engine bundles the wired stores and pipeline for command handlers.
type engine struct {
	db           *sql.DB
	cfg          *config.Config
	claims       *storage.ClaimStore
	hierarchy    *storage.HierarchyStore
	conflicts    *storage.ConflictStore
	entities     *storage.EntityStore
	embeddings   *storage.EmbeddingStore
	resolver     *resolve.Resolver
	orchestrator *search.Orchestrator
}

// buildEngine wires stores, strategies, and pools from configuration.
// Provider-backed strategies register only when the provider is enabled;
// lexical search always works.
func buildEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	log := logger.Logger
	claims := storage.NewClaimStore(database, log)
	hierarchy := storage.NewHierarchyStore(database, log)
	conflicts := storage.NewConflictStore(database, log)
	entities := storage.NewEntityStore(database, log)
	embeddings := storage.NewEmbeddingStore(database, log)

	registry := search.NewRegistry()
	lexical := search.NewLexicalStrategy(database, log)
	registry.Register(lexical)

	client, err := provider.NewFromConfig(cfg, log)
	if err != nil {
		if !errors.Is(err, errors.ErrStrategyUnavailable) {
			database.Close()
			return nil, err
		}
		log.Debugw("Provider disabled, registering lexical strategy only")
		client = nil
	}

	if client != nil {
		registry.Register(search.NewVectorStrategy(search.VectorStrategyParams{
			DB:           database,
			Claims:       claims,
			Embeddings:   embeddings,
			Provider:     client,
			FillPool:     pool.New(cfg.Pools.EmbeddingWorkers, log),
			BatchTimeout: time.Duration(cfg.Embeddings.BatchTimeoutSeconds) * time.Second,
			Threshold:    cfg.Embeddings.SimilarityThreshold,
			Logger:       log,
		}))
		registry.Register(search.NewRewriteStrategy(client, lexical, log))
		registry.Register(search.NewLLMScoreStrategy(search.LLMScoreParams{
			Provider:  client,
			Lexical:   lexical,
			ScorePool: pool.New(cfg.Pools.SearchWorkers, log),
			PoolSize:  cfg.Search.ScorePoolSize,
			BatchSize: cfg.Search.ScoreBatchSize,
			Logger:    log,
		}))
	}

	defaults := cfg.Search.Strategies
	if client == nil {
		defaults = []string{search.StrategyLexical}
	}

	orchestrator := search.NewOrchestrator(search.OrchestratorParams{
		Registry:          registry,
		Pool:              pool.New(cfg.Pools.SearchWorkers, log),
		Reranker:          client,
		DefaultStrategies: defaults,
		RRFK:              cfg.Search.RRFK,
		StrategyTimeout:   time.Duration(cfg.Search.StrategyTimeoutSeconds) * time.Second,
		RerankEnabled:     cfg.Search.RerankEnabled,
		RerankTopN:        cfg.Search.RerankTopN,
		Logger:            log,
	})

	return &engine{
		db:           database,
		cfg:          cfg,
		claims:       claims,
		hierarchy:    hierarchy,
		conflicts:    conflicts,
		entities:     entities,
		embeddings:   embeddings,
		resolver:     resolve.New(claims, hierarchy, entities, log),
		orchestrator: orchestrator,
	}, nil
}

func (e *engine) Close() {
	e.db.Close()
}
