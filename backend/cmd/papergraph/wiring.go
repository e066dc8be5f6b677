package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"papergraph/backend/internal/adapter"
	"papergraph/backend/internal/cache"
	"papergraph/backend/internal/extraction"
	"papergraph/backend/internal/gateway"
	"papergraph/backend/internal/graph"
	"papergraph/backend/internal/ingest"
	"papergraph/backend/internal/normalize"
	"papergraph/backend/internal/records"
	"papergraph/backend/internal/strength"
	"papergraph/backend/internal/validation"
	"papergraph/backend/pkg/config"
	"papergraph/backend/pkg/logger"
)

// setup loads configuration and starts the logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, withCode(ExitConfigError, err)
	}
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		return nil, withCode(ExitConfigError, fmt.Errorf("initializing logger: %w", err))
	}
	return cfg, nil
}

// openStore connects to Neo4j and verifies it is reachable.
func openStore(ctx context.Context, cfg *config.Config) (*graph.Neo4jStore, error) {
	store, err := graph.NewNeo4jStore(graph.Neo4jConfig{
		URI:             cfg.Neo4jURI,
		User:            cfg.Neo4jUser,
		Password:        cfg.Neo4jPassword,
		MaxPoolSize:     cfg.Neo4jMaxPoolSize,
		MaxConnLifetime: cfg.Neo4jMaxConnLifetime,
		TxTimeout:       cfg.TxTimeout,
	})
	if err != nil {
		return nil, withCode(ExitStoreError, err)
	}
	if err := store.Verify(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, withCode(ExitStoreError, err)
	}
	return store, nil
}

// pipeline is everything a run needs besides the batch driver.
type pipeline struct {
	orchestrator *extraction.Orchestrator
	ingester     *ingest.Ingester
	cache        *cache.SQLiteStore
}

func (p *pipeline) Close() {
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			logger.Get().Warn("failed to close response cache", zap.Error(err))
		}
	}
}

// buildPipeline wires the model gateway, normalizer, calculator and ingester
// around store. With noModel set every stage runs on its rules.
func buildPipeline(ctx context.Context, cfg *config.Config, store graph.Store, noModel bool) (*pipeline, error) {
	log := logger.Get()
	p := &pipeline{}

	dict, err := normalize.LoadDictionary(cfg.SynonymsPath)
	if err != nil {
		return nil, withCode(ExitConfigError, err)
	}

	var gw *gateway.Gateway
	if !noModel {
		p.cache, err = cache.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, withCode(ExitConfigError, err)
		}
		llm := adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID, cfg.EmbeddingModel)
		opts := []gateway.Option{
			gateway.WithRateLimit(cfg.ModelRPS),
			gateway.WithPromptVersion(cfg.PromptVersion),
			gateway.WithFallbackModel(cfg.FallbackModelID),
			gateway.WithTruncator(&gateway.TiktokenTruncator{}),
		}
		if cfg.EmbeddingsEnabled() {
			opts = append(opts, gateway.WithEmbedder(llm))
		}
		gw = gateway.New(llm, p.cache, opts...)
	}

	normOpts := []normalize.Option{normalize.WithThresholds(cfg.FuzzyThreshold, cfg.EmbeddingThreshold)}
	if gw != nil && gw.EmbeddingsEnabled() {
		normOpts = append(normOpts, normalize.WithEmbedder(gw))
	}
	normalizer := normalize.New(dict, normOpts...)

	for _, label := range records.CanonicalTypes {
		names, err := store.ListCanonical(ctx, label)
		if err != nil {
			p.Close()
			return nil, withCode(ExitStoreError, err)
		}
		normalizer.Seed(label, names...)
		log.Debug("seeded normalizer", zap.String("label", string(label)), zap.Int("names", len(names)))
	}

	calc := strength.NewCalculator(cfg.StrengthThreshold)
	p.ingester = ingest.New(store, validation.New(), normalizer, calc)
	if gw != nil {
		p.orchestrator = extraction.NewOrchestrator(gw, normalizer, calc)
	} else {
		p.orchestrator = extraction.NewOrchestrator(nil, normalizer, calc)
	}
	return p, nil
}
