package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/llm"
	"github.com/hyperjump/kiku/internal/search"
	"github.com/hyperjump/kiku/internal/stats"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Store    vector.Store
	Ledger   *storage.SQLiteLedger
	Embedder embedding.Embedder
	Indexer  *indexer.Indexer
	Scanner  *stats.Scanner
	Router   *search.Router
}

// Close releases every component that was opened. Close errors are ignored.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents wires every service from cfg. An incomplete store
// configuration is not fatal: the store stays nil and operations that need it
// report the configuration error themselves.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := vector.NewStore(cfg.Store, logger.Named("store"))
	switch {
	case errors.Is(err, config.ErrMissingStoreConfig):
		logger.Warn("vector store not configured", zap.Error(err))
		store = nil
	case err != nil:
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	ledger, err := storage.NewSQLiteLedger(cfg.Ledger.DatabasePath)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	var (
		embedder embedding.Embedder
		provider llm.Provider
	)
	if cfg.OpenAI.APIKey != "" {
		embedder = embedding.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Embedding.Model,
			embedding.WithBatchSize(cfg.Embedding.BatchSize),
			embedding.WithRequestsPerMinute(cfg.Embedding.RequestsPerMinute),
			embedding.WithLogger(logger.Named("embedding")))
		provider = llm.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Retrieval.ChatModel)
	} else {
		dims := embedding.ModelDimensions(cfg.Embedding.Model)
		if dims == 0 {
			dims = 1536
		}
		logger.Warn("OPENAI_API_KEY not set, using offline mock embedder and model",
			zap.Int("dimensions", dims))
		embedder = embedding.NewMockEmbedder(dims)
		provider = &llm.MockProvider{Reply: cfg.Retrieval.AbstentionText}
	}
	embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)

	chunker := indexer.NewChunker(
		indexer.WithSemanticSplitter(indexer.NewSemanticSplitter(embedder,
			cfg.Ingest.SemanticThresholdType, cfg.Ingest.SemanticThreshold)),
		indexer.WithChunkerLogger(logger.Named("chunker")),
	)
	idx := indexer.NewIndexer(cfg.Store, store, embedder, chunker,
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithLedger(ledger),
		indexer.WithConcurrency(cfg.Ingest.Concurrency),
		indexer.WithEmbeddingModel(cfg.Embedding.Model))

	scanner := stats.NewScanner(cfg.Store, store, cfg.Store.ScrollPageSize, logger.Named("stats"))
	engine := search.NewEngine(store, embedder, cfg.Retrieval)
	chain := search.NewChain(engine, provider, cfg.Retrieval, logger.Named("chain"))
	router := search.NewRouter(scanner, chain, logger.Named("router"))

	return &Components{
		Store:    store,
		Ledger:   ledger,
		Embedder: embedder,
		Indexer:  idx,
		Scanner:  scanner,
		Router:   router,
	}, nil
}
