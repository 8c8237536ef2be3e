// Package search retrieves relevant chunks, answers questions from them, and routes
// corpus-statistics questions away from retrieval.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/vector"
)

// Passage is a retrieved chunk.
type Passage struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float64
}

// Engine runs similarity or MMR search over the collection.
type Engine struct {
	store    vector.Store
	embedder embedding.Embedder
	cfg      config.RetrievalConfig
}

// NewEngine creates a search engine. Search parameters come from cfg and are fixed per engine.
func NewEngine(store vector.Store, embedder embedding.Embedder, cfg config.RetrievalConfig) *Engine {
	return &Engine{store: store, embedder: embedder, cfg: cfg}
}

// Retrieve returns up to top_k passages for question, best first. A missing
// collection yields no passages.
func (e *Engine) Retrieve(ctx context.Context, question string) ([]Passage, error) {
	if e.store == nil {
		return nil, fmt.Errorf("%w: vector store not initialized", config.ErrMissingStoreConfig)
	}
	qvec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	req := vector.SearchRequest{
		Vector:         qvec,
		Limit:          e.cfg.TopK,
		ScoreThreshold: e.cfg.ScoreThreshold,
	}
	mmr := e.cfg.SearchType == config.SearchMMR
	if mmr {
		req.Limit = max(e.cfg.FetchK, e.cfg.TopK)
		req.WithVectors = true
	}
	hits, err := e.store.Search(ctx, req)
	if errors.Is(err, vector.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if mmr {
		hits = vector.MaxMarginalRelevance(qvec, hits, e.cfg.TopK, e.cfg.LambdaMult)
	}

	passages := make([]Passage, len(hits))
	for i, h := range hits {
		passages[i] = Passage{
			ID:       h.ID,
			Content:  vector.PayloadContent(h.Payload),
			Metadata: vector.PayloadMetadata(h.Payload),
			Score:    h.Score,
		}
	}
	return passages, nil
}
