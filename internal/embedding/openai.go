package embedding

import (
	"context"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBatchSize = 100

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithBatchSize sets the number of texts sent per request.
func WithBatchSize(n int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRequestsPerMinute caps the request rate. Zero or negative disables the cap.
func WithRequestsPerMinute(rpm int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if rpm > 0 {
			e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewOpenAIEmbedder creates an embedder for model. An empty baseURL uses the public API.
func NewOpenAIEmbedder(apiKey, baseURL, model string, opts ...OpenAIOption) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	e := &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		batchSize: defaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the embedding of a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in order, batchSize texts per request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("embedding rate limit: %w", err)
			}
		}
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding request failed: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings, expected %d", len(resp.Data), len(batch))
		}
		sort.Slice(resp.Data, func(a, b int) bool { return resp.Data[a].Index < resp.Data[b].Index })
		for _, emb := range resp.Data {
			out = append(out, emb.Embedding)
		}
		e.logger.Debug("embedded batch",
			zap.String("model", e.model),
			zap.Int("texts", len(batch)),
			zap.Int("total_tokens", resp.Usage.TotalTokens))
	}
	return out, nil
}

// Dimensions returns the known output size of the model, or 0.
func (e *OpenAIEmbedder) Dimensions() int {
	return ModelDimensions(e.model)
}

// Model returns the model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Close is a no-op; the HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
