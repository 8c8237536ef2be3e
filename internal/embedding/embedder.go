// Package embedding turns text into vectors via a remote model, with caching and test doubles.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector size, or 0 when the model is unknown until the first call.
	Dimensions() int
	Close() error
}

// ModelDimensions returns the output size of known OpenAI embedding models, or 0.
func ModelDimensions(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	default:
		return 0
	}
}
