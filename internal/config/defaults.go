package config

import "github.com/hyperjump/kiku/internal/models"

// DefaultAbstention is the sentence returned when the context cannot answer a question.
const DefaultAbstention = "No tengo información suficiente para responder esta pregunta basándome en los documentos disponibles."

// DefaultConfig returns a Config with every default applied, including the
// ones whose zero value is meaningful (lambda, temperature, overlap).
func DefaultConfig() *Config {
	cfg := &Config{
		Retrieval: RetrievalConfig{
			LambdaMult:  0.5,
			Temperature: 0.2,
		},
		Ingest: IngestConfig{
			ChunkOverlap: models.DefaultChunkOverlap,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Server.TimeoutSecs == 0 {
		cfg.Server.TimeoutSecs = 120
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreQdrant
	}
	if cfg.Store.Type == StoreSQLite && cfg.Store.Path == "" {
		cfg.Store.Path = ".kiku/vectors.db"
	}
	if cfg.Store.TimeoutSecs == 0 {
		cfg.Store.TimeoutSecs = 30
	}
	if cfg.Store.ScrollPageSize == 0 {
		cfg.Store.ScrollPageSize = 1000
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.SearchType == "" {
		cfg.Retrieval.SearchType = SearchSimilarity
	}
	if cfg.Retrieval.FetchK == 0 {
		cfg.Retrieval.FetchK = 20
	}
	if cfg.Retrieval.ChatModel == "" {
		cfg.Retrieval.ChatModel = "gpt-4o"
	}
	if cfg.Retrieval.AbstentionText == "" {
		cfg.Retrieval.AbstentionText = DefaultAbstention
	}
	if cfg.Ingest.ChunkerType == "" {
		cfg.Ingest.ChunkerType = string(models.ChunkerRecursive)
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = models.DefaultChunkSize
	}
	if cfg.Ingest.SemanticThresholdType == "" {
		cfg.Ingest.SemanticThresholdType = ThresholdPercentile
	}
	if cfg.Ingest.SemanticThreshold == 0 {
		if cfg.Ingest.SemanticThresholdType == ThresholdStandardDeviation {
			cfg.Ingest.SemanticThreshold = 3
		} else {
			cfg.Ingest.SemanticThreshold = 95
		}
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.Patterns == nil {
		cfg.Ingest.Patterns = []string{"*.pdf", "*.txt", "*.docx"}
	}
	if cfg.Ledger.DatabasePath == "" {
		cfg.Ledger.DatabasePath = ".kiku/ledger.db"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), models.AllowedExtensions...)
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 400
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
