// Package config provides configuration loading and structs for the kiku server and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/hyperjump/kiku/internal/models"
)

// ErrMissingStoreConfig is returned when the vector store connection settings are incomplete.
var ErrMissingStoreConfig = errors.New("missing vector store configuration")

// Store backends.
const (
	StoreQdrant = "qdrant"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Search types.
const (
	SearchSimilarity = "similarity"
	SearchMMR        = "mmr"
)

// Semantic threshold types.
const (
	ThresholdPercentile        = "percentile"
	ThresholdStandardDeviation = "standard_deviation"
)

// Config holds all configuration for the application.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	Debug     bool            `yaml:"debug" koanf:"debug"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Store     StoreConfig     `yaml:"store" koanf:"store"`
	OpenAI    OpenAIConfig    `yaml:"openai" koanf:"openai"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest" koanf:"ingest"`
	Ledger    LedgerConfig    `yaml:"ledger" koanf:"ledger"`
	Watch     WatchConfig     `yaml:"watch" koanf:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host" koanf:"host"`
	Port        int    `yaml:"port" koanf:"port"`
	UploadDir   string `yaml:"upload_dir" koanf:"upload_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb" koanf:"max_upload_mb"`
	TimeoutSecs int    `yaml:"timeout_secs" koanf:"timeout_secs"`

	// CORSOrigins are allowed browser origins; "*" allows any.
	CORSOrigins []string `yaml:"cors_origins" koanf:"cors_origins"`
}

// StoreConfig selects and connects the vector store.
type StoreConfig struct {
	Type           string `yaml:"type" koanf:"type"`
	URL            string `yaml:"url" koanf:"url"`
	APIKey         string `yaml:"api_key" koanf:"api_key"`
	Collection     string `yaml:"collection" koanf:"collection"`
	Path           string `yaml:"path" koanf:"path"`
	TimeoutSecs    int    `yaml:"timeout_secs" koanf:"timeout_secs"`
	ScrollPageSize int    `yaml:"scroll_page_size" koanf:"scroll_page_size"`
}

// OpenAIConfig holds credentials for the embedding and chat provider.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" koanf:"api_key"`
	BaseURL string `yaml:"base_url" koanf:"base_url"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model             string `yaml:"model" koanf:"model"`
	BatchSize         int    `yaml:"batch_size" koanf:"batch_size"`
	CacheSize         int    `yaml:"cache_size" koanf:"cache_size"`
	RequestsPerMinute int    `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// RetrievalConfig holds search and answer generation settings.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k" koanf:"top_k"`
	SearchType     string  `yaml:"search_type" koanf:"search_type"`
	FetchK         int     `yaml:"fetch_k" koanf:"fetch_k"`
	LambdaMult     float64 `yaml:"lambda_mult" koanf:"lambda_mult"`
	ScoreThreshold float64 `yaml:"score_threshold" koanf:"score_threshold"`
	ChatModel      string  `yaml:"chat_model" koanf:"chat_model"`
	Temperature    float64 `yaml:"temperature" koanf:"temperature"`
	AbstentionText string  `yaml:"abstention_text" koanf:"abstention_text"`
}

// IngestConfig holds default chunking and directory ingestion settings.
type IngestConfig struct {
	ChunkerType           string   `yaml:"chunker_type" koanf:"chunker_type"`
	ChunkSize             int      `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap          int      `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	SemanticThresholdType string   `yaml:"semantic_threshold_type" koanf:"semantic_threshold_type"`
	SemanticThreshold     float64  `yaml:"semantic_threshold" koanf:"semantic_threshold"`
	Concurrency           int      `yaml:"concurrency" koanf:"concurrency"`
	Patterns              []string `yaml:"patterns" koanf:"patterns"`
}

// LedgerConfig locates the ingestion ledger database.
type LedgerConfig struct {
	DatabasePath string `yaml:"database_path" koanf:"database_path"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories    []string `yaml:"directories" koanf:"directories"`
	Extensions     []string `yaml:"extensions" koanf:"extensions"`
	Recursive      *bool    `yaml:"recursive" koanf:"recursive"`
	DebounceMillis int      `yaml:"debounce_millis" koanf:"debounce_millis"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ChunkParams returns the configured default chunking parameters.
func (i IngestConfig) ChunkParams() models.ChunkParams {
	return models.ChunkParams{
		ChunkerType:  models.ChunkerType(i.ChunkerType),
		ChunkSize:    i.ChunkSize,
		ChunkOverlap: i.ChunkOverlap,
	}
}

// envKeys maps recognised environment variables to config keys.
var envKeys = map[string]string{
	"QDRANT_URL":          "store.url",
	"QDRANT_API_KEY":      "store.api_key",
	"QDRANT_COLLECTION":   "store.collection",
	"KIKU_STORE_TYPE":     "store.type",
	"KIKU_STORE_PATH":     "store.path",
	"OPENAI_API_KEY":      "openai.api_key",
	"OPENAI_BASE_URL":     "openai.base_url",
	"RAG_EMBED_MODEL":     "embedding.model",
	"RAG_CHAT_MODEL":      "retrieval.chat_model",
	"RAG_TOP_K":           "retrieval.top_k",
	"RAG_SEARCH_TYPE":     "retrieval.search_type",
	"RAG_FETCH_K":         "retrieval.fetch_k",
	"RAG_MMR_LAMBDA":      "retrieval.lambda_mult",
	"RAG_SCORE_THRESHOLD": "retrieval.score_threshold",
	"RAG_ABSTENTION_TEXT": "retrieval.abstention_text",
	"KIKU_UPLOAD_DIR":     "server.upload_dir",
	"KIKU_LEDGER_PATH":    "ledger.database_path",
	"PORT":                "server.port",
	"KIKU_DEBUG":          "debug",
}

// Load builds the configuration from defaults, the optional YAML file at path,
// a .env file, and the process environment, in increasing precedence.
// A .env file never overrides variables already set in the environment.
func Load(path string) (*Config, error) {
	configDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if path != "" {
		configDir = filepath.Dir(path)
	}

	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(cfg)

	cfg.Server.UploadDir = expandPath(cfg.Server.UploadDir, configDir)
	cfg.Store.Path = expandPath(cfg.Store.Path, configDir)
	cfg.Ledger.DatabasePath = expandPath(cfg.Ledger.DatabasePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return cfg, nil
}

// loadDotEnv loads the given .env file if present. Existing variables win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save writes the config to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks that the connection settings for the configured store are present.
// Missing settings wrap ErrMissingStoreConfig.
func (s StoreConfig) Validate() error {
	var missing []string
	switch s.Type {
	case StoreQdrant:
		if s.URL == "" {
			missing = append(missing, "QDRANT_URL")
		}
		if s.APIKey == "" {
			missing = append(missing, "QDRANT_API_KEY")
		}
		if s.Collection == "" {
			missing = append(missing, "QDRANT_COLLECTION")
		}
	case StoreSQLite:
		if s.Path == "" {
			missing = append(missing, "store.path")
		}
		if s.Collection == "" {
			missing = append(missing, "store.collection")
		}
	case StoreMemory:
		if s.Collection == "" {
			missing = append(missing, "store.collection")
		}
	default:
		return fmt.Errorf("unknown store type %q", s.Type)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingStoreConfig, strings.Join(missing, "/"))
	}
	return nil
}

// Validate checks retrieval and ingestion settings. Store settings are checked
// separately by StoreConfig.Validate at the point of use.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", r.TopK)
	}
	if r.SearchType != SearchSimilarity && r.SearchType != SearchMMR {
		return fmt.Errorf("retrieval.search_type must be %q or %q, got %q", SearchSimilarity, SearchMMR, r.SearchType)
	}
	if r.SearchType == SearchMMR && r.FetchK < r.TopK {
		return fmt.Errorf("retrieval.fetch_k (%d) must be >= top_k (%d)", r.FetchK, r.TopK)
	}
	if r.LambdaMult < 0 || r.LambdaMult > 1 {
		return fmt.Errorf("retrieval.lambda_mult must be in [0, 1], got %g", r.LambdaMult)
	}
	params := c.Ingest.ChunkParams()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("ingest defaults: %w", err)
	}
	switch c.Ingest.SemanticThresholdType {
	case ThresholdPercentile, ThresholdStandardDeviation:
	default:
		return fmt.Errorf("ingest.semantic_threshold_type must be %q or %q, got %q",
			ThresholdPercentile, ThresholdStandardDeviation, c.Ingest.SemanticThresholdType)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
