package vector

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
)

// NewStore creates the store selected by cfg after validating its connection settings.
// Incomplete settings return an error wrapping config.ErrMissingStoreConfig.
func NewStore(cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case config.StoreQdrant:
		return NewQdrantStore(QdrantConfig{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		}, WithQdrantLogger(logger)), nil
	case config.StoreSQLite:
		return NewSQLiteStore(cfg.Path, cfg.Collection)
	case config.StoreMemory:
		return NewMemoryStore(cfg.Collection), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: qdrant, sqlite, memory)", cfg.Type)
	}
}
