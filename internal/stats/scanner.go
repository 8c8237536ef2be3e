// Package stats computes corpus statistics by scanning the whole vector collection.
package stats

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/vector"
)

const (
	// DefaultPageSize is the number of points fetched per scroll request.
	DefaultPageSize = 1000
	// MaxSamples bounds the sample file list.
	MaxSamples = 10
)

// Scanner aggregates file and chunk counts over a collection.
type Scanner struct {
	storeCfg config.StoreConfig
	store    vector.Store
	pageSize int
	logger   *zap.Logger
}

// NewScanner creates a scanner. store may be nil when storeCfg is incomplete;
// Scan then reports the configuration error in the result.
func NewScanner(storeCfg config.StoreConfig, store vector.Store, pageSize int, logger *zap.Logger) *Scanner {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{storeCfg: storeCfg, store: store, pageSize: pageSize, logger: logger}
}

// Scan pages through the entire collection holding one page in memory at a time.
// It never returns partial counts: on any failure only Error is set.
// A collection that does not exist yet counts as empty.
func (s *Scanner) Scan(ctx context.Context) *models.CorpusStats {
	if err := s.storeCfg.Validate(); err != nil {
		return &models.CorpusStats{Error: err.Error()}
	}
	if s.store == nil {
		return &models.CorpusStats{Error: fmt.Sprintf("%v: vector store not initialized", config.ErrMissingStoreConfig)}
	}

	files := make(map[string]struct{})
	byType := make(map[string]int)
	total := 0
	for page, err := range vector.Pages(ctx, s.store, s.pageSize) {
		if errors.Is(err, vector.ErrCollectionNotFound) {
			s.logger.Debug("collection not found, reporting empty corpus", zap.String("collection", s.store.Collection()))
			return emptyStats()
		}
		if err != nil {
			s.logger.Error("corpus scan failed", zap.Error(err))
			return &models.CorpusStats{Error: err.Error()}
		}
		for _, p := range page.Points {
			total++
			name, docType := describe(p.Payload)
			if name != "" {
				files[name] = struct{}{}
			}
			byType[string(docType)]++
		}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	samples := names
	if len(samples) > MaxSamples {
		samples = samples[:MaxSamples]
	}
	return &models.CorpusStats{
		TotalFiles:  len(names),
		TotalChunks: total,
		ByType:      byType,
		Samples:     samples,
	}
}

func emptyStats() *models.CorpusStats {
	return &models.CorpusStats{ByType: map[string]int{}, Samples: []string{}}
}

// describe returns the file name and doc type of a point from either payload layout.
// The doc type is inferred from the extension when the payload lacks it.
func describe(payload map[string]any) (string, models.DocType) {
	meta := vector.PayloadMetadata(payload)
	name := vector.String(meta, "file_name")
	if name == "" {
		if src := vector.String(meta, "source"); src != "" {
			name = filepath.Base(src)
		}
	}
	if dt := vector.String(meta, "doc_type"); dt != "" {
		return name, models.DocType(dt)
	}
	return name, models.DocTypeForPath(name)
}
