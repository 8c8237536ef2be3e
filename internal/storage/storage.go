// Package storage persists the ingestion ledger: which points each ingestion run wrote.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kiku/internal/models"
)

// IngestionRecord is one successful ingestion of a source document.
type IngestionRecord struct {
	ID           int64              `json:"id"`
	Source       string             `json:"source"`
	FileName     string             `json:"file_name"`
	DocType      models.DocType     `json:"doc_type"`
	Collection   string             `json:"collection"`
	ChunkerType  models.ChunkerType `json:"chunker_type"`
	ChunkSize    int                `json:"chunk_size"`
	ChunkOverlap int                `json:"chunk_overlap"`
	Chunks       int                `json:"chunks"`
	PointIDs     []string           `json:"-"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Ledger records ingestion runs and reports points that later runs no longer write.
type Ledger interface {
	RecordIngestion(ctx context.Context, rec *IngestionRecord) error
	// ListIngestions returns runs newest first; an empty source lists every source.
	ListIngestions(ctx context.Context, source string, limit int) ([]*IngestionRecord, error)
	// Sources returns every recorded source path in order.
	Sources(ctx context.Context) ([]string, error)
	// Orphans returns point ids written by earlier runs of source into the same
	// collection that its latest run did not rewrite. Nothing is deleted.
	Orphans(ctx context.Context, source string) ([]string, error)
	Close() error
}
