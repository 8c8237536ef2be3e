package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ChunkerType selects the chunking strategy.
type ChunkerType string

const (
	ChunkerRecursive ChunkerType = "recursive"
	ChunkerSemantic  ChunkerType = "semantic"
)

// Bounds and defaults for caller-supplied chunking parameters.
const (
	MinChunkSize        = 100
	MaxChunkSize        = 5000
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

var (
	// ErrInvalidParams is returned when chunking parameters are out of range.
	ErrInvalidParams = errors.New("invalid chunking parameters")
	// ErrUnsupportedExtension is returned for files outside AllowedExtensions.
	ErrUnsupportedExtension = errors.New("unsupported file type")
)

// AllowedExtensions is the set of file extensions accepted for ingestion.
var AllowedExtensions = []string{".pdf", ".docx", ".doc", ".txt", ".md", ".rst"}

// CheckExtension returns ErrUnsupportedExtension unless name has an allowed extension.
func CheckExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w %q: allowed %s", ErrUnsupportedExtension, ext, strings.Join(AllowedExtensions, ", "))
}

// ChunkParams are the per-ingestion chunking parameters.
type ChunkParams struct {
	ChunkerType  ChunkerType `json:"chunker_type"`
	ChunkSize    int         `json:"chunk_size"`
	ChunkOverlap int         `json:"chunk_overlap"`
}

// DefaultChunkParams returns recursive chunking with the default size and overlap.
func DefaultChunkParams() ChunkParams {
	return ChunkParams{
		ChunkerType:  ChunkerRecursive,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Validate checks the chunker type, the size range, and that overlap is in [0, size).
// An empty chunker type is normalized to recursive.
func (p *ChunkParams) Validate() error {
	if p.ChunkerType == "" {
		p.ChunkerType = ChunkerRecursive
	}
	if p.ChunkerType != ChunkerRecursive && p.ChunkerType != ChunkerSemantic {
		return fmt.Errorf("%w: chunker_type must be %q or %q, got %q",
			ErrInvalidParams, ChunkerRecursive, ChunkerSemantic, p.ChunkerType)
	}
	if p.ChunkSize < MinChunkSize || p.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk_size must be between %d and %d, got %d",
			ErrInvalidParams, MinChunkSize, MaxChunkSize, p.ChunkSize)
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be >= 0 and < chunk_size, got %d",
			ErrInvalidParams, p.ChunkOverlap)
	}
	return nil
}
