// Package vector stores chunk vectors in named collections and searches them.
package vector

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrCollectionNotFound is returned when the target collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch is returned when a vector does not match the collection size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Point is one stored entry: a unique id, its vector, and its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit. Vector is only set when requested.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
	Vector  []float32
}

// SearchRequest is a nearest-neighbour query. A zero ScoreThreshold disables filtering.
type SearchRequest struct {
	Vector         []float32
	Limit          int
	WithVectors    bool
	ScoreThreshold float64
}

// Cursor is an opaque scroll position. The empty cursor starts a scan.
type Cursor string

// Page is one scroll result. An empty Next means the scan is complete.
type Page struct {
	Points []Point
	Next   Cursor
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	Exists     bool   `json:"exists"`
	Points     int    `json:"points"`
	VectorSize int    `json:"vector_size"`
	Distance   string `json:"distance"`
}

// Store is a vector collection supporting upsert by id, similarity search, and scroll.
// Implementations are safe for concurrent use.
type Store interface {
	Collection() string
	// EnsureCollection creates the collection with cosine distance if it does not exist.
	EnsureCollection(ctx context.Context, dimensions int) error
	// Upsert inserts points, overwriting vector and payload of existing ids.
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error)
	// Scroll returns up to limit points in id order starting at cursor. Vectors are not loaded.
	Scroll(ctx context.Context, cursor Cursor, limit int) (*Page, error)
	Info(ctx context.Context) (*CollectionInfo, error)
	Close() error
}

// Pages lazily scrolls through the whole collection, one page at a time.
// The sequence stops after the last page, on an empty page, or after yielding an error.
func Pages(ctx context.Context, s Store, size int) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		var cursor Cursor
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := s.Scroll(ctx, cursor, size)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page.Points) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if page.Next == "" {
				return
			}
			cursor = page.Next
		}
	}
}
