package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process collection using brute-force cosine search.
// Suitable for tests and small, ephemeral corpora.
type MemoryStore struct {
	collection string
	dimensions int
	created    bool
	points     map[string]Point
	mu         sync.RWMutex
}

// NewMemoryStore returns an empty store for the named collection.
func NewMemoryStore(collection string) *MemoryStore {
	return &MemoryStore{
		collection: collection,
		points:     make(map[string]Point),
	}
}

// Collection returns the collection name.
func (m *MemoryStore) Collection() string {
	return m.collection
}

// EnsureCollection creates the collection on first use and checks the size afterwards.
func (m *MemoryStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		m.dimensions = dimensions
		m.created = true
		return nil
	}
	if m.dimensions != dimensions {
		return fmt.Errorf("%w: collection %q has size %d, got %d", ErrDimensionMismatch, m.collection, m.dimensions, dimensions)
	}
	return nil
}

// Upsert stores copies of the points, replacing existing ids.
func (m *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, m.collection)
	}
	for _, p := range points {
		if len(p.Vector) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(p.Vector), m.dimensions)
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		m.points[p.ID] = Point{ID: p.ID, Vector: vec, Payload: p.Payload}
	}
	return nil
}

// Search returns up to req.Limit points by descending cosine similarity.
func (m *MemoryStore) Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, m.collection)
	}
	if len(req.Vector) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(req.Vector), m.dimensions)
	}
	if req.Limit <= 0 {
		return nil, nil
	}
	hits := make([]ScoredPoint, 0, len(m.points))
	for _, p := range m.points {
		score := CosineSimilarity(req.Vector, p.Vector)
		if req.ScoreThreshold != 0 && score < req.ScoreThreshold {
			continue
		}
		hit := ScoredPoint{ID: p.ID, Score: score, Payload: p.Payload}
		if req.WithVectors {
			hit.Vector = p.Vector
		}
		hits = append(hits, hit)
	}
	sortHits(hits)
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// Scroll returns points in id order. The cursor is the first id of the next page.
func (m *MemoryStore) Scroll(ctx context.Context, cursor Cursor, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, m.collection)
	}
	ids := make([]string, 0, len(m.points))
	for id := range m.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := sort.SearchStrings(ids, string(cursor))
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := &Page{Points: make([]Point, 0, end-start)}
	for _, id := range ids[start:end] {
		p := m.points[id]
		page.Points = append(page.Points, Point{ID: p.ID, Payload: p.Payload})
	}
	if end < len(ids) {
		page.Next = Cursor(ids[end])
	}
	return page, nil
}

// Info describes the collection.
func (m *MemoryStore) Info(ctx context.Context) (*CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &CollectionInfo{
		Name:       m.collection,
		Exists:     m.created,
		Points:     len(m.points),
		VectorSize: m.dimensions,
		Distance:   "Cosine",
	}, nil
}

// Size returns the number of stored points.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

// sortHits orders by score descending, then id for a stable result.
func sortHits(hits []ScoredPoint) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
