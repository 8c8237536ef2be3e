package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kiku/internal/config"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vectors.db"), "docs")
	require.NoError(t, err)

	srv := newFakeQdrant(t, "secret")
	t.Cleanup(srv.Close)

	stores := map[string]Store{
		"memory": NewMemoryStore("docs"),
		"sqlite": sqliteStore,
		"qdrant": NewQdrantStore(QdrantConfig{URL: srv.URL + "/", APIKey: "secret", Collection: "docs"}),
	}
	for _, s := range stores {
		t.Cleanup(func() { _ = s.Close() })
	}
	return stores
}

func pointID5(i int) string {
	return fmt.Sprintf("00000000-0000-5000-8000-%012d", i)
}

func testPoints() []Point {
	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.5, 0.5, 0},
	}
	points := make([]Point, len(vecs))
	for i, v := range vecs {
		points[i] = Point{
			ID:     pointID5(i),
			Vector: v,
			Payload: NewPayload(fmt.Sprintf("chunk %d", i), map[string]any{
				"file_name":   fmt.Sprintf("doc%d.pdf", i%2),
				"chunk_index": i,
			}),
		}
	}
	return points
}

func TestStores(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Equal(t, "docs", s.Collection())

			info, err := s.Info(ctx)
			require.NoError(t, err)
			assert.False(t, info.Exists)

			_, err = s.Search(ctx, SearchRequest{Vector: []float32{1, 0, 0}, Limit: 1})
			assert.ErrorIs(t, err, ErrCollectionNotFound)

			require.NoError(t, s.EnsureCollection(ctx, 3))
			require.NoError(t, s.EnsureCollection(ctx, 3))
			assert.ErrorIs(t, s.EnsureCollection(ctx, 4), ErrDimensionMismatch)

			require.NoError(t, s.Upsert(ctx, testPoints()))
			// Re-upserting the same ids overwrites rather than grows.
			again := testPoints()
			again[0].Payload = NewPayload("rewritten", map[string]any{"file_name": "doc0.pdf"})
			require.NoError(t, s.Upsert(ctx, again))

			info, err = s.Info(ctx)
			require.NoError(t, err)
			assert.True(t, info.Exists)
			assert.Equal(t, 5, info.Points)
			assert.Equal(t, 3, info.VectorSize)
			assert.Equal(t, "Cosine", info.Distance)

			hits, err := s.Search(ctx, SearchRequest{Vector: []float32{1, 0, 0}, Limit: 2, WithVectors: true})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, pointID5(0), hits[0].ID)
			assert.Equal(t, pointID5(1), hits[1].ID)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
			assert.Equal(t, []float32{1, 0, 0}, hits[0].Vector)
			assert.Equal(t, "rewritten", PayloadContent(hits[0].Payload))
			assert.Equal(t, "doc0.pdf", String(PayloadMetadata(hits[0].Payload), "file_name"))

			hits, err = s.Search(ctx, SearchRequest{Vector: []float32{1, 0, 0}, Limit: 10, ScoreThreshold: 0.9})
			require.NoError(t, err)
			assert.Len(t, hits, 2)

			seen := map[string]bool{}
			pages := 0
			for page, err := range Pages(ctx, s, 2) {
				require.NoError(t, err)
				pages++
				for _, p := range page.Points {
					assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
					seen[p.ID] = true
					assert.Nil(t, p.Vector)
				}
			}
			assert.Equal(t, 3, pages)
			assert.Len(t, seen, 5)

			assert.Error(t, s.Upsert(ctx, []Point{{ID: pointID5(9), Vector: []float32{1, 0}}}))
		})
	}
}

func TestPages_stopsEarly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("c")
	require.NoError(t, s.EnsureCollection(ctx, 3))
	require.NoError(t, s.Upsert(ctx, testPoints()))

	pages := 0
	for _, err := range Pages(ctx, s, 1) {
		require.NoError(t, err)
		pages++
		if pages == 2 {
			break
		}
	}
	assert.Equal(t, 2, pages)
}

func TestPages_emptyAndMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("c")

	var errs []error
	for _, err := range Pages(ctx, s, 10) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCollectionNotFound)

	require.NoError(t, s.EnsureCollection(ctx, 3))
	count := 0
	for range Pages(ctx, s, 10) {
		count++
	}
	assert.Zero(t, count)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(config.StoreConfig{Type: config.StoreMemory, Collection: "c"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(config.StoreConfig{Type: config.StoreSQLite, Collection: "c", Path: filepath.Join(t.TempDir(), "v.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = NewStore(config.StoreConfig{Type: config.StoreQdrant, URL: "http://localhost:6333", APIKey: "k", Collection: "c"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &QdrantStore{}, s)

	_, err = NewStore(config.StoreConfig{Type: config.StoreQdrant, Collection: "c"}, nil)
	assert.ErrorIs(t, err, config.ErrMissingStoreConfig)
}

func TestQdrantStore_rejectsBadKey(t *testing.T) {
	srv := newFakeQdrant(t, "secret")
	defer srv.Close()
	s := NewQdrantStore(QdrantConfig{URL: srv.URL, APIKey: "wrong", Collection: "docs"})
	err := s.EnsureCollection(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
