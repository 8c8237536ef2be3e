package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/fileid"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/stats"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
)

var memoryStoreConfig = config.StoreConfig{Type: config.StoreMemory, Collection: "kb"}

func newTestIndexer(t *testing.T, opts ...IndexerOption) (*Indexer, *vector.MemoryStore) {
	t.Helper()
	store := vector.NewMemoryStore("kb")
	embedder := embedding.NewMockEmbedder(64)
	idx := NewIndexer(memoryStoreConfig, store, embedder, NewChunker(), opts...)
	return idx, store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func smallParams() models.ChunkParams {
	return models.ChunkParams{ChunkerType: models.ChunkerRecursive, ChunkSize: 200, ChunkOverlap: 30}
}

func TestEnrich(t *testing.T) {
	raw := []models.RawChunk{
		{Content: "alpha", Page: 0, HasPage: true},
		{Content: "beta", Page: 0, HasPage: true},
		{Content: "gamma", Page: 1, HasPage: true},
	}
	params := models.DefaultChunkParams()
	chunks := Enrich("/docs/Report.PDF", raw, models.ChunkerRecursive, params)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		m := ch.Metadata
		assert.Equal(t, i, m.ChunkIndex)
		assert.Equal(t, "/docs/Report.PDF", m.Source)
		assert.Equal(t, "Report.PDF", m.FileName)
		assert.Equal(t, ".pdf", m.FileExt)
		assert.Equal(t, models.DocTypePDF, m.DocType)
		assert.Equal(t, models.ChunkerRecursive, m.ChunkerType)
		assert.Equal(t, 1000, m.ChunkSize)
		assert.Equal(t, 150, m.ChunkOverlap)
		assert.Equal(t, fileid.ChunkID(m.Source, m.Page, i, ch.Content), ch.ID)
	}
	assert.Equal(t, 1, chunks[2].Metadata.Page)

	again := Enrich("/docs/Report.PDF", raw, models.ChunkerRecursive, params)
	assert.Equal(t, chunks, again, "enrichment is deterministic")

	noPage := Enrich("/docs/notes.md", []models.RawChunk{{Content: "x"}}, models.ChunkerSemantic, params)
	assert.Equal(t, 0, noPage[0].Metadata.Page)
	assert.Equal(t, models.DocTypeText, noPage[0].Metadata.DocType)
}

func TestProcessFile_ChunkIndexContiguous(t *testing.T) {
	idx, _ := newTestIndexer(t)
	path := writeFile(t, t.TempDir(), "notes.txt", longText(5, 4))

	chunks, err := idx.ProcessFile(context.Background(), path, smallParams())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)
	seen := map[string]bool{}
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, path, ch.Metadata.Source)
		assert.False(t, seen[ch.ID], "duplicate id %s", ch.ID)
		seen[ch.ID] = true
	}
}

func TestProcessFile_Failures(t *testing.T) {
	idx, _ := newTestIndexer(t)
	dir := t.TempDir()

	_, err := idx.ProcessFile(context.Background(), writeFile(t, dir, "empty.txt", " \n\n "), smallParams())
	assert.ErrorIs(t, err, ErrNoChunks)

	_, err = idx.ProcessFile(context.Background(), writeFile(t, dir, "broken.pdf", "not a pdf"), smallParams())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoChunks)
}

func TestIngestFile_Idempotent(t *testing.T) {
	idx, store := newTestIndexer(t, WithEmbeddingModel("mock"))
	path := writeFile(t, t.TempDir(), "guide.md", longText(4, 4))
	ctx := context.Background()

	first, err := idx.IngestFile(ctx, path, smallParams())
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Positive(t, first.DocumentsProcessed)
	assert.Equal(t, first.DocumentsProcessed, first.ChunksCreated)
	assert.Equal(t, "kb", first.Collection)
	assert.Equal(t, "mock", first.EmbeddingModel)
	assert.Equal(t, first.ChunksCreated, store.Size())

	second, err := idx.IngestFile(ctx, path, smallParams())
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, first.ChunksCreated, store.Size(), "re-ingestion must not grow the collection")

	page, err := store.Scroll(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, page.Points, 1)
	payload := page.Points[0].Payload
	assert.NotEmpty(t, vector.PayloadContent(payload))
	meta := vector.PayloadMetadata(payload)
	assert.Equal(t, "guide.md", vector.String(meta, "file_name"))
	assert.Equal(t, "text", vector.String(meta, "doc_type"))
}

func TestIngestFile_PDFThenScan(t *testing.T) {
	idx, store := newTestIndexer(t)
	fixture, err := os.ReadFile(filepath.Join("..", "extract", "testdata", "three_pages.pdf"))
	require.NoError(t, err)
	path := writeFile(t, t.TempDir(), "manual.pdf", string(fixture))
	ctx := context.Background()
	params := models.DefaultChunkParams()

	chunks, err := idx.ProcessFile(ctx, path, params)
	require.NoError(t, err)
	pages := map[int]bool{}
	prev := 0
	for i, ch := range chunks {
		m := ch.Metadata
		assert.Equal(t, i, m.ChunkIndex)
		assert.Equal(t, models.DocTypePDF, m.DocType)
		assert.GreaterOrEqual(t, m.Page, prev, "chunks follow page order")
		prev = m.Page
		pages[m.Page] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, pages)

	res, err := idx.IngestFile(ctx, path, params)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, len(chunks), res.ChunksCreated)
	assert.Equal(t, len(chunks), store.Size())

	_, err = idx.IngestFile(ctx, path, params)
	require.NoError(t, err)
	assert.Equal(t, len(chunks), store.Size(), "re-ingestion keeps the point count")

	got := stats.NewScanner(memoryStoreConfig, store, 0, zap.NewNop()).Scan(ctx)
	assert.Empty(t, got.Error)
	assert.Equal(t, 1, got.TotalFiles)
	assert.Equal(t, map[string]int{"pdf": len(chunks)}, got.ByType)
}

func TestIngestFile_ValidationBeforeLoad(t *testing.T) {
	idx, store := newTestIndexer(t)
	missing := filepath.Join(t.TempDir(), "never-created.pdf")

	_, err := idx.IngestFile(context.Background(), missing,
		models.ChunkParams{ChunkerType: models.ChunkerRecursive, ChunkSize: 150, ChunkOverlap: 200})
	assert.ErrorIs(t, err, models.ErrInvalidParams)

	_, err = idx.IngestFile(context.Background(), filepath.Join(t.TempDir(), "sheet.xlsx"), smallParams())
	assert.ErrorIs(t, err, models.ErrUnsupportedExtension)
	assert.Zero(t, store.Size())
}

func TestIngestFile_MissingStoreConfig(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	idx := NewIndexer(config.StoreConfig{Type: config.StoreQdrant, Collection: "kb"}, nil, embedder, nil)
	missing := filepath.Join(t.TempDir(), "never-created.pdf")

	_, err := idx.IngestFile(context.Background(), missing, smallParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingStoreConfig)
	assert.Contains(t, err.Error(), "QDRANT_URL")
	assert.Zero(t, embedder.Calls())

	_, err = idx.Ingest(context.Background(), []models.Chunk{{ID: "x", Content: "y"}})
	assert.ErrorIs(t, err, config.ErrMissingStoreConfig)
}

func TestIngest_FailureResult(t *testing.T) {
	store := vector.NewMemoryStore("kb")
	idx := NewIndexer(memoryStoreConfig, store, failingEmbedder{err: errors.New("quota exceeded")}, nil)
	chunks := Enrich("/docs/a.txt", []models.RawChunk{{Content: "hello"}}, models.ChunkerRecursive, smallParams())

	res, err := idx.Ingest(context.Background(), chunks)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.DocumentsProcessed)
	assert.Contains(t, res.Error, "quota exceeded")
	assert.Zero(t, store.Size())

	_, err = idx.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoChunks)
}

func TestIngest_DimensionMismatch(t *testing.T) {
	store := vector.NewMemoryStore("kb")
	require.NoError(t, store.EnsureCollection(context.Background(), 8))
	idx := NewIndexer(memoryStoreConfig, store, embedding.NewMockEmbedder(16), nil)
	chunks := Enrich("/docs/a.txt", []models.RawChunk{{Content: "hello"}}, models.ChunkerRecursive, smallParams())

	res, err := idx.Ingest(context.Background(), chunks)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestIngestDirectory(t *testing.T) {
	idx, store := newTestIndexer(t, WithConcurrency(3))
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", longText(2, 3))
	writeFile(t, dir, "sub/b.txt", longText(1, 2))
	writeFile(t, dir, "sub/empty.txt", "   ")
	writeFile(t, dir, "c.md", "not matched by the patterns")
	writeFile(t, dir, "d.xlsx", "never allowed")

	var seen []string
	res, err := idx.IngestDirectory(context.Background(), dir, []string{"*.txt", "*.xlsx"}, smallParams(),
		func(out *models.FileOutcome) { seen = append(seen, filepath.Base(out.Path)) })
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, store.Size(), res.Chunks)
	sort.Strings(seen)
	assert.Equal(t, []string{"a.txt", "b.txt", "empty.txt"}, seen)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, "a.txt", filepath.Base(res.Outcomes[0].Path))
	for _, out := range res.Outcomes {
		if filepath.Base(out.Path) == "empty.txt" {
			assert.Contains(t, out.Error, ErrNoChunks.Error())
		}
	}
}

func TestIngestDirectory_Preconditions(t *testing.T) {
	idx, _ := newTestIndexer(t)
	_, err := idx.IngestDirectory(context.Background(), t.TempDir(), nil,
		models.ChunkParams{ChunkSize: 10}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidParams)

	noStore := NewIndexer(config.StoreConfig{Type: config.StoreQdrant}, nil, embedding.NewMockEmbedder(8), nil)
	_, err = noStore.IngestDirectory(context.Background(), t.TempDir(), nil, smallParams(), nil)
	assert.ErrorIs(t, err, config.ErrMissingStoreConfig)

	_, err = idx.IngestDirectory(context.Background(), t.TempDir(), []string{"[bad"}, smallParams(), nil)
	assert.Error(t, err)
}

func TestIngest_RecordsLedger(t *testing.T) {
	ledger, err := storage.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer ledger.Close()
	idx, _ := newTestIndexer(t, WithLedger(ledger))
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.txt", longText(3, 3))
	ctx := context.Background()

	first, err := idx.IngestFile(ctx, path, smallParams())
	require.NoError(t, err)
	_, err = idx.IngestFile(ctx, path, smallParams())
	require.NoError(t, err)

	runs, err := ledger.ListIngestions(ctx, path, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.ChunksCreated, runs[0].Chunks)
	assert.Equal(t, "kb", runs[0].Collection)

	orphans, err := ledger.Orphans(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	// Appending text changes the last chunk's length, so its old id is orphaned.
	writeFile(t, dir, "doc.txt", longText(3, 3)+" Extra.")
	_, err = idx.IngestFile(ctx, path, smallParams())
	require.NoError(t, err)
	orphans, err = ledger.Orphans(ctx, path)
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.PDF", "x")
	writeFile(t, dir, "a.txt", "x")
	writeFile(t, dir, "z/c.docx", "x")
	writeFile(t, dir, "z/d.png", "x")

	files, err := CollectFiles(dir, []string{"*.pdf", "*.txt", "*.docx"})
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"a.txt", "b.PDF", "c.docx"}, names)

	all, err := CollectFiles(dir, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3, "unsupported extensions are never collected")

	nested, err := CollectFiles(dir, []string{"z/**/*.docx"})
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, "c.docx", filepath.Base(nested[0]))
}
