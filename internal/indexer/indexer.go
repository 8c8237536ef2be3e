package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/extract"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
)

// ErrNoChunks is returned when a document produced no chunks.
var ErrNoChunks = errors.New("document produced no chunks")

// Indexer loads, chunks, embeds, and upserts documents into the vector store.
type Indexer struct {
	storeCfg    config.StoreConfig
	store       vector.Store
	embedder    embedding.Embedder
	embedModel  string
	extractor   *extract.Extractor
	chunker     *Chunker
	ledger      storage.Ledger
	concurrency int
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithLedger records every successful ingestion in l.
func WithLedger(l storage.Ledger) IndexerOption {
	return func(idx *Indexer) { idx.ledger = l }
}

// WithConcurrency bounds the number of files ingested in parallel by IngestDirectory.
func WithConcurrency(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// WithEmbeddingModel sets the model name reported in results.
func WithEmbeddingModel(model string) IndexerOption {
	return func(idx *Indexer) { idx.embedModel = model }
}

// NewIndexer creates an indexer. store may be nil when storeCfg is incomplete; every
// ingestion then fails with config.ErrMissingStoreConfig before touching the document.
func NewIndexer(storeCfg config.StoreConfig, store vector.Store, embedder embedding.Embedder, chunker *Chunker, opts ...IndexerOption) *Indexer {
	if chunker == nil {
		chunker = NewChunker()
	}
	idx := &Indexer{
		storeCfg:    storeCfg,
		store:       store,
		embedder:    embedder,
		extractor:   extract.NewExtractor(),
		chunker:     chunker,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Check validates an ingestion request before any document is read: chunk
// parameters, the file extension of name, then the store configuration.
func (idx *Indexer) Check(name string, params *models.ChunkParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := models.CheckExtension(name); err != nil {
		return err
	}
	return idx.checkStore()
}

func (idx *Indexer) checkStore() error {
	if err := idx.storeCfg.Validate(); err != nil {
		return err
	}
	if idx.store == nil {
		return fmt.Errorf("%w: vector store not initialized", config.ErrMissingStoreConfig)
	}
	return nil
}

// ProcessFile loads path and returns its enriched chunks. Loader and chunker failures
// are logged and returned; a document without text yields ErrNoChunks.
func (idx *Indexer) ProcessFile(ctx context.Context, path string, params models.ChunkParams) ([]models.Chunk, error) {
	doc, err := idx.extractor.Load(path)
	if err != nil {
		idx.logger.Warn("document load failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	set, err := idx.chunker.Chunk(ctx, doc, params)
	if err != nil {
		idx.logger.Warn("document chunking failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("chunk %s: %w", filepath.Base(path), err)
	}
	if len(set.Chunks) == 0 {
		idx.logger.Warn("document produced no chunks", zap.String("path", path))
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoChunks)
	}
	chunks := Enrich(doc.Source, set.Chunks, set.Strategy, params)
	idx.logger.Debug("document chunked",
		zap.String("source", doc.Source),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("chunks", len(chunks)),
		zap.String("strategy", string(set.Strategy)))
	return chunks, nil
}

// Ingest embeds chunks and upserts them, creating the collection when missing.
// Only store configuration errors are returned as errors; embedding and store
// failures become a result with Success false and nothing reported as processed.
func (idx *Indexer) Ingest(ctx context.Context, chunks []models.Chunk) (*models.IngestResult, error) {
	if err := idx.checkStore(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return idx.failure(fmt.Errorf("embed chunks: %w", err)), nil
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return idx.failure(fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))), nil
	}
	if err := idx.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return idx.failure(fmt.Errorf("ensure collection: %w", err)), nil
	}

	points := make([]vector.Point, len(chunks))
	for i, ch := range chunks {
		points[i] = vector.Point{
			ID:      ch.ID,
			Vector:  vectors[i],
			Payload: vector.NewPayload(ch.Content, ch.Metadata.Map()),
		}
	}
	if err := idx.store.Upsert(ctx, points); err != nil {
		return idx.failure(fmt.Errorf("upsert points: %w", err)), nil
	}

	idx.record(ctx, chunks)
	idx.logger.Info("ingestion complete",
		zap.String("collection", idx.store.Collection()),
		zap.String("source", chunks[0].Metadata.Source),
		zap.Int("chunks", len(chunks)))
	return &models.IngestResult{
		Success:            true,
		DocumentsProcessed: len(chunks),
		ChunksCreated:      len(chunks),
		EmbeddingModel:     idx.embedModel,
		Collection:         idx.store.Collection(),
	}, nil
}

func (idx *Indexer) failure(err error) *models.IngestResult {
	idx.logger.Error("ingestion failed", zap.String("collection", idx.store.Collection()), zap.Error(err))
	return &models.IngestResult{
		Success:        false,
		EmbeddingModel: idx.embedModel,
		Collection:     idx.store.Collection(),
		Error:          err.Error(),
	}
}

// record writes one ledger entry per source. Ledger errors are logged only.
func (idx *Indexer) record(ctx context.Context, chunks []models.Chunk) {
	if idx.ledger == nil {
		return
	}
	var order []string
	bySource := make(map[string]*storage.IngestionRecord)
	for _, ch := range chunks {
		m := ch.Metadata
		rec, ok := bySource[m.Source]
		if !ok {
			rec = &storage.IngestionRecord{
				Source:       m.Source,
				FileName:     m.FileName,
				DocType:      m.DocType,
				Collection:   idx.store.Collection(),
				ChunkerType:  m.ChunkerType,
				ChunkSize:    m.ChunkSize,
				ChunkOverlap: m.ChunkOverlap,
			}
			bySource[m.Source] = rec
			order = append(order, m.Source)
		}
		rec.Chunks++
		rec.PointIDs = append(rec.PointIDs, ch.ID)
	}
	for _, src := range order {
		if err := idx.ledger.RecordIngestion(ctx, bySource[src]); err != nil {
			idx.logger.Warn("ledger record failed", zap.String("source", src), zap.Error(err))
		}
	}
}

// IngestFile runs Check, ProcessFile, and Ingest for one file.
func (idx *Indexer) IngestFile(ctx context.Context, path string, params models.ChunkParams) (*models.IngestResult, error) {
	if err := idx.Check(path, &params); err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	chunks, err := idx.ProcessFile(ctx, absPath, params)
	if err != nil {
		return nil, err
	}
	return idx.Ingest(ctx, chunks)
}

// CollectFiles walks dir recursively and returns, in lexical order, the regular files
// with an allowed extension matching any of patterns. A pattern matches the path
// relative to dir or the base name, ignoring case; "**" spans directories.
func CollectFiles(dir string, patterns []string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(filepath.ToSlash(p))
		if !doublestar.ValidatePattern(lowered[i]) {
			return nil, fmt.Errorf("bad pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	var files []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() || models.CheckExtension(path) != nil {
			return nil
		}
		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			return err
		}
		if matchAny(rel, lowered) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absDir, err)
	}
	return files, nil
}

func matchAny(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	rel = strings.ToLower(filepath.ToSlash(rel))
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}

// IngestDirectory ingests every file CollectFiles finds, each as its own
// all-or-nothing invocation, up to the configured concurrency at a time.
// onFile, when non-nil, is called once per file, never concurrently.
// A store configuration error aborts the run; other failures are reported per file.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, patterns []string, params models.ChunkParams, onFile func(*models.FileOutcome)) (*models.DirectoryResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := idx.checkStore(); err != nil {
		return nil, err
	}
	files, err := CollectFiles(dir, patterns)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*models.FileOutcome, len(files))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	for i, path := range files {
		g.Go(func() error {
			out := &models.FileOutcome{Path: path}
			result, err := idx.IngestFile(gctx, path, params)
			switch {
			case errors.Is(err, config.ErrMissingStoreConfig):
				return err
			case err != nil:
				out.Error = err.Error()
			case !result.Success:
				out.Result = result
				out.Error = result.Error
			default:
				out.Result = result
				out.Chunks = result.ChunksCreated
			}
			outcomes[i] = out
			if onFile != nil {
				mu.Lock()
				onFile(out)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &models.DirectoryResult{Files: len(files), Outcomes: outcomes}
	for _, out := range outcomes {
		if out.Error != "" {
			res.Failed++
			continue
		}
		res.Succeeded++
		res.Chunks += out.Chunks
	}
	idx.logger.Info("directory ingestion complete",
		zap.String("dir", dir),
		zap.Int("files", res.Files),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("chunks", res.Chunks))
	return res, nil
}
