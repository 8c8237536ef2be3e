// Package indexer splits loaded documents into chunks and upserts them into the vector store.
package indexer

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/models"
)

// Splitter splits the text of one page into chunk contents.
type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// RecursiveSplitter splits on paragraph, line, and word boundaries, keeping chunks
// within size characters and repeating up to overlap characters between neighbours.
type RecursiveSplitter struct {
	splitter textsplitter.RecursiveCharacter
}

// NewRecursiveSplitter creates a recursive splitter. Sizes are measured in runes.
func NewRecursiveSplitter(size, overlap int) *RecursiveSplitter {
	return &RecursiveSplitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

// Split implements Splitter. Blank chunks are dropped.
func (s *RecursiveSplitter) Split(_ context.Context, text string) ([]string, error) {
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// ChunkSet is the result of splitting one document: raw chunks in document order and
// the strategy that actually produced them.
type ChunkSet struct {
	Chunks   []models.RawChunk
	Strategy models.ChunkerType
}

// Chunker turns document pages into raw chunks using the requested strategy.
type Chunker struct {
	semantic *SemanticSplitter
	logger   *zap.Logger
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithSemanticSplitter enables the semantic strategy. Without it semantic requests
// fall back to recursive splitting.
func WithSemanticSplitter(s *SemanticSplitter) ChunkerOption {
	return func(c *Chunker) { c.semantic = s }
}

// WithChunkerLogger sets the logger used to report fallbacks.
func WithChunkerLogger(l *zap.Logger) ChunkerOption {
	return func(c *Chunker) { c.logger = l }
}

// NewChunker creates a chunker.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits every page of doc. params must already be validated.
// A failed semantic split falls back to recursive splitting with the same size and
// overlap and is logged; only cancellation and recursive failures are returned.
func (c *Chunker) Chunk(ctx context.Context, doc *models.Document, params models.ChunkParams) (ChunkSet, error) {
	if params.ChunkerType == models.ChunkerSemantic {
		set, err := c.splitPages(ctx, doc.Pages, c.semanticSplitter(), models.ChunkerSemantic)
		if err == nil {
			return set, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ChunkSet{}, ctxErr
		}
		c.logger.Warn("semantic chunking failed, falling back to recursive",
			zap.String("source", doc.Source),
			zap.Int("chunk_size", params.ChunkSize),
			zap.Int("chunk_overlap", params.ChunkOverlap),
			zap.Error(err))
	}
	splitter := NewRecursiveSplitter(params.ChunkSize, params.ChunkOverlap)
	return c.splitPages(ctx, doc.Pages, splitter, models.ChunkerRecursive)
}

func (c *Chunker) semanticSplitter() Splitter {
	if c.semantic == nil {
		return unavailableSplitter{}
	}
	return c.semantic
}

func (c *Chunker) splitPages(ctx context.Context, pages []models.Page, s Splitter, strategy models.ChunkerType) (ChunkSet, error) {
	set := ChunkSet{Strategy: strategy}
	for _, page := range pages {
		text := Preprocess(page.Text)
		if text == "" {
			continue
		}
		parts, err := s.Split(ctx, text)
		if err != nil {
			return ChunkSet{}, err
		}
		for _, p := range parts {
			set.Chunks = append(set.Chunks, models.RawChunk{
				Content: p,
				Page:    page.Number,
				HasPage: page.HasNumber,
			})
		}
	}
	return set, nil
}

type unavailableSplitter struct{}

func (unavailableSplitter) Split(context.Context, string) ([]string, error) {
	return nil, ErrSemanticUnavailable
}
