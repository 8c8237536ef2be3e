package indexer

import (
	"path/filepath"
	"strings"

	"github.com/hyperjump/kiku/internal/fileid"
	"github.com/hyperjump/kiku/internal/models"
)

// Enrich attaches provenance and a stable id to each raw chunk of one document.
// chunk_index is the 0-based position in raw; page is 0 when the loader had none.
func Enrich(source string, raw []models.RawChunk, strategy models.ChunkerType, params models.ChunkParams) []models.Chunk {
	ext := strings.ToLower(filepath.Ext(source))
	base := models.ChunkMetadata{
		Source:       source,
		FileName:     filepath.Base(source),
		FileExt:      ext,
		DocType:      models.DocTypeForExt(ext),
		ChunkerType:  strategy,
		ChunkSize:    params.ChunkSize,
		ChunkOverlap: params.ChunkOverlap,
	}
	chunks := make([]models.Chunk, len(raw))
	for i, rc := range raw {
		meta := base
		meta.ChunkIndex = i
		if rc.HasPage {
			meta.Page = rc.Page
		}
		chunks[i] = models.Chunk{
			ID:       fileid.ChunkID(source, meta.Page, i, rc.Content),
			Content:  rc.Content,
			Metadata: meta,
		}
	}
	return chunks
}
