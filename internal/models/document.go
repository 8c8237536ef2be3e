// Package models defines core data structures for documents, chunks, and ingestion results.
package models

import (
	"path/filepath"
	"strings"
)

// DocType is the coarse document category inferred from a file extension.
type DocType string

const (
	DocTypePDF     DocType = "pdf"
	DocTypeWord    DocType = "word"
	DocTypeText    DocType = "text"
	DocTypeUnknown DocType = "unknown"
)

// DocTypeForExt maps a file extension (with or without the leading dot, any case) to a DocType.
func DocTypeForExt(ext string) DocType {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	switch ext {
	case ".pdf":
		return DocTypePDF
	case ".doc", ".docx":
		return DocTypeWord
	case ".txt", ".md", ".rst":
		return DocTypeText
	default:
		return DocTypeUnknown
	}
}

// DocTypeForPath infers the DocType of a file name or path from its extension.
func DocTypeForPath(name string) DocType {
	return DocTypeForExt(filepath.Ext(name))
}

// Page is one page or section produced by a document loader.
// Number is 0-based and only meaningful when HasNumber is set.
type Page struct {
	Text      string
	Number    int
	HasNumber bool
}

// Document is a loaded source file: its absolute path and page records in order.
type Document struct {
	Source string
	Pages  []Page
}

// ChunkMetadata is the provenance attached to every chunk.
type ChunkMetadata struct {
	Source       string      `json:"source"`
	FileName     string      `json:"file_name"`
	FileExt      string      `json:"file_ext"`
	DocType      DocType     `json:"doc_type"`
	Page         int         `json:"page"`
	ChunkIndex   int         `json:"chunk_index"`
	ChunkerType  ChunkerType `json:"chunker_type"`
	ChunkSize    int         `json:"chunk_size"`
	ChunkOverlap int         `json:"chunk_overlap"`
}

// Map returns the metadata as a payload map.
func (m ChunkMetadata) Map() map[string]any {
	return map[string]any{
		"source":        m.Source,
		"file_name":     m.FileName,
		"file_ext":      m.FileExt,
		"doc_type":      string(m.DocType),
		"page":          m.Page,
		"chunk_index":   m.ChunkIndex,
		"chunker_type":  string(m.ChunkerType),
		"chunk_size":    m.ChunkSize,
		"chunk_overlap": m.ChunkOverlap,
	}
}

// Chunk is the atomic ingestion unit: text span, provenance, and stable ID.
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// RawChunk is a chunk before enrichment: its text and the page it came from.
type RawChunk struct {
	Content string
	Page    int
	HasPage bool
}
