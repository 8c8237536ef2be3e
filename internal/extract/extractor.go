// Package extract loads documents from disk into ordered page records.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kiku/internal/models"
)

// ErrLegacyWord is returned for binary Word 97-2003 files, which cannot be read.
var ErrLegacyWord = errors.New("legacy .doc format is not supported, convert it to .docx")

// Extractor loads supported document formats into pages.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Load reads the file at path and returns it as a Document with an absolute Source.
// PDF files produce one page per PDF page with 0-based numbers; other formats
// produce a single unnumbered page.
func (e *Extractor) Load(path string) (*models.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	pages, err := e.LoadBytes(content, filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(abs), err)
	}
	return &models.Document{Source: abs, Pages: pages}, nil
}

// LoadBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"); case is ignored.
func (e *Extractor) LoadBytes(content []byte, ext string) ([]models.Page, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return []models.Page{{Text: text}}, nil
	case ".doc":
		// Some .doc files are OOXML packages with the wrong extension.
		if !isZip(content) {
			return nil, ErrLegacyWord
		}
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return []models.Page{{Text: text}}, nil
	case ".txt", ".md", ".rst":
		text, err := extractPlain(content)
		if err != nil {
			return nil, err
		}
		return []models.Page{{Text: text}}, nil
	default:
		return nil, fmt.Errorf("%w %q", models.ErrUnsupportedExtension, ext)
	}
}
