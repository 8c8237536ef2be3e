package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/kiku/internal/models"
)

// extractPDF returns one page record per PDF page, numbered from 0. Pages without
// a content stream keep their number and yield empty text. The pdf reader panics
// on some malformed files; that is reported as an error for this document only.
func extractPDF(content []byte) (pages []models.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	n := r.NumPage()
	pages = make([]models.Page, 0, n)
	for num := 1; num <= n; num++ {
		p := models.Page{Number: num - 1, HasNumber: true}
		if page := r.Page(num); !page.V.IsNull() {
			text, err := page.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("extract page %d: %w", num, err)
			}
			p.Text = text
		}
		pages = append(pages, p)
	}
	return pages, nil
}
