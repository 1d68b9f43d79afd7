// -----------------------------------------------------------------------
// PDF Extractor Interface - Extract text content from PDF documents
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
)

// PDFPageContent represents extracted content from a single PDF page
type PDFPageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// PDFExtractor extracts text from PDF bytes.
type PDFExtractor interface {
	// ExtractPages extracts text by page, at most maxPages pages (0 = all).
	ExtractPages(ctx context.Context, data []byte, maxPages int) ([]PDFPageContent, error)

	// ExtractText joins the text of the first maxPages pages.
	ExtractText(ctx context.Context, data []byte, maxPages int) (string, error)
}
