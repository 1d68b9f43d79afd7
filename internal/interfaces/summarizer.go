package interfaces

import (
	"context"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

// BusinessSummarizer extracts a business summary from a company document.
// Implementations include LLM-backed summarizers and a fundamentals fallback.
type BusinessSummarizer interface {
	SummarizeBusiness(ctx context.Context, securityID, documentRef string) (*models.BusinessInfo, error)
}

// Document is a downloaded document and its extracted text.
type Document struct {
	Ref         string
	ContentType string
	Data        []byte
	Text        string
}

// DocumentFetcher downloads a document ref and extracts its text.
type DocumentFetcher interface {
	Fetch(ctx context.Context, ref string) (*Document, error)
}
