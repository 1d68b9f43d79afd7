// -----------------------------------------------------------------------
// PDF Extractor - Extract text content from filed PDF reports
// pdfcpu validates the file, ledongthuc/pdf decodes the page text
// -----------------------------------------------------------------------

package documents

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

// PDFExtractor implements interfaces.PDFExtractor. Text is decoded through each
// font's encoding or ToUnicode CMap, so CID-keyed CJK fonts come out as text.
type PDFExtractor struct {
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.PDFExtractor = (*PDFExtractor)(nil)

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor(logger arbor.ILogger) *PDFExtractor {
	return &PDFExtractor{logger: logger}
}

// ExtractText joins the text of the first maxPages pages.
func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte, maxPages int) (string, error) {
	pages, err := e.ExtractPages(ctx, data, maxPages)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for _, page := range pages {
		if page.Text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(page.Text)
	}
	return builder.String(), nil
}

// ExtractPages extracts text by page. A page that cannot be decoded (scanned
// images, broken fonts) comes back empty instead of failing the document.
func (e *PDFExtractor) ExtractPages(ctx context.Context, data []byte, maxPages int) (pages []interfaces.PDFPageContent, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The PDF reader panics on some corrupt cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	// Many filings fail strict PDF validation yet read fine; log and continue.
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if verr := api.Validate(bytes.NewReader(data), conf); verr != nil {
		e.logger.Debug().Err(verr).Int("bytes", len(data)).Msg("PDF failed validation, extracting anyway")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	total := reader.NumPage()
	pageCount := total
	if maxPages > 0 && pageCount > maxPages {
		pageCount = maxPages
	}

	pages = make([]interfaces.PDFPageContent, 0, pageCount)
	empty := 0
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := e.pageText(reader, pageNum)
		if text == "" {
			empty++
		}
		pages = append(pages, interfaces.PDFPageContent{PageNumber: pageNum, Text: text})
	}

	e.logger.Debug().
		Int("page_count", total).
		Int("extracted", pageCount).
		Int("empty", empty).
		Int("bytes", len(data)).
		Msg("Extracted PDF text")
	return pages, nil
}

func (e *PDFExtractor) pageText(reader *pdf.Reader, pageNum int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug().Int("page", pageNum).Str("panic", fmt.Sprint(r)).Msg("PDF page text failed")
			text = ""
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.Debug().Err(err).Int("page", pageNum).Msg("PDF page text failed")
		return ""
	}
	return strings.TrimSpace(text)
}
