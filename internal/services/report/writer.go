// Package report serializes screening results, return rankings and analysis
// reports as JSON, Markdown, Excel and PDF files.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Output formats accepted in report.formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatXLSX     = "xlsx"
	FormatPDF      = "pdf"
)

// File name prefixes.
const (
	PrefixAnalysis = "limit_up_analysis"
	PrefixScreens  = "screens"
	PrefixRankings = "rankings"
)

var extensions = map[string]string{
	FormatJSON:     "json",
	FormatMarkdown: "md",
	FormatXLSX:     "xlsx",
	FormatPDF:      "pdf",
}

// Artifact is one written report file.
type Artifact struct {
	Format string
	Path   string
	Size   int
}

// Writer renders reports in every configured format under one directory.
type Writer struct {
	outputDir string
	formats   []string
	pdfFont   string
	logger    arbor.ILogger
}

// NewWriter creates a report writer. An empty format list writes JSON and Markdown.
func NewWriter(config common.ReportConfig, logger arbor.ILogger) *Writer {
	formats := config.Formats
	if len(formats) == 0 {
		formats = []string{FormatJSON, FormatMarkdown}
	}
	return &Writer{
		outputDir: config.OutputDir,
		formats:   formats,
		pdfFont:   config.PDFFont,
		logger:    logger,
	}
}

// FileName returns "<prefix>_<YYYYMMDD>.<ext>" for a format.
func FileName(prefix string, date time.Time, format string) string {
	ext, ok := extensions[format]
	if !ok {
		ext = format
	}
	return fmt.Sprintf("%s_%s.%s", prefix, common.FormatTradeDate(date), ext)
}

// renderer produces the file content of one format.
type renderer func() ([]byte, error)

// WriteAnalysis writes the analysis report in every configured format.
func (w *Writer) WriteAnalysis(report *models.AnalysisReport) ([]Artifact, error) {
	markdown := func() string { return AnalysisMarkdown(report) }
	title := "涨停复盘 " + common.FormatTradeDate(report.TradeDate)
	return w.write(PrefixAnalysis, report.TradeDate, map[string]renderer{
		FormatJSON:     jsonRenderer(report),
		FormatMarkdown: markdownRenderer(markdown),
		FormatPDF:      w.pdfRenderer(markdown, title),
		FormatXLSX: func() ([]byte, error) {
			f, err := AnalysisWorkbook(report)
			if err != nil {
				return nil, err
			}
			return workbookBytes(f)
		},
	})
}

// WriteScreens writes the screening results of one date.
func (w *Writer) WriteScreens(report *models.ScreenReport) ([]Artifact, error) {
	markdown := func() string { return ScreensMarkdown(report) }
	title := "选股结果 " + common.FormatTradeDate(report.TradeDate)
	return w.write(PrefixScreens, report.TradeDate, map[string]renderer{
		FormatJSON:     jsonRenderer(report),
		FormatMarkdown: markdownRenderer(markdown),
		FormatPDF:      w.pdfRenderer(markdown, title),
		FormatXLSX: func() ([]byte, error) {
			f, err := ScreensWorkbook(report)
			if err != nil {
				return nil, err
			}
			return workbookBytes(f)
		},
	})
}

// WriteRankings writes the return rankings ending on endDate.
func (w *Writer) WriteRankings(endDate time.Time, rankings []models.ReturnRanking) ([]Artifact, error) {
	markdown := func() string { return RankingsMarkdown(rankings) }
	title := "区间涨幅排行 " + common.FormatTradeDate(endDate)
	return w.write(PrefixRankings, endDate, map[string]renderer{
		FormatJSON:     jsonRenderer(rankings),
		FormatMarkdown: markdownRenderer(markdown),
		FormatPDF:      w.pdfRenderer(markdown, title),
		FormatXLSX: func() ([]byte, error) {
			f, err := RankingsWorkbook(rankings)
			if err != nil {
				return nil, err
			}
			return workbookBytes(f)
		},
	})
}

func jsonRenderer(v interface{}) renderer {
	return func() ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}
}

func markdownRenderer(markdown func() string) renderer {
	return func() ([]byte, error) {
		return []byte(markdown()), nil
	}
}

func (w *Writer) pdfRenderer(markdown func() string, title string) renderer {
	return func() ([]byte, error) {
		return MarkdownToPDF(markdown(), title, w.pdfFont)
	}
}

// write renders each configured format. A failing format does not stop the others.
func (w *Writer) write(prefix string, date time.Time, renderers map[string]renderer) ([]Artifact, error) {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var (
		artifacts []Artifact
		errs      []error
	)
	for _, format := range w.formats {
		format = strings.ToLower(strings.TrimSpace(format))
		render, ok := renderers[format]
		if !ok {
			errs = append(errs, fmt.Errorf("unsupported report format %q", format))
			continue
		}

		data, err := render()
		if err != nil {
			w.logger.Error().Err(err).Str("format", format).Str("prefix", prefix).Msg("Failed to render report")
			errs = append(errs, fmt.Errorf("%s: %w", format, err))
			continue
		}

		path := filepath.Join(w.outputDir, FileName(prefix, date, format))
		if err := writeFileAtomic(path, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", format, err))
			continue
		}

		w.logger.Info().Str("format", format).Str("path", path).Int("bytes", len(data)).Msg("Report written")
		artifacts = append(artifacts, Artifact{Format: format, Path: path, Size: len(data)})
	}
	return artifacts, errors.Join(errs...)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}
