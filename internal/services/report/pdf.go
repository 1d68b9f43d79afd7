package report

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	cjkFamily     = "cjk"
	pageWidth     = 190.0
	pageHeight    = 297.0 - 12.0
	bodySize      = 9.0
	tableSize     = 7.5
	tableLineH    = 3.8
	maxTableLines = 6
)

// MarkdownToPDF renders Markdown as an A4 PDF. Core PDF fonts cannot draw
// Chinese, so fontPath should name a TrueType font with CJK glyphs; without
// one, runes outside Latin-1 print as '?'.
func MarkdownToPDF(markdown, title, fontPath string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 12)

	r := &pdfRenderer{pdf: pdf, source: []byte(markdown), size: bodySize}

	if fontPath != "" {
		for _, style := range []string{"", "B", "I", "BI"} {
			pdf.AddUTF8Font(cjkFamily, style, fontPath)
		}
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("failed to load PDF font %s: %w", fontPath, err)
		}
		r.font = cjkFamily
		r.mono = cjkFamily
		r.tr = func(s string) string { return s }
	} else {
		r.font = "Arial"
		r.mono = "Courier"
		tr := pdf.UnicodeTranslatorFromDescriptor("")
		r.tr = func(s string) string { return tr(latin1(s)) }
	}

	pdf.SetTitle(title, true)
	pdf.SetCreator("limit-up-review", true)
	pdf.AddPage()
	r.updateFont()

	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	doc := md.Parser().Parse(text.NewReader(r.source))
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func latin1(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}, s)
}

type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	font      string
	mono      string
	tr        func(string) string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *pdfRenderer) write(s string) {
	r.pdf.Write(5, r.tr(s))
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		r.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(6)
		}
	case *ast.Text:
		if entering {
			r.write(string(node.Text(r.source)))
			if node.SoftLineBreak() {
				r.write(" ")
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont(r.mono, "", r.size)
			r.write(string(node.Text(r.source)))
			r.updateFont()
		}
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil
	case *ast.CodeBlock:
		if entering {
			r.codeBlock(node.Lines())
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(6)
			}
		}
	case *ast.ListItem:
		if entering {
			if node.PreviousSibling() != nil || r.listLevel > 1 {
				r.pdf.Ln(5)
			}
			r.pdf.SetX(12 + float64(r.listLevel)*4)
			r.write("- ")
		}
	case *ast.TextBlock:
		// list item content; line breaks come from the item itself
	case *ast.ThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.Line(10, r.pdf.GetY(), 10+pageWidth, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	case *extast.Table:
		if entering {
			r.renderTable(r.tableRows(node))
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) heading(n *ast.Heading, entering bool) {
	if !entering {
		r.pdf.Ln(7)
		r.updateFont()
		return
	}
	r.pdf.Ln(3)
	size := 10.0
	switch n.Level {
	case 1:
		size = 15
	case 2:
		size = 12
	case 3:
		size = 10.5
	}
	r.pdf.SetFont(r.font, "B", size)
}

func (r *pdfRenderer) codeBlock(lines *text.Segments) {
	r.pdf.Ln(2)
	r.pdf.SetFont(r.mono, "", r.size-1)
	r.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		r.pdf.MultiCell(0, 4.5, r.tr(strings.TrimRight(string(line.Value(r.source)), "\n")), "", "L", true)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.updateFont()
	r.pdf.Ln(2)
}

func (r *pdfRenderer) tableRows(n *extast.Table) [][]string {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch row := child.(type) {
		case *extast.TableHeader, *extast.TableRow:
			var cells []string
			for c := row.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, r.tr(string(c.Text(r.source))))
			}
			rows = append(rows, cells)
		}
	}
	return rows
}

func (r *pdfRenderer) renderTable(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}
	numCols := len(rows[0])
	widths := r.columnWidths(rows, numCols)

	r.pdf.Ln(1)
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		r.pdf.SetFont(r.font, style, tableSize)

		wrapped := make([][]string, numCols)
		lines := 1
		for j := 0; j < numCols && j < len(row); j++ {
			wrapped[j] = r.wrap(row[j], widths[j]-2)
			if len(wrapped[j]) > lines {
				lines = len(wrapped[j])
			}
		}
		if lines > maxTableLines {
			lines = maxTableLines
		}

		height := float64(lines)*tableLineH + 2
		x, y := r.pdf.GetX(), r.pdf.GetY()
		if y+height > pageHeight {
			r.pdf.AddPage()
			x, y = r.pdf.GetX(), r.pdf.GetY()
		}

		cx := x
		for j := 0; j < numCols; j++ {
			if i == 0 {
				r.pdf.SetFillColor(230, 230, 230)
				r.pdf.Rect(cx, y, widths[j], height, "FD")
			} else {
				r.pdf.Rect(cx, y, widths[j], height, "D")
			}
			for k, line := range wrapped[j] {
				if k >= lines {
					break
				}
				r.pdf.SetXY(cx+1, y+1+float64(k)*tableLineH)
				r.pdf.CellFormat(widths[j]-2, tableLineH, line, "", 0, "L", false, 0, "")
			}
			cx += widths[j]
		}
		r.pdf.SetXY(x, y+height)
	}

	r.pdf.SetFillColor(255, 255, 255)
	r.pdf.Ln(3)
	r.updateFont()
}

// columnWidths sizes columns to their widest cell, clamped and scaled to the page.
func (r *pdfRenderer) columnWidths(rows [][]string, numCols int) []float64 {
	widths := make([]float64, numCols)
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		r.pdf.SetFont(r.font, style, tableSize)
		for j := 0; j < numCols && j < len(row); j++ {
			if w := r.pdf.GetStringWidth(row[j]) + 4; w > widths[j] {
				widths[j] = w
			}
		}
	}

	const minWidth = 10.0
	maxWidth := pageWidth / 2.5
	total := 0.0
	for i := range widths {
		widths[i] = min(max(widths[i], minWidth), maxWidth)
		total += widths[i]
	}
	if total > pageWidth {
		scale := pageWidth / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

// wrap breaks s into lines no wider than width. Han characters may break
// anywhere, other text breaks on spaces.
func (r *pdfRenderer) wrap(s string, width float64) []string {
	tokens := tokenize(s)
	if len(tokens) == 0 {
		return nil
	}

	var (
		lines   []string
		current strings.Builder
	)
	for _, tok := range tokens {
		candidate := current.String() + tok
		if current.Len() > 0 && r.pdf.GetStringWidth(candidate) > width {
			lines = append(lines, strings.TrimSpace(current.String()))
			current.Reset()
			tok = strings.TrimLeft(tok, " ")
		}
		current.WriteString(tok)
	}
	if current.Len() > 0 {
		lines = append(lines, strings.TrimSpace(current.String()))
	}
	return lines
}

// tokenize splits text into wrap units: single Han runes and space-led words.
func tokenize(s string) []string {
	var (
		tokens []string
		word   []rune
	)
	flush := func() {
		if len(word) > 0 {
			tokens = append(tokens, string(word))
			word = word[:0]
		}
	}
	for _, c := range s {
		switch {
		case unicode.Is(unicode.Han, c) || unicode.In(c, unicode.P) && c > 0x2000:
			flush()
			tokens = append(tokens, string(c))
		case unicode.IsSpace(c):
			flush()
			word = append(word, ' ')
		default:
			word = append(word, c)
		}
	}
	flush()
	return tokens
}
