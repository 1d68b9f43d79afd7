package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

type stubExtractor struct {
	text     string
	maxPages int
}

func (s *stubExtractor) ExtractPages(ctx context.Context, data []byte, maxPages int) ([]interfaces.PDFPageContent, error) {
	s.maxPages = maxPages
	return []interfaces.PDFPageContent{{PageNumber: 1, Text: s.text}}, nil
}

func (s *stubExtractor) ExtractText(ctx context.Context, data []byte, maxPages int) (string, error) {
	s.maxPages = maxPages
	return s.text, nil
}

const announcementPage = `<html><head><title>公告</title><script>var x = 1;</script></head>
<body><nav>首页 | 公告</nav>
<div class="detail"><h1>关于签订重大合同的公告</h1><p>本公司与客户签订<b>供货合同</b>。</p></div>
<footer>版权所有</footer></body></html>`

func TestFetcher_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notice.html", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(announcementPage))
	})
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("%PDF-1.4\n..."))
	})
	mux.HandleFunc("/plain.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("主营业务：白酒"))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 4096))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	extractor := &stubExtractor{text: "annual report text"}
	fetcher := NewFetcher(FetcherOptions{MaxBytes: 2048, RateLimit: 100, MaxPages: 5}, extractor, arbor.NewLogger())
	ctx := context.Background()

	t.Run("html main content", func(t *testing.T) {
		doc, err := fetcher.Fetch(ctx, server.URL+"/notice.html")
		require.NoError(t, err)
		assert.Equal(t, ContentTypeHTML, doc.ContentType)
		assert.Contains(t, doc.Text, "关于签订重大合同的公告")
		assert.Contains(t, doc.Text, "**供货合同**")
		assert.NotContains(t, doc.Text, "var x")
		assert.NotContains(t, doc.Text, "版权所有")
	})

	t.Run("pdf by magic bytes", func(t *testing.T) {
		doc, err := fetcher.Fetch(ctx, server.URL+"/report")
		require.NoError(t, err)
		assert.Equal(t, ContentTypePDF, doc.ContentType)
		assert.Equal(t, "annual report text", doc.Text)
		assert.Equal(t, 5, extractor.maxPages)
	})

	t.Run("plain text", func(t *testing.T) {
		doc, err := fetcher.Fetch(ctx, server.URL+"/plain.txt")
		require.NoError(t, err)
		assert.Equal(t, ContentTypeText, doc.ContentType)
		assert.Equal(t, "主营业务：白酒", doc.Text)
	})

	t.Run("size cap", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, server.URL+"/big")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTooLarge))
	})

	t.Run("http status", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, server.URL+"/missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 404")
	})

	t.Run("empty ref", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, "  ")
		assert.Error(t, err)
	})
}

func TestFetcher_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notice.htm")
	require.NoError(t, os.WriteFile(path, []byte(announcementPage), 0644))

	fetcher := NewFetcher(FetcherOptions{}, nil, arbor.NewLogger())
	doc, err := fetcher.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeHTML, doc.ContentType)
	assert.Contains(t, doc.Text, "供货合同")
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		declared string
		data     string
		want     string
	}{
		{"magic wins over header", "https://x/a", "text/html", "%PDF-1.7", ContentTypePDF},
		{"declared pdf", "https://x/a", "application/pdf", "binary", ContentTypePDF},
		{"declared html with charset", "https://x/a", "text/html; charset=gbk", "<p>x</p>", ContentTypeHTML},
		{"extension", "https://x/a.PDF", "", "binary", ContentTypePDF},
		{"sniffed html", "https://x/a", "", "<!DOCTYPE html><html></html>", ContentTypeHTML},
		{"fallback text", "https://x/a", "", "hello", ContentTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectContentType(tt.ref, tt.declared, []byte(tt.data)))
		})
	}
}

// buildPDF lays out a one-page PDF around a font object and a content stream,
// computing the cross-reference offsets.
func buildPDF(font string, extra []string, content string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		font,
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}
	objects = append(objects, extra...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

const toUnicodeCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CMapName /Adobe-Identity-UCS def
/CMapType 2 def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
4 beginbfchar
<0001> <4E3B>
<0002> <8425>
<0003> <4E1A>
<0004> <52A1>
endbfchar
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

func TestPDFExtractor_HexStrings(t *testing.T) {
	data := buildPDF("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>", nil,
		"BT /F1 12 Tf 72 712 Td <48656C6C6F> Tj ET")

	text, err := NewPDFExtractor(arbor.NewLogger()).ExtractText(context.Background(), data, 0)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
}

func TestPDFExtractor_CIDFontToUnicode(t *testing.T) {
	font := "<< /Type /Font /Subtype /Type0 /BaseFont /SimSun /Encoding /Identity-H /DescendantFonts [6 0 R] /ToUnicode 7 0 R >>"
	extra := []string{
		"<< /Type /Font /Subtype /CIDFontType2 /BaseFont /SimSun /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(toUnicodeCMap), toUnicodeCMap),
	}
	data := buildPDF(font, extra, "BT /F1 12 Tf 72 712 Td <00010002> Tj ET\nBT /F1 12 Tf 72 690 Td [<0003>-20<0004>] TJ ET")

	pages, err := NewPDFExtractor(arbor.NewLogger()).ExtractPages(context.Background(), data, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0].Text, "主营")
	assert.Contains(t, pages[0].Text, "业务")
}

func TestPDFExtractor_ExtractText(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.Text(20, 20, "Main business: premium liquor")
	pdf.AddPage()
	pdf.Text(20, 20, "Second page")
	pdf.AddPage()
	pdf.Text(20, 20, "Third page")

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	extractor := NewPDFExtractor(arbor.NewLogger())

	pages, err := extractor.ExtractPages(context.Background(), buf.Bytes(), 2)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)

	text, err := extractor.ExtractText(context.Background(), buf.Bytes(), 0)
	require.NoError(t, err)
	assert.Contains(t, text, "Main business: premium liquor")
	assert.Contains(t, text, "Third page")
	assert.Less(t, strings.Index(text, "Main business"), strings.Index(text, "Third page"))
}

func TestPDFExtractor_InvalidData(t *testing.T) {
	_, err := NewPDFExtractor(arbor.NewLogger()).ExtractPages(context.Background(), []byte("not a pdf"), 0)
	assert.Error(t, err)
}
