// Package documents downloads announcement and report documents and extracts
// their text for the business summarizer.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

const (
	DefaultMaxBytes  int64 = 20 << 20
	DefaultRateLimit       = 2
	DefaultMaxPages        = 40
	DefaultUserAgent       = "Mozilla/5.0 (compatible; limit-up-review/1.0)"

	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html"
	ContentTypeText = "text/plain"
)

// ErrTooLarge is returned when a document exceeds the configured size cap.
var ErrTooLarge = errors.New("document exceeds size limit")

// FetcherOptions configures the Fetcher. Zero values select the defaults.
type FetcherOptions struct {
	MaxBytes   int64
	RateLimit  int // requests per second
	MaxPages   int // PDF pages handed to the extractor
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

// Fetcher implements interfaces.DocumentFetcher over HTTP(S) and local files.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	pdf       interfaces.PDFExtractor
	maxBytes  int64
	maxPages  int
	userAgent string
	logger    arbor.ILogger
}

var _ interfaces.DocumentFetcher = (*Fetcher)(nil)

// NewFetcher creates a document fetcher. A nil extractor leaves PDF text empty.
func NewFetcher(opts FetcherOptions, extractor interfaces.PDFExtractor, logger arbor.ILogger) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		pdf:       extractor,
		maxBytes:  opts.MaxBytes,
		maxPages:  opts.MaxPages,
		userAgent: opts.UserAgent,
		logger:    logger,
	}
}

// Fetch downloads ref and extracts its text. Refs without an http(s) scheme
// are read from the local filesystem.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*interfaces.Document, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("empty document ref")
	}

	var (
		data        []byte
		contentType string
		err         error
	)
	u, parseErr := url.Parse(ref)
	if parseErr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		data, contentType, err = f.download(ctx, ref)
	} else {
		data, err = f.readFile(ref)
	}
	if err != nil {
		return nil, err
	}

	doc := &interfaces.Document{
		Ref:         ref,
		ContentType: detectContentType(ref, contentType, data),
		Data:        data,
	}

	switch doc.ContentType {
	case ContentTypePDF:
		if f.pdf != nil {
			text, err := f.pdf.ExtractText(ctx, data, f.maxPages)
			if err != nil {
				return nil, fmt.Errorf("extract pdf %s: %w", ref, err)
			}
			doc.Text = text
		}
	case ContentTypeHTML:
		text, err := HTMLToText(string(data), ref)
		if err != nil {
			return nil, fmt.Errorf("convert html %s: %w", ref, err)
		}
		doc.Text = text
	default:
		doc.Text = string(data)
	}

	f.logger.Debug().
		Str("ref", ref).
		Str("content_type", doc.ContentType).
		Int("bytes", len(data)).
		Int("text_length", len(doc.Text)).
		Msg("Document fetched")
	return doc, nil
}

func (f *Fetcher) download(ctx context.Context, ref string) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: HTTP %d", ref, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, ref, resp.ContentLength)
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", ref, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	path = strings.TrimPrefix(path, "file://")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	data, err := f.readLimited(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// readLimited reads at most maxBytes and fails rather than truncating.
func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}

// detectContentType prefers the PDF magic bytes, then the declared header,
// then the ref's extension, then content sniffing.
func detectContentType(ref, declared string, data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return ContentTypePDF
	}
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			switch {
			case mediaType == ContentTypePDF:
				return ContentTypePDF
			case mediaType == ContentTypeHTML || mediaType == "application/xhtml+xml":
				return ContentTypeHTML
			case strings.HasPrefix(mediaType, "text/"):
				return ContentTypeText
			}
		}
	}

	lower := strings.ToLower(ref)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return ContentTypePDF
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"), strings.HasSuffix(lower, ".shtml"):
		return ContentTypeHTML
	}

	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, ContentTypeHTML) {
		return ContentTypeHTML
	}
	return ContentTypeText
}

// mainContentSelectors pick the document body of announcement pages, most
// specific first.
var mainContentSelectors = []string{"article", "#content", ".content", ".detail", "main", "body"}

// HTMLToText selects the main content of an HTML page and converts it to markdown.
func HTMLToText(html, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	content := doc.Selection
	for _, selector := range mainContentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 && strings.TrimSpace(sel.Text()) != "" {
			content = sel
			break
		}
	}

	fragment, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	converter := md.NewConverter(baseHost(baseURL), true, nil)
	markdown, err := converter.ConvertString(fragment)
	if err != nil {
		return "", err
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		markdown = strings.Join(strings.Fields(content.Text()), " ")
	}
	return markdown, nil
}

func baseHost(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
