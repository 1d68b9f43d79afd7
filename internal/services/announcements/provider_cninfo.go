package announcements

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Compile-time assertions
var (
	_ interfaces.AnnouncementProvider = (*CNINFOProvider)(nil)
	_ interfaces.ReportLocator        = (*CNINFOProvider)(nil)
)

// CNINFO announcement categories.
const (
	CategoryAnnualReport    = "category_ndbg_szsh"
	CategoryInterimReport   = "category_bndbg_szsh"
	CategoryQuarterlyReport = "category_sjdbg_szsh"
)

const (
	cninfoQueryPath = "/new/hisAnnouncement/query"
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// stockListPaths are the CNINFO code → orgId lists, loaded in order.
var stockListPaths = []string{
	"/new/data/szse_stock.json",
	"/new/data/sse_stock.json",
	"/new/data/bj_stock.json",
}

// CNINFOOptions configures the CNINFO provider.
type CNINFOOptions struct {
	BaseURL    string
	StaticURL  string
	PageSize   int
	MaxPages   int
	RateLimit  int
	HTTPClient *http.Client
}

// CNINFOProvider reads announcements from the CNINFO disclosure site, which
// covers every SSE, SZSE and BSE listing.
type CNINFOProvider struct {
	opts    CNINFOOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger

	mu     sync.Mutex
	orgIDs map[string]string
}

// NewCNINFOProvider creates a CNINFO provider.
func NewCNINFOProvider(opts CNINFOOptions, logger arbor.ILogger) *CNINFOProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://www.cninfo.com.cn"
	}
	if opts.StaticURL == "" {
		opts.StaticURL = "https://static.cninfo.com.cn"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.StaticURL = strings.TrimRight(opts.StaticURL, "/")
	if opts.PageSize <= 0 {
		opts.PageSize = 30
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &CNINFOProvider{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit),
		logger:  logger,
	}
}

// Name implements interfaces.AnnouncementProvider.
func (p *CNINFOProvider) Name() string {
	return "cninfo"
}

type cninfoStockList struct {
	StockList []struct {
		Code  string `json:"code"`
		OrgID string `json:"orgId"`
		Name  string `json:"zwjc"`
	} `json:"stockList"`
}

type cninfoQueryResponse struct {
	TotalPages    int                  `json:"totalpages"`
	HasMore       bool                 `json:"hasMore"`
	Announcements []cninfoAnnouncement `json:"announcements"`
}

type cninfoAnnouncement struct {
	SecCode          string `json:"secCode"`
	SecName          string `json:"secName"`
	AnnouncementID   string `json:"announcementId"`
	Title            string `json:"announcementTitle"`
	AnnouncementTime int64  `json:"announcementTime"`
	AdjunctURL       string `json:"adjunctUrl"`
	AdjunctType      string `json:"adjunctType"`
}

// orgID returns the CNINFO organisation id of a listing code, loading the
// stock lists on first use. A failed load is retried on the next call.
func (p *CNINFOProvider) orgID(ctx context.Context, code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.orgIDs == nil {
		ids := make(map[string]string)
		for _, path := range stockListPaths {
			var list cninfoStockList
			if err := p.getJSON(ctx, p.opts.BaseURL+path, &list); err != nil {
				p.logger.Warn().Err(err).Str("path", path).Msg("CNINFO stock list unavailable")
				continue
			}
			for _, s := range list.StockList {
				if s.Code != "" && s.OrgID != "" {
					if _, exists := ids[s.Code]; !exists {
						ids[s.Code] = s.OrgID
					}
				}
			}
		}
		if len(ids) == 0 {
			return "", fmt.Errorf("CNINFO stock lists unavailable")
		}
		p.orgIDs = ids
		p.logger.Debug().Int("stocks", len(ids)).Msg("Loaded CNINFO stock list")
	}

	id, ok := p.orgIDs[code]
	if !ok {
		return "", fmt.Errorf("no CNINFO orgId for %s", code)
	}
	return id, nil
}

// FetchAnnouncements implements interfaces.AnnouncementProvider.
func (p *CNINFOProvider) FetchAnnouncements(ctx context.Context, securityID string, start, end time.Time) ([]models.Announcement, error) {
	return p.query(ctx, securityID, start, end, "")
}

// LatestPeriodicReport returns the PDF ref of the newest annual or interim
// report filed in the 18 months before asOf.
func (p *CNINFOProvider) LatestPeriodicReport(ctx context.Context, securityID string, asOf time.Time) (string, error) {
	anns, err := p.query(ctx, securityID, asOf.AddDate(0, -18, 0), asOf,
		CategoryAnnualReport+";"+CategoryInterimReport)
	if err != nil {
		return "", err
	}

	for _, a := range anns {
		// Abstracts and English editions are filed alongside the full report.
		if strings.Contains(a.Title, "摘要") || strings.Contains(strings.ToLower(a.Title), "english") || strings.Contains(a.Title, "英文") {
			continue
		}
		if a.DocumentRef != "" {
			return a.DocumentRef, nil
		}
	}
	return "", fmt.Errorf("no periodic report for %s since %s", securityID, asOf.AddDate(0, -18, 0).Format("2006-01-02"))
}

func (p *CNINFOProvider) query(ctx context.Context, securityID string, start, end time.Time, category string) ([]models.Announcement, error) {
	sec, err := common.ParseSecurityID(securityID)
	if err != nil {
		return nil, err
	}
	orgID, err := p.orgID(ctx, sec.Code)
	if err != nil {
		return nil, err
	}

	out := make([]models.Announcement, 0)
	for page := 1; page <= p.opts.MaxPages; page++ {
		form := url.Values{}
		form.Set("pageNum", strconv.Itoa(page))
		form.Set("pageSize", strconv.Itoa(p.opts.PageSize))
		form.Set("column", sec.CNINFOColumn())
		form.Set("tabName", "fulltext")
		form.Set("stock", sec.Code+","+orgID)
		form.Set("category", category)
		form.Set("seDate", start.Format("2006-01-02")+"~"+end.Format("2006-01-02"))
		form.Set("searchkey", "")
		form.Set("plate", "")
		form.Set("isHLtitle", "true")

		var resp cninfoQueryResponse
		if err := p.postForm(ctx, p.opts.BaseURL+cninfoQueryPath, form, &resp); err != nil {
			return nil, fmt.Errorf("CNINFO query %s page %d: %w", sec, page, err)
		}

		for _, item := range resp.Announcements {
			out = append(out, p.toAnnouncement(sec.String(), item))
		}

		if page >= resp.TotalPages || len(resp.Announcements) == 0 {
			break
		}
	}

	p.logger.Debug().
		Str("security_id", sec.String()).
		Str("category", category).
		Int("count", len(out)).
		Msg("CNINFO announcements fetched")
	return out, nil
}

var highlightTags = strings.NewReplacer("<em>", "", "</em>", "")

func (p *CNINFOProvider) toAnnouncement(securityID string, item cninfoAnnouncement) models.Announcement {
	filed := time.UnixMilli(item.AnnouncementTime).In(common.ChinaLocation())
	a := models.Announcement{
		SecurityID: securityID,
		Title:      strings.TrimSpace(highlightTags.Replace(item.Title)),
		FiledDate:  common.DateOnly(filed),
		Source:     p.Name(),
	}
	if item.AdjunctURL != "" {
		a.DocumentRef = p.opts.StaticURL + "/" + strings.TrimLeft(item.AdjunctURL, "/")
	}
	return a
}

func (p *CNINFOProvider) postForm(ctx context.Context, endpoint string, form url.Values, result interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", p.opts.BaseURL)
	req.Header.Set("Referer", p.opts.BaseURL+"/new/disclosure/stock")
	return p.do(req, result)
}

func (p *CNINFOProvider) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return p.do(req, result)
}

func (p *CNINFOProvider) do(req *http.Request, result interface{}) error {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("CNINFO returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
