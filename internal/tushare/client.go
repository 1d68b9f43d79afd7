package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the Tushare Pro API.
	DefaultBaseURL = "https://api.tushare.pro"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 3
)

const (
	dailyFields      = "ts_code,trade_date,open,high,low,close,pre_close,change,pct_chg,vol,amount"
	dailyBasicFields = "ts_code,trade_date,turnover_rate,pe,pb,total_mv,circ_mv"
	stockBasicFields = "ts_code,symbol,name,area,industry,market,list_date"
	tradeCalFields   = "exchange,cal_date,is_open"
	finaFields       = "ts_code,end_date,eps,roe,grossprofit_margin,netprofit_margin,netprofit_yoy,or_yoy,debt_to_assets"
)

// Client is a Tushare Pro API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// NewClient creates a new Tushare client.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Query calls any endpoint and returns its raw table.
func (c *Client) Query(ctx context.Context, apiName, fields string, opts ...Option) (*Table, error) {
	params := Params{}
	for _, opt := range opts {
		opt(params)
	}
	return c.post(ctx, apiName, fields, params)
}

func (c *Client) post(ctx context.Context, apiName, fields string, params Params) (*Table, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RateLimitError{RetryAfter: time.Second}
	}

	body, err := json.Marshal(request{APIName: apiName, Token: c.token, Params: params, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("api_name", apiName).
			Msg("Tushare API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: time.Minute}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(msg), APIName: apiName}
	}

	var result response
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Code == codeRateLimited {
		return nil, &RateLimitError{RetryAfter: time.Minute}
	}
	if result.Code != 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: result.Code, Message: result.Msg, APIName: apiName}
	}
	if result.Data == nil {
		return &Table{}, nil
	}
	return result.Data, nil
}

// Daily retrieves unadjusted daily bars. Use WithTradeDate for the whole
// market on one day, or WithSecurity plus WithDateRange for one series.
func (c *Client) Daily(ctx context.Context, opts ...Option) ([]Daily, error) {
	table, err := c.Query(ctx, "daily", dailyFields, opts...)
	if err != nil {
		return nil, err
	}

	records := table.Records()
	out := make([]Daily, 0, len(records))
	for _, r := range records {
		out = append(out, Daily{
			TSCode:    str(r, "ts_code"),
			TradeDate: date(r, "trade_date"),
			Open:      num(r, "open"),
			High:      num(r, "high"),
			Low:       num(r, "low"),
			Close:     optNum(r, "close"),
			PreClose:  num(r, "pre_close"),
			Change:    num(r, "change"),
			PctChg:    optNum(r, "pct_chg"),
			Vol:       num(r, "vol"),
			Amount:    num(r, "amount"),
		})
	}
	return out, nil
}

// DailyBasic retrieves valuation and market-cap data.
func (c *Client) DailyBasic(ctx context.Context, opts ...Option) ([]DailyBasic, error) {
	table, err := c.Query(ctx, "daily_basic", dailyBasicFields, opts...)
	if err != nil {
		return nil, err
	}

	records := table.Records()
	out := make([]DailyBasic, 0, len(records))
	for _, r := range records {
		out = append(out, DailyBasic{
			TSCode:       str(r, "ts_code"),
			TradeDate:    date(r, "trade_date"),
			TurnoverRate: num(r, "turnover_rate"),
			PE:           num(r, "pe"),
			PB:           num(r, "pb"),
			TotalMV:      num(r, "total_mv"),
			CircMV:       num(r, "circ_mv"),
		})
	}
	return out, nil
}

// StockBasic retrieves the currently listed securities.
func (c *Client) StockBasic(ctx context.Context) ([]StockBasic, error) {
	table, err := c.post(ctx, "stock_basic", stockBasicFields, Params{"exchange": "", "list_status": "L"})
	if err != nil {
		return nil, err
	}

	records := table.Records()
	out := make([]StockBasic, 0, len(records))
	for _, r := range records {
		out = append(out, StockBasic{
			TSCode:   str(r, "ts_code"),
			Symbol:   str(r, "symbol"),
			Name:     str(r, "name"),
			Area:     str(r, "area"),
			Industry: str(r, "industry"),
			Market:   str(r, "market"),
			ListDate: str(r, "list_date"),
		})
	}
	return out, nil
}

// TradeCal retrieves the SSE calendar between start and end, sorted ascending.
func (c *Client) TradeCal(ctx context.Context, start, end time.Time) ([]CalendarDay, error) {
	params := Params{"exchange": "SSE"}
	WithDateRange(start, end)(params)

	table, err := c.post(ctx, "trade_cal", tradeCalFields, params)
	if err != nil {
		return nil, err
	}

	records := table.Records()
	out := make([]CalendarDay, 0, len(records))
	for _, r := range records {
		day := date(r, "cal_date")
		if day.IsZero() {
			continue
		}
		out = append(out, CalendarDay{
			Exchange: str(r, "exchange"),
			Date:     day,
			IsOpen:   str(r, "is_open") == "1",
		})
	}
	// Tushare returns the calendar newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// TradingDays returns the open dates between start and end, ascending.
func (c *Client) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	cal, err := c.TradeCal(ctx, start, end)
	if err != nil {
		return nil, err
	}
	days := make([]time.Time, 0, len(cal))
	for _, d := range cal {
		if d.IsOpen {
			days = append(days, d.Date)
		}
	}
	return days, nil
}

// FinaIndicator retrieves financial indicators of one security, newest period first.
func (c *Client) FinaIndicator(ctx context.Context, tsCode string, opts ...Option) ([]FinaIndicator, error) {
	opts = append([]Option{WithSecurity(tsCode)}, opts...)
	table, err := c.Query(ctx, "fina_indicator", finaFields, opts...)
	if err != nil {
		return nil, err
	}

	records := table.Records()
	out := make([]FinaIndicator, 0, len(records))
	for _, r := range records {
		out = append(out, FinaIndicator{
			TSCode:          str(r, "ts_code"),
			EndDate:         date(r, "end_date"),
			EPS:             num(r, "eps"),
			ROE:             num(r, "roe"),
			GrossMargin:     num(r, "grossprofit_margin"),
			NetprofitMargin: num(r, "netprofit_margin"),
			NetprofitYoY:    num(r, "netprofit_yoy"),
			OrYoY:           num(r, "or_yoy"),
			DebtToAssets:    num(r, "debt_to_assets"),
		})
	}
	return out, nil
}
