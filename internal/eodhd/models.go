package eodhd

import (
	"encoding/json"
	"time"
)

// EODData represents a single day's end-of-day price data.
type EODData struct {
	Date          time.Time `json:"-"`
	DateStr       string    `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        int64     `json:"volume"`
}

// EODResponse is a slice of EODData.
type EODResponse []EODData

// BulkEODData is one security of the bulk end-of-day endpoint (extended filter).
type BulkEODData struct {
	Code          string      `json:"code"`
	Exchange      string      `json:"exchange_short_name"`
	Name          string      `json:"name"`
	Date          time.Time   `json:"-"`
	DateStr       string      `json:"date"`
	Open          float64     `json:"open"`
	High          float64     `json:"high"`
	Low           float64     `json:"low"`
	Close         *float64    `json:"close"`
	AdjustedClose float64     `json:"adjusted_close"`
	PrevClose     float64     `json:"prev_close"`
	ChangePct     json.Number `json:"change_p"`
	Volume        int64       `json:"volume"`
	MarketCap     json.Number `json:"MarketCapitalization"`
	High250       float64     `json:"hi_250d"`
}

// BulkEODResponse is a slice of BulkEODData.
type BulkEODResponse []BulkEODData

// NewsItem represents a single news article.
type NewsItem struct {
	Date      time.Time      `json:"-"`
	DateStr   string         `json:"date"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Link      string         `json:"link"`
	Symbols   []string       `json:"symbols"`
	Tags      []string       `json:"tags"`
	Sentiment *NewsSentiment `json:"sentiment,omitempty"`
}

// NewsSentiment represents sentiment analysis data for news.
type NewsSentiment struct {
	Polarity float64 `json:"polarity"`
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
}

// NewsResponse is a slice of NewsItem.
type NewsResponse []NewsItem

// FundamentalsResponse is the subset of /fundamentals used for business
// summaries and financial indicators.
type FundamentalsResponse struct {
	General    *GeneralInfo `json:"General"`
	Highlights *Highlights  `json:"Highlights"`
	Valuation  *Valuation   `json:"Valuation"`
}

// GeneralInfo contains general company information.
type GeneralInfo struct {
	Code         string `json:"Code"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	GicIndustry  string `json:"GicIndustry"`
	Description  string `json:"Description"`
	WebURL       string `json:"WebURL"`
	IsDelisted   bool   `json:"IsDelisted"`
}

// Highlights contains key financial highlights.
type Highlights struct {
	MarketCapitalization       float64 `json:"MarketCapitalization"`
	PERatio                    float64 `json:"PERatio"`
	EarningsShare              float64 `json:"EarningsShare"`
	ProfitMargin               float64 `json:"ProfitMargin"`
	OperatingMarginTTM         float64 `json:"OperatingMarginTTM"`
	ReturnOnAssetsTTM          float64 `json:"ReturnOnAssetsTTM"`
	ReturnOnEquityTTM          float64 `json:"ReturnOnEquityTTM"`
	RevenueTTM                 float64 `json:"RevenueTTM"`
	QuarterlyRevenueGrowthYOY  float64 `json:"QuarterlyRevenueGrowthYOY"`
	QuarterlyEarningsGrowthYOY float64 `json:"QuarterlyEarningsGrowthYOY"`
	MostRecentQuarter          string  `json:"MostRecentQuarter"`
}

// Valuation contains valuation metrics.
type Valuation struct {
	TrailingPE   float64 `json:"TrailingPE"`
	PriceBookMRQ float64 `json:"PriceBookMRQ"`
}

// Indicators flattens the highlights into named indicators. Ratios are
// converted to percent to match Tushare's fina_indicator.
func (f *FundamentalsResponse) Indicators() map[string]float64 {
	out := make(map[string]float64)
	if f == nil {
		return out
	}
	if h := f.Highlights; h != nil {
		out["roe"] = h.ReturnOnEquityTTM * 100
		out["roa"] = h.ReturnOnAssetsTTM * 100
		out["netprofit_margin"] = h.ProfitMargin * 100
		out["op_margin"] = h.OperatingMarginTTM * 100
		out["revenue_yoy"] = h.QuarterlyRevenueGrowthYOY * 100
		out["netprofit_yoy"] = h.QuarterlyEarningsGrowthYOY * 100
		out["eps"] = h.EarningsShare
		out["pe"] = h.PERatio
	}
	if v := f.Valuation; v != nil {
		out["pb"] = v.PriceBookMRQ
	}
	return out
}

// ExchangeDetailsResponse represents the response from /api/exchange-details/{code} endpoint.
type ExchangeDetailsResponse struct {
	Code     string                     `json:"Code"`
	Name     string                     `json:"Name"`
	Timezone string                     `json:"Timezone"`
	Holidays map[string]ExchangeHoliday `json:"ExchangeHolidays"`
}

// ExchangeHoliday is one closed date of an exchange.
type ExchangeHoliday struct {
	Holiday string `json:"Holiday"`
	Date    string `json:"Date"`
	Type    string `json:"Type"`
}

// HolidayDates returns the parsed holiday dates.
func (r *ExchangeDetailsResponse) HolidayDates() []time.Time {
	dates := make([]time.Time, 0, len(r.Holidays))
	for _, h := range r.Holidays {
		if t, err := time.Parse("2006-01-02", h.Date); err == nil {
			dates = append(dates, t)
		}
	}
	return dates
}
