package tushare

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date format Tushare uses in requests and responses.
const DateLayout = "20060102"

type request struct {
	APIName string `json:"api_name"`
	Token   string `json:"token"`
	Params  Params `json:"params"`
	Fields  string `json:"fields,omitempty"`
}

type response struct {
	RequestID string `json:"request_id"`
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Data      *Table `json:"data"`
}

// Table is the column-oriented payload of a Tushare response.
type Table struct {
	Fields []string        `json:"fields"`
	Items  [][]interface{} `json:"items"`
}

// Records converts the table into one map per item keyed by field name.
// Numbers are kept as json.Number.
func (t *Table) Records() []map[string]interface{} {
	if t == nil {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(t.Items))
	for _, item := range t.Items {
		record := make(map[string]interface{}, len(t.Fields))
		for i, field := range t.Fields {
			if i < len(item) {
				record[field] = item[i]
			}
		}
		out = append(out, record)
	}
	return out
}

// Daily is one row of the daily endpoint. Vol is in lots (100 shares), Amount
// in thousands of CNY. Close and PctChg are nil when Tushare returns null, which
// it does for suspended securities.
type Daily struct {
	TSCode    string
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     *float64
	PreClose  float64
	Change    float64
	PctChg    *float64
	Vol       float64
	Amount    float64
}

// DailyBasic is one row of the daily_basic endpoint. TotalMV and CircMV are in
// ten-thousands of CNY.
type DailyBasic struct {
	TSCode       string
	TradeDate    time.Time
	TurnoverRate float64
	PE           float64
	PB           float64
	TotalMV      float64
	CircMV       float64
}

// StockBasic is one listed security.
type StockBasic struct {
	TSCode   string
	Symbol   string
	Name     string
	Area     string
	Industry string
	Market   string
	ListDate string
}

// CalendarDay is one exchange calendar entry.
type CalendarDay struct {
	Exchange string
	Date     time.Time
	IsOpen   bool
}

// FinaIndicator is one reporting period of the fina_indicator endpoint.
// Percent fields are already percentages.
type FinaIndicator struct {
	TSCode          string
	EndDate         time.Time
	EPS             float64
	ROE             float64
	GrossMargin     float64
	NetprofitYoY    float64
	OrYoY           float64
	DebtToAssets    float64
	NetprofitMargin float64
}

// Values returns the indicator as a flat map keyed like the EODHD indicators.
// Zero values are omitted.
func (f FinaIndicator) Values() map[string]float64 {
	out := map[string]float64{}
	set := func(key string, v float64) {
		if v != 0 {
			out[key] = v
		}
	}
	set("eps", f.EPS)
	set("roe", f.ROE)
	set("gross_margin", f.GrossMargin)
	set("netprofit_margin", f.NetprofitMargin)
	set("netprofit_yoy", f.NetprofitYoY)
	set("revenue_yoy", f.OrYoY)
	set("debt_to_assets", f.DebtToAssets)
	return out
}

func str(record map[string]interface{}, key string) string {
	switch v := record[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func num(record map[string]interface{}, key string) float64 {
	switch v := record[key].(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	default:
		return 0
	}
}

// optNum is num for nullable columns: nil when the value is null or absent.
func optNum(record map[string]interface{}, key string) *float64 {
	switch v := record[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return &f
	case float64:
		return &v
	default:
		return nil
	}
}

func date(record map[string]interface{}, key string) time.Time {
	t, err := time.Parse(DateLayout, strings.TrimSpace(str(record, key)))
	if err != nil {
		return time.Time{}
	}
	return t
}
