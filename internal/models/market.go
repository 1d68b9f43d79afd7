package models

import "time"

// Monetary amounts (TurnoverAmount, MarketCap and every derived total) are in
// thousands of CNY and Volume is in shares. Sources with other native units
// (Tushare reports vol in lots of 100) are scaled during normalization.

// RawRow is one source record for one security on one trading date.
// Keys and value types vary per source.
type RawRow map[string]interface{}

// Board identifies the listing venue segment, which sets the daily price limit.
type Board string

const (
	BoardStandard       Board = "standard"        // SSE/SZSE main board, 10% limit
	BoardHighVolatility Board = "high_volatility" // ChiNext and STAR, 20% limit
	BoardBeijing        Board = "beijing"         // Beijing Stock Exchange, 30% limit
	BoardRiskWarning    Board = "risk_warning"    // ST / *ST names, 5% limit
)

// MarketRow is one normalized security for one trading date.
type MarketRow struct {
	SecurityID     string  `json:"security_id"`
	Name           string  `json:"name"`
	Board          Board   `json:"board"`
	ClosePrice     float64 `json:"close_price"`
	High           float64 `json:"high"`
	ChangePct      float64 `json:"change_pct"`
	Volume         float64 `json:"volume"`
	TurnoverAmount float64 `json:"turnover_amount"`
	MarketCap      float64 `json:"market_cap"`
	IsNewHigh      bool    `json:"is_new_high"`
}

// RankedResult is the ordered output of one screening rule.
type RankedResult struct {
	Rule      string      `json:"rule"`
	TradeDate time.Time   `json:"trade_date"`
	Outcome   Outcome     `json:"outcome"`
	Rows      []MarketRow `json:"rows"`
	Err       string      `json:"error,omitempty"`
}

// IDs returns the security ids in result order.
func (r RankedResult) IDs() []string {
	ids := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		ids = append(ids, row.SecurityID)
	}
	return ids
}

// DailyClose is one point of a security's close series.
type DailyClose struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// SecuritySeries is the close history of one security.
type SecuritySeries struct {
	SecurityID string       `json:"security_id"`
	Name       string       `json:"name"`
	Closes     []DailyClose `json:"closes"`
}

// ReturnRow is one security's compounded return over a window.
type ReturnRow struct {
	SecurityID          string    `json:"security_id"`
	Name                string    `json:"name"`
	CumulativeReturnPct float64   `json:"cumulative_return_pct"`
	WindowStartDate     time.Time `json:"window_start_date"`
	WindowEndDate       time.Time `json:"window_end_date"`
	StartClose          float64   `json:"start_close"`
	EndClose            float64   `json:"end_close"`
}

// ReturnRanking is the ordered output of the multi-window return ranker.
type ReturnRanking struct {
	Window   string      `json:"window"`
	EndDate  time.Time   `json:"end_date"`
	Outcome  Outcome     `json:"outcome"`
	Rows     []ReturnRow `json:"rows"`
	Excluded int         `json:"excluded"`
	Err      string      `json:"error,omitempty"`
}

// ScreenReport groups every screen run for one trading date.
type ScreenReport struct {
	TradeDate time.Time      `json:"trade_date"`
	Outcome   Outcome        `json:"outcome"`
	RowCount  int            `json:"row_count"`
	Dropped   int            `json:"dropped"`
	Results   []RankedResult `json:"results"`
	Err       string         `json:"error,omitempty"`
}
