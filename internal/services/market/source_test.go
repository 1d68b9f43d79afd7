package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/eodhd"
	"github.com/stock-programmer/limit-up-review/internal/services/screening"
	"github.com/stock-programmer/limit-up-review/internal/tushare"
)

func TestTushareSource_FetchMarketRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			APIName string `json:"api_name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.APIName {
		case "daily":
			w.Write([]byte(`{"code":0,"data":{"fields":["ts_code","trade_date","close","high","pct_chg","vol","amount"],
				"items":[["600519.SH","20240315",1700,1710,10.0,1000,500000],["000002.SZ","20240315",8,8.1,-6.0,900,450000]]}}`))
		case "daily_basic":
			w.Write([]byte(`{"code":0,"data":{"fields":["ts_code","total_mv"],"items":[["600519.SH",213000000]]}}`))
		case "stock_basic":
			w.Write([]byte(`{"code":2002,"msg":"no permission"}`))
		default:
			t.Errorf("unexpected api %s", req.APIName)
		}
	}))
	defer server.Close()

	source := NewTushareSource(tushare.NewClient("t", tushare.WithBaseURL(server.URL), tushare.WithRateLimit(100)), arbor.NewLogger())
	rows, err := source.FetchMarketRows(context.Background(), day(2024, 3, 15))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	normalized := screening.Normalize(rows, screening.TushareNormalizeOptions())
	require.Len(t, normalized.Rows, 2)
	assert.Equal(t, "000002.SZ", normalized.Rows[0].SecurityID)
	assert.Zero(t, normalized.Rows[0].MarketCap)
	assert.Equal(t, 2130000000.0, normalized.Rows[1].MarketCap, "total_mv is scaled to thousands")
	assert.Equal(t, 500000.0, normalized.Rows[1].TurnoverAmount)
}

func TestTushareSource_NullPricesAreDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			APIName string `json:"api_name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.APIName {
		case "daily":
			w.Write([]byte(`{"code":0,"data":{"fields":["ts_code","trade_date","close","high","pct_chg","vol","amount"],
				"items":[["600519.SH","20240315",1700,1710,10.0,1000,500000],
				["000002.SZ","20240315",8,8.1,-6.0,900,450000],
				["600001.SH","20240315",null,null,null,0,0]]}}`))
		default:
			w.Write([]byte(`{"code":0,"data":{"fields":[],"items":[]}}`))
		}
	}))
	defer server.Close()

	source := NewTushareSource(tushare.NewClient("t", tushare.WithBaseURL(server.URL), tushare.WithRateLimit(100)), arbor.NewLogger())
	rows, err := source.FetchMarketRows(context.Background(), day(2024, 3, 15))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.NotContains(t, rows[2], "close")
	assert.NotContains(t, rows[2], "pct_chg")

	normalized := screening.Normalize(rows, screening.TushareNormalizeOptions())
	assert.Len(t, normalized.Rows, 2)
	assert.Equal(t, 1, normalized.Dropped)
	assert.Equal(t, 1, normalized.DropReasons[screening.DropMissingClose])
}

func TestEODHDSource_FetchMarketRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/SHG"):
			w.Write([]byte(`[{"code":"600519","exchange_short_name":"SHG","name":"Moutai","date":"2024-03-15","close":1700,"high":1710,"change_p":10.0,"volume":300000,"MarketCapitalization":2100000000000},
				{"code":"600000","exchange_short_name":"SHG","date":"2024-03-14","close":7,"change_p":1}]`))
		case strings.HasSuffix(r.URL.Path, "/SHE"):
			w.Write([]byte(`[{"code":"000001","exchange_short_name":"SHE","date":"2024-03-15","close":10,"change_p":-1,"volume":100},
				{"code":"000004","exchange_short_name":"SHE","date":"2024-03-15","close":null,"change_p":null,"volume":0}]`))
		}
	}))
	defer server.Close()

	client := eodhd.NewClient("k", eodhd.WithBaseURL(server.URL), eodhd.WithRateLimit(100))
	source := NewEODHDSource(client, nil, arbor.NewLogger())
	rows, err := source.FetchMarketRows(context.Background(), day(2024, 3, 15))
	require.NoError(t, err)
	require.Len(t, rows, 3, "rows from another session are skipped")

	normalized := screening.Normalize(rows, screening.EODHDNormalizeOptions())
	require.Len(t, normalized.Rows, 2)
	assert.Equal(t, 1, normalized.Dropped, "null close is dropped, not screened as zero")
	moutai := normalized.Rows[1]
	assert.Equal(t, "600519.SH", moutai.SecurityID)
	assert.Equal(t, 510000.0, moutai.TurnoverAmount)
	assert.Equal(t, 2100000000.0, moutai.MarketCap)
}

func TestEODHDSource_FetchTradingCalendar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Code":"SHG","ExchangeHolidays":{"0":{"Holiday":"Qingming","Date":"2024-04-04","Type":"official"}}}`))
	}))
	defer server.Close()

	client := eodhd.NewClient("k", eodhd.WithBaseURL(server.URL), eodhd.WithRateLimit(100))
	days, err := NewEODHDSource(client, nil, arbor.NewLogger()).
		FetchTradingCalendar(context.Background(), day(2024, 4, 1), day(2024, 4, 7))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 5}, dayNumbers(days))
}

func dayNumbers(days []time.Time) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = d.Day()
	}
	return out
}
