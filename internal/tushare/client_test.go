package tushare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler func(t *testing.T, req request) string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-token", req.Token)
		w.Write([]byte(handler(t, req)))
	}))
	t.Cleanup(server.Close)
	return NewClient("test-token", WithBaseURL(server.URL), WithRateLimit(100))
}

func TestDaily(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req request) string {
		assert.Equal(t, "daily", req.APIName)
		assert.Equal(t, "20240315", req.Params["trade_date"])
		assert.Equal(t, dailyFields, req.Fields)
		return `{"code":0,"msg":"","data":{"fields":["ts_code","trade_date","close","high","pct_chg","vol","amount"],
			"items":[["600519.SH","20240315",1700.5,1710,10.01,12000,500000.25]]}}`
	})

	rows, err := client.Daily(context.Background(), WithTradeDate(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "600519.SH", rows[0].TSCode)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rows[0].TradeDate)
	require.NotNil(t, rows[0].Close)
	assert.Equal(t, 1700.5, *rows[0].Close)
	require.NotNil(t, rows[0].PctChg)
	assert.Equal(t, 10.01, *rows[0].PctChg)
	assert.Equal(t, 500000.25, rows[0].Amount)
	assert.Zero(t, rows[0].Open, "fields missing from the table stay zero")
}

func TestDaily_NullPricesStayNil(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req request) string {
		return `{"code":0,"data":{"fields":["ts_code","trade_date","close","pct_chg","vol"],
			"items":[["600001.SH","20240315",null,null,0]]}}`
	})

	rows, err := client.Daily(context.Background(), WithTradeDate(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Close)
	assert.Nil(t, rows[0].PctChg)
}

func TestStockBasic(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req request) string {
		assert.Equal(t, "stock_basic", req.APIName)
		assert.Equal(t, "L", req.Params["list_status"])
		return `{"code":0,"data":{"fields":["ts_code","name","industry"],"items":[["000001.SZ","平安银行","银行"],["300750.SZ","宁德时代",null]]}}`
	})

	rows, err := client.StockBasic(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "平安银行", rows[0].Name)
	assert.Equal(t, "银行", rows[0].Industry)
	assert.Empty(t, rows[1].Industry)
}

func TestTradingDays_SortedAndFiltered(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req request) string {
		assert.Equal(t, "trade_cal", req.APIName)
		assert.Equal(t, "20240311", req.Params["start_date"])
		assert.Equal(t, "20240317", req.Params["end_date"])
		return `{"code":0,"data":{"fields":["exchange","cal_date","is_open"],"items":[
			["SSE","20240317",0],["SSE","20240316",0],["SSE","20240315",1],["SSE","20240314",1],["SSE","20240313",1]]}}`
	})

	start := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	days, err := client.TradingDays(context.Background(), start, start.AddDate(0, 0, 6))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, 13, days[0].Day())
	assert.Equal(t, 15, days[2].Day())
}

func TestFinaIndicator_Values(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req request) string {
		assert.Equal(t, "fina_indicator", req.APIName)
		assert.Equal(t, "600519.SH", req.Params["ts_code"])
		return `{"code":0,"data":{"fields":["ts_code","end_date","eps","roe","netprofit_yoy"],"items":[["600519.SH","20231231",59.49,34.19,19.16]]}}`
	})

	rows, err := client.FinaIndicator(context.Background(), "600519.SH")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	values := rows[0].Values()
	assert.Equal(t, 59.49, values["eps"])
	assert.Equal(t, 34.19, values["roe"])
	assert.Equal(t, 19.16, values["netprofit_yoy"])
	assert.NotContains(t, values, "gross_margin")
}

func TestAPIErrors(t *testing.T) {
	t.Run("non-zero code", func(t *testing.T) {
		client := newTestClient(t, func(t *testing.T, req request) string {
			return `{"code":2002,"msg":"token invalid","data":null}`
		})
		_, err := client.Daily(context.Background())
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 2002, apiErr.Code)
		assert.Equal(t, "daily", apiErr.APIName)
	})

	t.Run("quota exceeded", func(t *testing.T) {
		client := newTestClient(t, func(t *testing.T, req request) string {
			return `{"code":40203,"msg":"too many calls"}`
		})
		_, err := client.StockBasic(context.Background())
		var rlErr *RateLimitError
		assert.True(t, errors.As(err, &rlErr))
	})

	t.Run("http status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}))
		defer server.Close()

		client := NewClient("t", WithBaseURL(server.URL))
		_, err := client.TradingDays(context.Background(), time.Now(), time.Now())
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "upstream down", apiErr.Message)
	})
}

func TestTableRecords_Nil(t *testing.T) {
	var table *Table
	assert.Nil(t, table.Records())
}
