// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"time"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

// MarketDataSource supplies daily market data for the whole A-share market.
type MarketDataSource interface {
	// Name identifies the source in logs and cache keys (e.g. "tushare").
	Name() string

	// FetchMarketRows returns one raw row per security for a trading date.
	// A non-trading date returns an empty slice and no error.
	FetchMarketRows(ctx context.Context, date time.Time) ([]models.RawRow, error)

	// FetchDailySeries returns the close series of one security, oldest first.
	FetchDailySeries(ctx context.Context, securityID string, start, end time.Time) ([]models.DailyClose, error)

	// FetchTradingCalendar returns the open trading dates in [start, end], ascending.
	FetchTradingCalendar(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// FinancialIndicatorProvider supplies headline financial indicators of one security.
type FinancialIndicatorProvider interface {
	// FetchFinancialIndicators returns named indicators (e.g. "roe", "netprofit_yoy")
	// for the latest period ending on or before period.
	FetchFinancialIndicators(ctx context.Context, securityID string, period time.Time) (map[string]float64, error)
}
