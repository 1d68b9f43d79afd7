package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
	"github.com/stock-programmer/limit-up-review/internal/tushare"
)

// Compile-time assertions
var (
	_ interfaces.MarketDataSource           = (*TushareSource)(nil)
	_ interfaces.FinancialIndicatorProvider = (*TushareSource)(nil)
)

// TushareSource reads the whole market from Tushare Pro. Rows carry Tushare's
// native units: amount in thousands and total_mv in ten-thousands of CNY.
type TushareSource struct {
	client *tushare.Client
	logger arbor.ILogger

	mu    sync.Mutex
	names map[string]string
}

// NewTushareSource creates a Tushare-backed market source.
func NewTushareSource(client *tushare.Client, logger arbor.ILogger) *TushareSource {
	return &TushareSource{client: client, logger: logger}
}

// Name implements interfaces.MarketDataSource.
func (s *TushareSource) Name() string { return SourceTushare }

// FetchMarketRows merges daily bars, daily_basic market caps and listed names.
// daily_basic and stock_basic are best effort; daily is required.
func (s *TushareSource) FetchMarketRows(ctx context.Context, date time.Time) ([]models.RawRow, error) {
	bars, err := s.client.Daily(ctx, tushare.WithTradeDate(date))
	if err != nil {
		return nil, fmt.Errorf("tushare daily %s: %w", common.FormatTradeDate(date), err)
	}
	if len(bars) == 0 {
		return []models.RawRow{}, nil
	}

	marketCaps := make(map[string]float64)
	basics, err := s.client.DailyBasic(ctx, tushare.WithTradeDate(date))
	if err != nil {
		s.logger.Warn().Err(err).Str("trade_date", common.FormatTradeDate(date)).Msg("daily_basic unavailable, market caps missing")
	}
	for _, b := range basics {
		marketCaps[b.TSCode] = b.TotalMV
	}

	names := s.stockNames(ctx)

	rows := make([]models.RawRow, 0, len(bars))
	for _, bar := range bars {
		row := models.RawRow{
			"ts_code": bar.TSCode,
			"name":    names[bar.TSCode],
			"high":    bar.High,
			"vol":     bar.Vol,
			"amount":  bar.Amount,
		}
		// Null columns stay out of the row so the normalizer drops and counts it.
		if bar.Close != nil {
			row["close"] = *bar.Close
		}
		if bar.PctChg != nil {
			row["pct_chg"] = *bar.PctChg
		}
		if mv, ok := marketCaps[bar.TSCode]; ok {
			row["total_mv"] = mv
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// stockNames loads the listed names once per process. A failed load is retried
// on the next call.
func (s *TushareSource) stockNames(ctx context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.names != nil {
		return s.names
	}

	listed, err := s.client.StockBasic(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("stock_basic unavailable, names missing")
		return map[string]string{}
	}

	s.names = make(map[string]string, len(listed))
	for _, l := range listed {
		s.names[l.TSCode] = l.Name
	}
	return s.names
}

// FetchDailySeries implements interfaces.MarketDataSource.
func (s *TushareSource) FetchDailySeries(ctx context.Context, securityID string, start, end time.Time) ([]models.DailyClose, error) {
	bars, err := s.client.Daily(ctx, tushare.WithSecurity(common.NormalizeSecurityID(securityID)), tushare.WithDateRange(start, end))
	if err != nil {
		return nil, fmt.Errorf("tushare daily series %s: %w", securityID, err)
	}

	closes := make([]models.DailyClose, 0, len(bars))
	for _, bar := range bars {
		if bar.TradeDate.IsZero() || bar.Close == nil {
			continue
		}
		closes = append(closes, models.DailyClose{Date: bar.TradeDate, Close: *bar.Close})
	}
	sort.Slice(closes, func(i, j int) bool { return closes[i].Date.Before(closes[j].Date) })
	return closes, nil
}

// FetchTradingCalendar implements interfaces.MarketDataSource.
func (s *TushareSource) FetchTradingCalendar(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	days, err := s.client.TradingDays(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("tushare trade_cal: %w", err)
	}
	return days, nil
}

// FetchFinancialIndicators returns the latest reported period ending on or before period.
func (s *TushareSource) FetchFinancialIndicators(ctx context.Context, securityID string, period time.Time) (map[string]float64, error) {
	rows, err := s.client.FinaIndicator(ctx, common.NormalizeSecurityID(securityID))
	if err != nil {
		return nil, fmt.Errorf("tushare fina_indicator %s: %w", securityID, err)
	}

	var latest *tushare.FinaIndicator
	for i := range rows {
		r := &rows[i]
		if r.EndDate.IsZero() || r.EndDate.After(period) {
			continue
		}
		if latest == nil || r.EndDate.After(latest.EndDate) {
			latest = r
		}
	}
	if latest == nil {
		return map[string]float64{}, nil
	}
	return latest.Values(), nil
}
