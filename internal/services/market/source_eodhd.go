package market

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/eodhd"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Compile-time assertions
var (
	_ interfaces.MarketDataSource           = (*EODHDSource)(nil)
	_ interfaces.FinancialIndicatorProvider = (*EODHDSource)(nil)
)

// EODHDSource reads the Shanghai and Shenzhen markets from EODHD bulk data.
// Turnover is derived as close × volume; money values are in CNY and volume is
// in shares.
type EODHDSource struct {
	client    *eodhd.Client
	exchanges []string
	logger    arbor.ILogger
}

// NewEODHDSource creates an EODHD-backed market source for the given exchange
// codes (e.g. "SHG", "SHE").
func NewEODHDSource(client *eodhd.Client, exchanges []string, logger arbor.ILogger) *EODHDSource {
	if len(exchanges) == 0 {
		exchanges = []string{"SHG", "SHE"}
	}
	return &EODHDSource{client: client, exchanges: exchanges, logger: logger}
}

// Name implements interfaces.MarketDataSource.
func (s *EODHDSource) Name() string { return SourceEODHD }

// FetchMarketRows implements interfaces.MarketDataSource. A failure on any
// exchange fails the whole fetch; a partial market would distort every screen.
func (s *EODHDSource) FetchMarketRows(ctx context.Context, date time.Time) ([]models.RawRow, error) {
	want := date.Format("2006-01-02")
	rows := make([]models.RawRow, 0)

	for _, exchange := range s.exchanges {
		bulk, err := s.client.GetBulkEOD(ctx, exchange, date)
		if err != nil {
			return nil, fmt.Errorf("eodhd bulk %s %s: %w", exchange, want, err)
		}

		stale := 0
		for _, item := range bulk {
			// EODHD answers a closed date with the previous session.
			if item.DateStr != want {
				stale++
				continue
			}

			exch := item.Exchange
			if exch == "" {
				exch = exchange
			}
			row := models.RawRow{
				"security_id": item.Code + "." + exch,
				"name":        item.Name,
				"high":        item.High,
				"volume":      item.Volume,
			}
			// A null close or change_p leaves the key out and the normalizer drops the row.
			if item.Close != nil {
				row["close"] = *item.Close
				row["turnover_amount"] = *item.Close * float64(item.Volume)
			}
			if item.ChangePct != "" {
				row["change_pct"] = item.ChangePct
			}
			if item.MarketCap != "" {
				row["market_cap"] = item.MarketCap
			}
			rows = append(rows, row)
		}

		if stale > 0 {
			s.logger.Debug().Str("exchange", exchange).Int("stale", stale).Str("date", want).Msg("Skipped bulk rows from another session")
		}
	}

	return rows, nil
}

// FetchDailySeries implements interfaces.MarketDataSource.
func (s *EODHDSource) FetchDailySeries(ctx context.Context, securityID string, start, end time.Time) ([]models.DailyClose, error) {
	sec, err := common.ParseSecurityID(securityID)
	if err != nil {
		return nil, err
	}
	symbol := sec.EODHDSymbol()
	if symbol == "" {
		return nil, fmt.Errorf("security %s is not listed on EODHD", securityID)
	}

	data, err := s.client.GetEOD(ctx, symbol, eodhd.WithDateRange(start, end), eodhd.WithOrder("a"))
	if err != nil {
		return nil, fmt.Errorf("eodhd eod %s: %w", symbol, err)
	}

	closes := make([]models.DailyClose, 0, len(data))
	for _, d := range data {
		if d.Date.IsZero() {
			continue
		}
		closes = append(closes, models.DailyClose{Date: d.Date, Close: d.Close})
	}
	return closes, nil
}

// FetchTradingCalendar returns the weekdays in [start, end] that are not
// holidays of the first configured exchange.
func (s *EODHDSource) FetchTradingCalendar(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	details, err := s.client.GetExchangeDetails(ctx, s.exchanges[0], start, end)
	if err != nil {
		return nil, fmt.Errorf("eodhd exchange details %s: %w", s.exchanges[0], err)
	}

	holidays := make(map[time.Time]struct{})
	for _, h := range details.HolidayDates() {
		holidays[common.DateOnly(h)] = struct{}{}
	}

	days := make([]time.Time, 0)
	for d := common.DateOnly(start); !d.After(common.DateOnly(end)); d = d.AddDate(0, 0, 1) {
		if !common.IsWorkingDay(d) {
			continue
		}
		if _, closed := holidays[d]; closed {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}

// FetchFinancialIndicators returns EODHD highlight and valuation figures. EODHD
// reports only the latest period, so period is ignored.
func (s *EODHDSource) FetchFinancialIndicators(ctx context.Context, securityID string, period time.Time) (map[string]float64, error) {
	sec, err := common.ParseSecurityID(securityID)
	if err != nil {
		return nil, err
	}
	symbol := sec.EODHDSymbol()
	if symbol == "" {
		return nil, fmt.Errorf("security %s is not listed on EODHD", securityID)
	}

	fundamentals, err := s.client.GetFundamentals(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("eodhd fundamentals %s: %w", symbol, err)
	}
	return fundamentals.Indicators(), nil
}
