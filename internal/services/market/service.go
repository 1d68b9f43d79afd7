// Package market turns a market data source into screen reports and return
// rankings. It owns the snapshot cache and the historical new-high check.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
	"github.com/stock-programmer/limit-up-review/internal/services/screening"
)

// Source names.
const (
	SourceTushare = "tushare"
	SourceEODHD   = "eodhd"
)

// Options configures the Service. Zero values fall back to the defaults of
// the screening package; a negative RankingTopK disables truncation.
type Options struct {
	Normalize       screening.NormalizeOptions
	Params          screening.RuleParams
	Thresholds      screening.LimitUpThresholds
	NewHighLookback int
	RankingTopK     int
}

// Snapshot is the normalized market of one trading date.
type Snapshot struct {
	Date        time.Time
	Rows        []models.MarketRow
	Dropped     int
	DropReasons map[screening.DropReason]int
	// NewHighErr is set when the lookback history could not be loaded.
	// IsNewHigh is then false on every row.
	NewHighErr error
}

// Service runs screens and rankings against one MarketDataSource.
type Service struct {
	source    interfaces.MarketDataSource
	snapshots interfaces.SnapshotStorage
	opts      Options
	logger    arbor.ILogger
	now       func() time.Time
}

// NewService creates a market service. snapshots may be nil.
func NewService(source interfaces.MarketDataSource, snapshots interfaces.SnapshotStorage, opts Options, logger arbor.ILogger) *Service {
	if opts.Params == (screening.RuleParams{}) {
		opts.Params = screening.DefaultRuleParams()
	}
	if opts.Thresholds == (screening.LimitUpThresholds{}) {
		opts.Thresholds = screening.DefaultLimitUpThresholds()
	}
	if opts.RankingTopK == 0 {
		opts.RankingTopK = screening.DefaultTopK
	}
	return &Service{
		source:    source,
		snapshots: snapshots,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Source returns the underlying market data source.
func (s *Service) Source() interfaces.MarketDataSource {
	return s.source
}

// IsTradingDay asks the source calendar whether date is a trading day.
func (s *Service) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	date = common.DateOnly(date)
	days, err := s.source.FetchTradingCalendar(ctx, date, date)
	if err != nil {
		return false, err
	}
	for _, d := range days {
		if common.DateOnly(d).Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

// RawRows returns the source rows of one date, through the snapshot cache for
// dates whose session is final and strictly before today.
func (s *Service) RawRows(ctx context.Context, date time.Time) ([]models.RawRow, error) {
	date = common.DateOnly(date)
	cacheable := s.cacheable(date)

	if cacheable {
		rows, err := s.snapshots.GetSnapshot(ctx, s.source.Name(), date)
		if err == nil {
			return rows, nil
		}
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("date", common.FormatTradeDate(date)).Msg("Snapshot read failed, fetching from source")
		}
	}

	rows, err := s.source.FetchMarketRows(ctx, date)
	if err != nil {
		return nil, err
	}

	if cacheable && len(rows) > 0 {
		if err := s.snapshots.SaveSnapshot(ctx, s.source.Name(), date, rows); err != nil {
			s.logger.Warn().Err(err).Str("date", common.FormatTradeDate(date)).Msg("Failed to cache snapshot")
		}
	}
	return rows, nil
}

func (s *Service) cacheable(date time.Time) bool {
	if s.snapshots == nil {
		return false
	}
	now := s.now()
	return date.Before(common.Today(now)) && common.SessionFinal(date, now)
}

// Snapshot loads and normalizes one trading date and marks new highs.
func (s *Service) Snapshot(ctx context.Context, date time.Time) (*Snapshot, error) {
	date = common.DateOnly(date)
	raw, err := s.RawRows(ctx, date)
	if err != nil {
		return nil, err
	}

	normalized := screening.Normalize(raw, s.opts.Normalize)
	snap := &Snapshot{
		Date:        date,
		Rows:        normalized.Rows,
		Dropped:     normalized.Dropped,
		DropReasons: normalized.DropReasons,
	}

	if len(snap.Rows) > 0 && s.opts.NewHighLookback > 0 {
		snap.NewHighErr = s.markNewHighs(ctx, date, snap.Rows)
	}
	return snap, nil
}

// markNewHighs sets IsNewHigh on rows whose high reaches the maximum high of
// the previous lookback trading days. Securities without history are never new highs.
func (s *Service) markNewHighs(ctx context.Context, date time.Time, rows []models.MarketRow) error {
	lookback := s.opts.NewHighLookback
	// Two calendar days per trading day covers long holidays.
	start := date.AddDate(0, 0, -(lookback*2 + 14))
	calendar, err := s.source.FetchTradingCalendar(ctx, start, date.AddDate(0, 0, -1))
	if err != nil {
		return fmt.Errorf("new-high calendar: %w", err)
	}
	if len(calendar) > lookback {
		calendar = calendar[len(calendar)-lookback:]
	}

	histHigh := make(map[string]float64)
	for _, day := range calendar {
		raw, err := s.RawRows(ctx, day)
		if err != nil {
			return fmt.Errorf("new-high history %s: %w", common.FormatTradeDate(day), err)
		}
		for _, r := range screening.Normalize(raw, s.opts.Normalize).Rows {
			if r.High > histHigh[r.SecurityID] {
				histHigh[r.SecurityID] = r.High
			}
		}
	}

	for i := range rows {
		prev, ok := histHigh[rows[i].SecurityID]
		rows[i].IsNewHigh = ok && rows[i].High > 0 && rows[i].High >= prev
	}

	s.logger.Debug().
		Str("date", common.FormatTradeDate(date)).
		Int("history_days", len(calendar)).
		Int("securities", len(histHigh)).
		Msg("New highs marked")
	return nil
}

// ScreenDate runs every screening rule for one date. It never returns an
// error: source failures and closed markets are reported through Outcome.
func (s *Service) ScreenDate(ctx context.Context, date time.Time) models.ScreenReport {
	date = common.DateOnly(date)
	report := models.ScreenReport{TradeDate: date, Results: make([]models.RankedResult, 0)}

	open, err := s.IsTradingDay(ctx, date)
	if err != nil {
		return s.failedScreen(report, err)
	}
	if !open {
		report.Outcome = models.OutcomeNonTradingDay
		s.logger.Info().Str("date", common.FormatTradeDate(date)).Msg("Not a trading day, nothing to screen")
		return report
	}

	snap, err := s.Snapshot(ctx, date)
	if err != nil {
		return s.failedScreen(report, err)
	}

	report.RowCount = len(snap.Rows)
	report.Dropped = snap.Dropped
	report.Results = screening.ScreenAll(date, snap.Rows, s.opts.Params, s.opts.Thresholds)

	if snap.NewHighErr != nil {
		s.logger.Warn().Err(snap.NewHighErr).Msg("New-high history unavailable")
		for i := range report.Results {
			if report.Results[i].Rule == screening.RuleNewHighLargeCap {
				report.Results[i].Outcome = models.OutcomeSourceFailed
				report.Results[i].Err = snap.NewHighErr.Error()
			}
		}
	}

	report.Outcome = models.OutcomeNoMatches
	for _, r := range report.Results {
		if r.Outcome == models.OutcomeMatched {
			report.Outcome = models.OutcomeMatched
			break
		}
	}

	s.logger.Info().
		Str("date", common.FormatTradeDate(date)).
		Int("rows", report.RowCount).
		Int("dropped", report.Dropped).
		Str("outcome", string(report.Outcome)).
		Msg("Screens complete")
	return report
}

func (s *Service) failedScreen(report models.ScreenReport, err error) models.ScreenReport {
	s.logger.Error().Err(err).Str("date", common.FormatTradeDate(report.TradeDate)).Msg("Market source failed")
	report.Outcome = models.OutcomeSourceFailed
	report.Err = err.Error()
	return report
}

// LimitUpRows returns the limit-up securities of one date, sorted by id.
func (s *Service) LimitUpRows(ctx context.Context, date time.Time) ([]models.MarketRow, models.Outcome, error) {
	open, err := s.IsTradingDay(ctx, date)
	if err != nil {
		return nil, models.OutcomeSourceFailed, err
	}
	if !open {
		return []models.MarketRow{}, models.OutcomeNonTradingDay, nil
	}

	snap, err := s.Snapshot(ctx, date)
	if err != nil {
		return nil, models.OutcomeSourceFailed, err
	}
	rows := screening.LimitUp(snap.Rows, s.opts.Thresholds)
	return rows, models.OutcomeFor(len(rows)), nil
}

// windowCalendar loads enough trading days to cover window ending at end.
func (s *Service) windowCalendar(ctx context.Context, window screening.Window, end time.Time) ([]time.Time, error) {
	start := end.AddDate(0, 0, -(window.Days*2 + 14))
	if window.YTD {
		start = time.Date(end.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return s.source.FetchTradingCalendar(ctx, start, end)
}

// RankMarket ranks the whole market by compounded return over window, building
// every series from per-date snapshots.
func (s *Service) RankMarket(ctx context.Context, window screening.Window, end time.Time) models.ReturnRanking {
	end = common.DateOnly(end)

	calendar, err := s.windowCalendar(ctx, window, end)
	if err != nil {
		return s.failedRanking(window, end, err)
	}

	dates, ok := window.Span(calendar, end)
	if !ok {
		return screening.RankReturns(nil, calendar, window, end, s.opts.RankingTopK)
	}

	bySecurity := make(map[string]*models.SecuritySeries)
	order := make([]string, 0)
	for _, day := range dates {
		raw, err := s.RawRows(ctx, day)
		if err != nil {
			return s.failedRanking(window, end, err)
		}
		for _, r := range screening.Normalize(raw, s.opts.Normalize).Rows {
			series, ok := bySecurity[r.SecurityID]
			if !ok {
				series = &models.SecuritySeries{SecurityID: r.SecurityID}
				bySecurity[r.SecurityID] = series
				order = append(order, r.SecurityID)
			}
			if r.Name != "" {
				series.Name = r.Name
			}
			series.Closes = append(series.Closes, models.DailyClose{Date: day, Close: r.ClosePrice})
		}
	}

	series := make([]models.SecuritySeries, 0, len(order))
	for _, id := range order {
		series = append(series, *bySecurity[id])
	}

	ranking := screening.RankReturns(series, calendar, window, end, s.opts.RankingTopK)
	s.logger.Info().
		Str("window", ranking.Window).
		Str("end", common.FormatTradeDate(end)).
		Int("securities", len(series)).
		Int("excluded", ranking.Excluded).
		Msg("Market ranking complete")
	return ranking
}

// RankSecurities ranks an explicit list of securities. A security whose series
// cannot be fetched is counted as excluded.
func (s *Service) RankSecurities(ctx context.Context, ids []string, window screening.Window, end time.Time) models.ReturnRanking {
	end = common.DateOnly(end)

	calendar, err := s.windowCalendar(ctx, window, end)
	if err != nil {
		return s.failedRanking(window, end, err)
	}

	dates, ok := window.Span(calendar, end)
	if !ok || len(dates) == 0 {
		return screening.RankReturns(nil, calendar, window, end, s.opts.RankingTopK)
	}

	series := make([]models.SecuritySeries, 0, len(ids))
	for _, id := range ids {
		id = common.NormalizeSecurityID(id)
		closes, err := s.source.FetchDailySeries(ctx, id, dates[0], end)
		if err != nil {
			s.logger.Warn().Err(err).Str("security_id", id).Msg("Series unavailable, excluding from ranking")
			closes = nil
		}
		series = append(series, models.SecuritySeries{SecurityID: id, Closes: closes})
	}

	return screening.RankReturns(series, calendar, window, end, s.opts.RankingTopK)
}

func (s *Service) failedRanking(window screening.Window, end time.Time, err error) models.ReturnRanking {
	s.logger.Error().Err(err).Str("window", window.String()).Msg("Market source failed")
	return models.ReturnRanking{
		Window:  window.String(),
		EndDate: end,
		Outcome: models.OutcomeSourceFailed,
		Rows:    make([]models.ReturnRow, 0),
		Err:     err.Error(),
	}
}
