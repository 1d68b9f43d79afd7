// Package analysis builds per-security limit-up analyses and rolls them into
// a report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
	"github.com/stock-programmer/limit-up-review/internal/services/announcements"
	"github.com/stock-programmer/limit-up-review/internal/worker"
)

// LimitUpSource selects the securities to analyze for a date.
type LimitUpSource interface {
	LimitUpRows(ctx context.Context, date time.Time) ([]models.MarketRow, models.Outcome, error)
}

// Collaborators are the optional data sources of an analysis. A nil field
// marks the matching section not_configured.
type Collaborators struct {
	Announcements interfaces.AnnouncementProvider
	Financials    interfaces.FinancialIndicatorProvider
	Summarizer    interfaces.BusinessSummarizer
	Reports       interfaces.ReportLocator
}

// Options configures the Analyzer.
type Options struct {
	MaxStocks    int
	Concurrency  int
	LookbackDays int
	ReasonsTopK  int
	// Timeout bounds all collaborator calls of one security.
	Timeout time.Duration
}

// Analyzer fans out one analysis per limit-up security on a bounded pool and
// aggregates the batch once every analysis has finished.
type Analyzer struct {
	source     LimitUpSource
	collab     Collaborators
	correlator *announcements.Correlator
	pool       *worker.Pool
	opts       Options
	logger     arbor.ILogger
	now        func() time.Time
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(source LimitUpSource, collab Collaborators, classifier *announcements.Classifier, opts Options, logger arbor.ILogger) *Analyzer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	return &Analyzer{
		source: source,
		collab: collab,
		correlator: announcements.NewCorrelator(classifier, announcements.CorrelatorOptions{
			LookbackDays: opts.LookbackDays,
			TopK:         opts.ReasonsTopK,
		}),
		pool:   worker.NewPool(logger, opts.Concurrency),
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Run analyzes the limit-up securities of date. It never returns an error;
// failures of the market source are reported through Outcome.
func (a *Analyzer) Run(ctx context.Context, date time.Time) *models.AnalysisReport {
	date = common.DateOnly(date)

	rows, outcome, err := a.source.LimitUpRows(ctx, date)
	if err != nil || outcome == models.OutcomeNonTradingDay || outcome == models.OutcomeSourceFailed {
		report := Aggregate(date, nil)
		report.RunID = common.NewRunID()
		report.GeneratedAt = a.now()
		report.Outcome = outcome
		if err != nil {
			report.Err = err.Error()
			a.logger.Error().Err(err).Str("date", common.FormatTradeDate(date)).Msg("Limit-up selection failed")
		}
		return &report
	}

	return a.AnalyzeRows(ctx, date, rows)
}

// AnalyzeRows analyzes the given rows, at most MaxStocks of them, in input order.
func (a *Analyzer) AnalyzeRows(ctx context.Context, date time.Time, rows []models.MarketRow) *models.AnalysisReport {
	date = common.DateOnly(date)
	runID := common.NewRunID()

	if a.opts.MaxStocks > 0 && len(rows) > a.opts.MaxStocks {
		a.logger.Info().
			Int("limit_up", len(rows)).
			Int("max_stocks", a.opts.MaxStocks).
			Msg("Analyzing the first securities only")
		rows = rows[:a.opts.MaxStocks]
	}

	a.logger.Info().
		Str("run_id", runID).
		Str("date", common.FormatTradeDate(date)).
		Int("securities", len(rows)).
		Int("concurrency", a.pool.Size()).
		Msg("Starting limit-up analysis")

	analyses := make([]models.StockAnalysis, len(rows))
	errs := a.pool.Run(ctx, "analyze", len(rows), func(ctx context.Context, i int) error {
		analyses[i] = a.AnalyzeSecurity(ctx, date, rows[i])
		return nil
	})

	// A failed or skipped unit still yields a record for its security.
	for i, err := range errs {
		if err != nil {
			analyses[i] = a.failedAnalysis(date, rows[i], err)
		}
	}

	report := Aggregate(date, analyses)
	report.RunID = runID
	report.GeneratedAt = a.now()

	a.logger.Info().
		Str("run_id", runID).
		Int("analyses", len(analyses)).
		Int("partial", report.Summary.PartialCount).
		Int("with_positive_news", report.Summary.WithPositiveNews).
		Msg("Limit-up analysis complete")
	return &report
}

// AnalyzeSecurity builds the analysis of one security. Collaborator failures
// mark their section unavailable; the analysis is always returned.
func (a *Analyzer) AnalyzeSecurity(ctx context.Context, date time.Time, row models.MarketRow) models.StockAnalysis {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	analysis := newAnalysis(date, row)
	logger := a.logger.WithCorrelationId(row.SecurityID)

	// Announcements and insights
	var anns []models.Announcement
	if a.collab.Announcements == nil {
		analysis.Sections[models.SectionRecentAnnouncements] = models.SectionNotConfigured
	} else {
		start, end := a.correlator.Window(date)
		fetched, err := a.collab.Announcements.FetchAnnouncements(ctx, row.SecurityID, start, end)
		if err != nil {
			markUnavailable(&analysis, models.SectionRecentAnnouncements, err)
			logger.Warn().Err(err).Str("security_id", row.SecurityID).Msg("Announcements unavailable")
		} else {
			anns = fetched
			analysis.Sections[models.SectionRecentAnnouncements] = models.SectionOK
		}
	}
	correlation := a.correlator.Correlate(date, anns)
	analysis.RecentAnnouncements = correlation.Announcements
	analysis.Insights = correlation.Insights

	// Financial indicators
	if a.collab.Financials == nil {
		analysis.Sections[models.SectionFinancialData] = models.SectionNotConfigured
	} else {
		indicators, err := a.collab.Financials.FetchFinancialIndicators(ctx, row.SecurityID, date)
		if err != nil {
			markUnavailable(&analysis, models.SectionFinancialData, err)
			logger.Warn().Err(err).Str("security_id", row.SecurityID).Msg("Financial data unavailable")
		} else {
			analysis.FinancialData = indicators
			analysis.Sections[models.SectionFinancialData] = models.SectionOK
		}
	}

	// Business summary
	if a.collab.Summarizer == nil {
		analysis.Sections[models.SectionBusinessInfo] = models.SectionNotConfigured
	} else {
		info, err := a.summarize(ctx, date, row.SecurityID)
		if err != nil {
			markUnavailable(&analysis, models.SectionBusinessInfo, err)
			logger.Warn().Err(err).Str("security_id", row.SecurityID).Msg("Business summary unavailable")
		} else {
			analysis.BusinessInfo = info
			analysis.Sections[models.SectionBusinessInfo] = models.SectionOK
		}
	}

	logger.Debug().
		Str("security_id", row.SecurityID).
		Int("announcements", len(analysis.RecentAnnouncements)).
		Bool("correlated", analysis.Insights.AnnouncementCorrelation).
		Bool("partial", analysis.Partial()).
		Msg("Security analyzed")
	return analysis
}

// summarize locates the latest periodic report, when a locator is configured,
// and hands its ref to the summarizer. A missing report leaves the ref empty.
func (a *Analyzer) summarize(ctx context.Context, date time.Time, securityID string) (*models.BusinessInfo, error) {
	ref := ""
	if a.collab.Reports != nil {
		found, err := a.collab.Reports.LatestPeriodicReport(ctx, securityID, date)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Debug().Err(err).Str("security_id", securityID).Msg("No periodic report located")
		}
		ref = found
	}

	info, err := a.collab.Summarizer.SummarizeBusiness(ctx, securityID, ref)
	if err != nil {
		return nil, err
	}
	if info.IsEmpty() {
		return nil, errors.New("summary is empty")
	}
	return info, nil
}

func newAnalysis(date time.Time, row models.MarketRow) models.StockAnalysis {
	return models.StockAnalysis{
		SecurityID:          row.SecurityID,
		Name:                row.Name,
		EventDate:           date,
		MarketData:          row,
		RecentAnnouncements: make([]models.Announcement, 0),
		Insights: models.Insights{
			PossibleReasons: make([]string, 0),
			Reasons:         make([]models.Reason, 0),
		},
		Sections: make(map[models.Section]models.SectionStatus),
	}
}

func markUnavailable(analysis *models.StockAnalysis, section models.Section, err error) {
	analysis.Sections[section] = models.SectionUnavailable
	if analysis.Errors == nil {
		analysis.Errors = make(map[models.Section]string)
	}
	analysis.Errors[section] = err.Error()
}

// failedAnalysis is the record of a security whose analysis did not complete.
// Configured sections are unavailable, the others not_configured.
func (a *Analyzer) failedAnalysis(date time.Time, row models.MarketRow, err error) models.StockAnalysis {
	a.logger.Error().Err(err).Str("security_id", row.SecurityID).Msg("Security analysis failed")

	analysis := newAnalysis(date, row)
	analysis.Insights.ThemeDriven = true
	configured := map[models.Section]bool{
		models.SectionRecentAnnouncements: a.collab.Announcements != nil,
		models.SectionFinancialData:       a.collab.Financials != nil,
		models.SectionBusinessInfo:        a.collab.Summarizer != nil,
	}
	for section, ok := range configured {
		if ok {
			markUnavailable(&analysis, section, fmt.Errorf("analysis aborted: %w", err))
		} else {
			analysis.Sections[section] = models.SectionNotConfigured
		}
	}
	return analysis
}
