package report

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// LogAnalysisSummary prints the run summary and one line per stock.
func LogAnalysisSummary(logger arbor.ILogger, report *models.AnalysisReport) {
	s := report.Summary
	event := logger.Info().
		Str("trade_date", common.FormatTradeDate(report.TradeDate)).
		Str("outcome", string(report.Outcome)).
		Int("stocks", s.TotalStocks).
		Float64("avg_change_pct", s.AvgChangePct).
		Float64("total_turnover_yi", toYi(s.TotalTurnover)).
		Int("with_positive_news", s.WithPositiveNews).
		Float64("positive_news_ratio_pct", s.PositiveNewsRatioPct).
		Int("partial", s.PartialCount)
	if report.Err != "" {
		event = event.Str("error", report.Err)
	}
	event.Msg("Limit-up review")

	for _, industry := range sortedCounts(report.IndustryDistribution) {
		logger.Info().Str("industry", industry).Int("count", report.IndustryDistribution[industry]).Msg("Industry")
	}

	for i := range report.Analyses {
		a := &report.Analyses[i]
		logger.Info().
			Str("security_id", a.SecurityID).
			Str("name", a.Name).
			Float64("change_pct", a.MarketData.ChangePct).
			Str("industry", a.Industry()).
			Str("reasons", strings.Join(a.Insights.PossibleReasons, "; ")).
			Bool("partial", a.Partial()).
			Msg("Stock")
	}
}

// LogScreens prints the size of every screen result.
func LogScreens(logger arbor.ILogger, report *models.ScreenReport) {
	logger.Info().
		Str("trade_date", common.FormatTradeDate(report.TradeDate)).
		Str("outcome", string(report.Outcome)).
		Int("rows", report.RowCount).
		Int("dropped", report.Dropped).
		Msg("Screening")
	for _, result := range report.Results {
		logger.Info().
			Str("rule", result.Rule).
			Str("outcome", string(result.Outcome)).
			Int("matches", len(result.Rows)).
			Str("ids", strings.Join(result.IDs(), ",")).
			Msg("Screen")
	}
}

// LogRankings prints the leaders of every return window.
func LogRankings(logger arbor.ILogger, rankings []models.ReturnRanking) {
	for _, ranking := range rankings {
		event := logger.Info().
			Str("window", ranking.Window).
			Str("outcome", string(ranking.Outcome)).
			Int("rows", len(ranking.Rows)).
			Int("excluded", ranking.Excluded)
		if len(ranking.Rows) > 0 {
			top := ranking.Rows[0]
			event = event.Str("leader", top.SecurityID).Float64("leader_return_pct", top.CumulativeReturnPct)
		}
		event.Msg("Ranking")
	}
}
