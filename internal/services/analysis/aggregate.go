package analysis

import (
	"strings"
	"time"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
	"github.com/stock-programmer/limit-up-review/internal/signals"
)

// Aggregate rolls a batch of analyses into a report. Analyses without an
// industry are counted in UnknownIndustryCount and kept out of the
// distribution, so the distribution sums to the analyses with a known industry.
func Aggregate(tradeDate time.Time, analyses []models.StockAnalysis) models.AnalysisReport {
	if analyses == nil {
		analyses = make([]models.StockAnalysis, 0)
	}

	report := models.AnalysisReport{
		TradeDate:               common.DateOnly(tradeDate),
		Outcome:                 models.OutcomeFor(len(analyses)),
		Analyses:                analyses,
		IndustryDistribution:    make(map[string]int),
		AnnouncementThemeCounts: make(map[models.Category]int),
	}

	for i := range analyses {
		a := &analyses[i]

		if industry := strings.TrimSpace(a.Industry()); industry != "" {
			report.IndustryDistribution[industry]++
		} else {
			report.UnknownIndustryCount++
		}

		for _, ann := range a.RecentAnnouncements {
			category := ann.Category
			if category == "" {
				category = models.CategoryOther
			}
			report.AnnouncementThemeCounts[category]++
		}
	}

	report.Summary = Summarize(analyses)
	return report
}

// Summarize computes the batch statistics of a run.
func Summarize(analyses []models.StockAnalysis) models.Summary {
	summary := models.Summary{TotalStocks: len(analyses)}
	if len(analyses) == 0 {
		return summary
	}

	changes := make([]float64, 0, len(analyses))
	turnovers := make([]float64, 0, len(analyses))
	for i := range analyses {
		a := &analyses[i]
		changes = append(changes, a.MarketData.ChangePct)
		turnovers = append(turnovers, a.MarketData.TurnoverAmount)
		if a.Insights.PositiveNewsCount > 0 {
			summary.WithPositiveNews++
		}
		if a.Partial() {
			summary.PartialCount++
		}
	}

	summary.AvgChangePct = signals.Round(signals.Avg(changes), 2)
	summary.TotalTurnover = signals.Round(signals.Sum(turnovers), 2)
	summary.PositiveNewsRatioPct = signals.Round(float64(summary.WithPositiveNews)/float64(len(analyses))*100, 1)
	return summary
}
