package screening

import (
	"sort"
	"time"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Rule names as they appear in results and reports.
const (
	RuleLimitUp         = "limit_up"
	RuleTurnoverGain    = "turnover_gain"
	RuleTurnoverDecline = "turnover_decline"
	RuleTurnoverLimitUp = "turnover_limit_up"
	RuleNewHighLargeCap = "new_high_large_cap"
)

// LimitUpThresholds holds the minimum change percent that counts as a
// limit-up close on each board.
type LimitUpThresholds struct {
	Standard       float64
	HighVolatility float64
	Beijing        float64
	RiskWarning    float64
}

// DefaultLimitUpThresholds returns the thresholds for the 10/20/30/5 percent limits.
func DefaultLimitUpThresholds() LimitUpThresholds {
	return LimitUpThresholds{
		Standard:       9.9,
		HighVolatility: 19.9,
		Beijing:        29.9,
		RiskWarning:    4.9,
	}
}

// ThresholdsFromConfig builds thresholds from the [screening.limit_up] section.
func ThresholdsFromConfig(cfg common.LimitUpConfig) LimitUpThresholds {
	return LimitUpThresholds{
		Standard:       cfg.Standard,
		HighVolatility: cfg.HighVolatility,
		Beijing:        cfg.Beijing,
		RiskWarning:    cfg.RiskWarning,
	}
}

// For returns the threshold of a board. Unknown boards use the standard threshold.
func (t LimitUpThresholds) For(board models.Board) float64 {
	switch board {
	case models.BoardHighVolatility:
		return t.HighVolatility
	case models.BoardBeijing:
		return t.Beijing
	case models.BoardRiskWarning:
		return t.RiskWarning
	default:
		return t.Standard
	}
}

// IsLimitUp reports whether a row closed at or above its board threshold.
func (t LimitUpThresholds) IsLimitUp(row models.MarketRow) bool {
	return row.ChangePct >= t.For(row.Board)
}

// RuleParams are the turnover and market cap screen parameters.
// Amounts are thousands of CNY.
type RuleParams struct {
	MinAmount     float64
	MinGainPct    float64
	MinDeclinePct float64
	MinMarketCap  float64
	TopK          int // NewHighLargeCap only; <= 0 keeps every row
}

// DefaultRuleParams returns 400M CNY turnover, 5% moves, 30B CNY market cap, top 30.
func DefaultRuleParams() RuleParams {
	return RuleParams{
		MinAmount:     400000,
		MinGainPct:    5,
		MinDeclinePct: 5,
		MinMarketCap:  30000000,
		TopK:          DefaultTopK,
	}
}

// RuleParamsFromConfig builds parameters from the [screening] section.
func RuleParamsFromConfig(cfg common.ScreeningConfig) RuleParams {
	return RuleParams{
		MinAmount:     cfg.MinAmount,
		MinGainPct:    cfg.MinGainPct,
		MinDeclinePct: cfg.MinDeclinePct,
		MinMarketCap:  cfg.MinMarketCap,
		TopK:          cfg.TopK,
	}
}

// LimitUp selects rows at or above the limit-up threshold of their board,
// sorted by security id ascending.
func LimitUp(rows []models.MarketRow, thresholds LimitUpThresholds) []models.MarketRow {
	out := filter(rows, thresholds.IsLimitUp)
	sortByID(out)
	return out
}

// TurnoverGain selects rows with turnover >= MinAmount and a gain above
// MinGainPct, sorted by turnover descending.
func TurnoverGain(rows []models.MarketRow, p RuleParams) []models.MarketRow {
	out := filter(rows, func(r models.MarketRow) bool {
		return r.TurnoverAmount >= p.MinAmount && r.ChangePct > p.MinGainPct
	})
	sortByTurnover(out)
	return out
}

// TurnoverDecline selects rows with turnover >= MinAmount and a decline beyond
// MinDeclinePct, sorted by turnover descending.
func TurnoverDecline(rows []models.MarketRow, p RuleParams) []models.MarketRow {
	out := filter(rows, func(r models.MarketRow) bool {
		return r.TurnoverAmount >= p.MinAmount && r.ChangePct < -p.MinDeclinePct
	})
	sortByTurnover(out)
	return out
}

// TurnoverLimitUp selects limit-up rows with turnover >= MinAmount, sorted by
// turnover descending.
func TurnoverLimitUp(rows []models.MarketRow, p RuleParams, thresholds LimitUpThresholds) []models.MarketRow {
	out := filter(rows, func(r models.MarketRow) bool {
		return r.TurnoverAmount >= p.MinAmount && thresholds.IsLimitUp(r)
	})
	sortByTurnover(out)
	return out
}

// NewHighLargeCap selects new-high rows with market cap >= MinMarketCap,
// sorted by market cap descending and truncated to TopK.
func NewHighLargeCap(rows []models.MarketRow, p RuleParams) []models.MarketRow {
	out := filter(rows, func(r models.MarketRow) bool {
		return r.IsNewHigh && r.MarketCap >= p.MinMarketCap
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MarketCap != out[j].MarketCap {
			return out[i].MarketCap > out[j].MarketCap
		}
		return out[i].SecurityID < out[j].SecurityID
	})
	if p.TopK > 0 && len(out) > p.TopK {
		out = out[:p.TopK]
	}
	return out
}

// ScreenAll runs every rule over one trading date's rows.
func ScreenAll(tradeDate time.Time, rows []models.MarketRow, p RuleParams, thresholds LimitUpThresholds) []models.RankedResult {
	selections := []struct {
		rule string
		rows []models.MarketRow
	}{
		{RuleLimitUp, LimitUp(rows, thresholds)},
		{RuleTurnoverGain, TurnoverGain(rows, p)},
		{RuleTurnoverDecline, TurnoverDecline(rows, p)},
		{RuleTurnoverLimitUp, TurnoverLimitUp(rows, p, thresholds)},
		{RuleNewHighLargeCap, NewHighLargeCap(rows, p)},
	}

	results := make([]models.RankedResult, 0, len(selections))
	for _, s := range selections {
		results = append(results, models.RankedResult{
			Rule:      s.rule,
			TradeDate: tradeDate,
			Outcome:   models.OutcomeFor(len(s.rows)),
			Rows:      s.rows,
		})
	}
	return results
}

// filter always returns a non-nil slice so empty results serialize as [].
func filter(rows []models.MarketRow, keep func(models.MarketRow) bool) []models.MarketRow {
	out := make([]models.MarketRow, 0)
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func sortByID(rows []models.MarketRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SecurityID < rows[j].SecurityID
	})
}

func sortByTurnover(rows []models.MarketRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TurnoverAmount != rows[j].TurnoverAmount {
			return rows[i].TurnoverAmount > rows[j].TurnoverAmount
		}
		return rows[i].SecurityID < rows[j].SecurityID
	})
}
