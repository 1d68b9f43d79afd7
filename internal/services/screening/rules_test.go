package screening

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

func row(id string, change, turnover, mcap float64) models.MarketRow {
	return models.MarketRow{
		SecurityID:     id,
		Board:          models.BoardStandard,
		ClosePrice:     10,
		ChangePct:      change,
		TurnoverAmount: turnover,
		MarketCap:      mcap,
	}
}

func sampleRows() []models.MarketRow {
	hv := row("300001.SZ", 15.0, 900000, 1000000)
	hv.Board = models.BoardHighVolatility
	hvUp := row("300002.SZ", 20.0, 300000, 1000000)
	hvUp.Board = models.BoardHighVolatility
	st := row("600003.SH", 5.0, 100, 100)
	st.Board = models.BoardRiskWarning

	return []models.MarketRow{
		row("600010.SH", 10.0, 500000, 5000000),
		row("600002.SH", 9.95, 300000, 5000000),
		row("600001.SH", 6.0, 800000, 5000000),
		row("600005.SH", -7.0, 700000, 5000000),
		row("600006.SH", -7.0, 100000, 5000000),
		row("600007.SH", 9.8, 900000, 5000000),
		hv, hvUp, st,
	}
}

func TestLimitUp(t *testing.T) {
	got := LimitUp(sampleRows(), DefaultLimitUpThresholds())

	assert.Equal(t, []string{"300002.SZ", "600002.SH", "600003.SH", "600010.SH"}, ids(got))
}

func TestLimitUp_OrderIndependent(t *testing.T) {
	rows := sampleRows()
	expected := ids(LimitUp(rows, DefaultLimitUpThresholds()))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.MarketRow(nil), rows...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, expected, ids(LimitUp(shuffled, DefaultLimitUpThresholds())))
	}
}

func TestTurnoverGain(t *testing.T) {
	p := DefaultRuleParams()
	got := TurnoverGain(sampleRows(), p)

	assert.Equal(t, []string{"300001.SZ", "600007.SH", "600001.SH", "600010.SH"}, ids(got))
	for _, r := range got {
		assert.GreaterOrEqual(t, r.TurnoverAmount, p.MinAmount)
		assert.Greater(t, r.ChangePct, p.MinGainPct)
	}
}

func TestTurnoverGain_SubsetOfTurnoverFilter(t *testing.T) {
	p := DefaultRuleParams()
	rows := sampleRows()

	highTurnover := map[string]bool{}
	for _, r := range rows {
		if r.TurnoverAmount >= p.MinAmount {
			highTurnover[r.SecurityID] = true
		}
	}
	for _, r := range TurnoverGain(rows, p) {
		assert.True(t, highTurnover[r.SecurityID], r.SecurityID)
	}
}

func TestTurnoverDecline(t *testing.T) {
	got := TurnoverDecline(sampleRows(), DefaultRuleParams())
	assert.Equal(t, []string{"600005.SH"}, ids(got))
}

func TestTurnoverLimitUp(t *testing.T) {
	got := TurnoverLimitUp(sampleRows(), DefaultRuleParams(), DefaultLimitUpThresholds())
	assert.Equal(t, []string{"600010.SH"}, ids(got))
}

func TestTurnoverRules_TiesBreakOnID(t *testing.T) {
	rows := []models.MarketRow{
		row("C", 6, 500000, 0),
		row("A", 6, 500000, 0),
		row("B", 6, 600000, 0),
	}
	assert.Equal(t, []string{"B", "A", "C"}, ids(TurnoverGain(rows, DefaultRuleParams())))
}

func TestNewHighLargeCap(t *testing.T) {
	var rows []models.MarketRow
	for i := 0; i < 40; i++ {
		r := row(string(rune('a'+i%26))+string(rune('A'+i/26)), 1, 0, float64(30000000+i*1000))
		r.IsNewHigh = i != 39
		rows = append(rows, r)
	}
	small := row("small", 1, 0, 100)
	small.IsNewHigh = true
	rows = append(rows, small)

	p := DefaultRuleParams()
	got := NewHighLargeCap(rows, p)

	assert.Len(t, got, 30)
	assert.Equal(t, 30000000.0+38*1000, got[0].MarketCap, "highest new-high market cap first")
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].MarketCap, got[i].MarketCap)
	}
	assert.NotContains(t, ids(got), "small")

	p.TopK = 0
	assert.Len(t, NewHighLargeCap(rows, p), 39)
}

func TestRules_EmptyInput(t *testing.T) {
	p := DefaultRuleParams()
	th := DefaultLimitUpThresholds()

	assert.Empty(t, LimitUp(nil, th))
	assert.NotNil(t, LimitUp(nil, th))
	assert.Empty(t, TurnoverGain(nil, p))
	assert.Empty(t, TurnoverDecline(nil, p))
	assert.Empty(t, TurnoverLimitUp(nil, p, th))
	assert.Empty(t, NewHighLargeCap(nil, p))
}

func TestScreenAll(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	results := ScreenAll(date, []models.MarketRow{row("A", 10.0, 500000, 5000000)}, DefaultRuleParams(), DefaultLimitUpThresholds())

	byRule := map[string]models.RankedResult{}
	for _, r := range results {
		byRule[r.Rule] = r
		assert.Equal(t, date, r.TradeDate)
	}

	assert.Len(t, results, 5)
	assert.Equal(t, []string{"A"}, byRule[RuleLimitUp].IDs())
	assert.Equal(t, models.OutcomeMatched, byRule[RuleTurnoverLimitUp].Outcome)
	assert.Equal(t, models.OutcomeNoMatches, byRule[RuleTurnoverDecline].Outcome)
	assert.Equal(t, models.OutcomeNoMatches, byRule[RuleNewHighLargeCap].Outcome)
}

func TestLimitUpThresholds_For(t *testing.T) {
	th := DefaultLimitUpThresholds()
	assert.Equal(t, 9.9, th.For(models.BoardStandard))
	assert.Equal(t, 19.9, th.For(models.BoardHighVolatility))
	assert.Equal(t, 29.9, th.For(models.BoardBeijing))
	assert.Equal(t, 4.9, th.For(models.BoardRiskWarning))
	assert.Equal(t, 9.9, th.For(models.Board("unknown")))
}

func ids(rows []models.MarketRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.SecurityID)
	}
	return out
}
