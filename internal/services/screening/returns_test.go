package screening

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekdays returns every Monday-Friday from start to end inclusive.
func weekdays(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

func seriesFrom(id string, dates []time.Time, closes []float64) models.SecuritySeries {
	s := models.SecuritySeries{SecurityID: id, Name: id}
	for i, d := range dates {
		s.Closes = append(s.Closes, models.DailyClose{Date: d, Close: closes[i]})
	}
	return s
}

func TestParseWindow(t *testing.T) {
	for _, tt := range []struct {
		input string
		days  int
		ytd   bool
	}{
		{"5d", 5, false},
		{"10D", 10, false},
		{" 20d ", 20, false},
		{"YTD", 0, true},
	} {
		t.Run(tt.input, func(t *testing.T) {
			w, err := ParseWindow(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.days, w.Days)
			assert.Equal(t, tt.ytd, w.YTD)
		})
	}

	for _, bad := range []string{"7d", "1y", "", "d", "-5d"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := ParseWindow(bad)
			assert.True(t, errors.Is(err, ErrUnknownWindow))
		})
	}

	_, err := ParseWindows([]string{"5d", "30d"})
	assert.Error(t, err)
}

func TestRankReturns_CompoundedReturn(t *testing.T) {
	calendar := []time.Time{day(2024, 3, 13), day(2024, 3, 14), day(2024, 3, 15)}
	w := Window{Days: 2}

	series := []models.SecuritySeries{
		seriesFrom("X", calendar, []float64{100, 110, 104.5}),
	}

	ranking := RankReturns(series, calendar, w, day(2024, 3, 15), 30)
	require.Len(t, ranking.Rows, 1)

	r := ranking.Rows[0]
	assert.InDelta(t, 4.5, r.CumulativeReturnPct, 1e-9, "1.10 x 0.95 - 1")
	assert.Equal(t, day(2024, 3, 13), r.WindowStartDate)
	assert.Equal(t, day(2024, 3, 15), r.WindowEndDate)
	assert.Equal(t, 100.0, r.StartClose)
	assert.Equal(t, 104.5, r.EndClose)
	assert.Equal(t, models.OutcomeMatched, ranking.Outcome)
}

func TestRankReturns_ShortSeriesExcluded(t *testing.T) {
	calendar := weekdays(day(2024, 3, 1), day(2024, 3, 15))
	w, err := ParseWindow("5d")
	require.NoError(t, err)

	full := make([]float64, len(calendar))
	for i := range full {
		full[i] = 10 + float64(i)
	}
	last3 := calendar[len(calendar)-3:]

	series := []models.SecuritySeries{
		seriesFrom("FULL", calendar, full),
		seriesFrom("SHORT", last3, []float64{1, 2, 3}),
	}

	ranking := RankReturns(series, calendar, w, day(2024, 3, 15), 30)
	assert.Equal(t, []string{"FULL"}, returnIDs(ranking))
	assert.Equal(t, 1, ranking.Excluded)
}

func TestRankReturns_GapExcluded(t *testing.T) {
	calendar := weekdays(day(2024, 3, 4), day(2024, 3, 15))
	withGap := append([]time.Time{}, calendar[:7]...)
	withGap = append(withGap, calendar[8:]...)

	closes := make([]float64, len(withGap))
	for i := range closes {
		closes[i] = 10
	}

	ranking := RankReturns([]models.SecuritySeries{seriesFrom("GAP", withGap, closes)}, calendar, Window{Days: 5}, day(2024, 3, 15), 30)
	assert.Empty(t, ranking.Rows)
	assert.Equal(t, 1, ranking.Excluded)
	assert.Equal(t, models.OutcomeNoMatches, ranking.Outcome)
}

func TestRankReturns_OrderingAndTopK(t *testing.T) {
	calendar := []time.Time{day(2024, 3, 14), day(2024, 3, 15)}
	series := []models.SecuritySeries{
		seriesFrom("C", calendar, []float64{10, 11}),
		seriesFrom("B", calendar, []float64{10, 12}),
		seriesFrom("A", calendar, []float64{10, 11}),
		seriesFrom("D", calendar, []float64{10, 9}),
	}

	ranking := RankReturns(series, calendar, Window{Days: 1}, day(2024, 3, 15), 3)
	assert.Equal(t, []string{"B", "A", "C"}, returnIDs(ranking))
}

func TestRankReturns_YTD(t *testing.T) {
	calendar := append(weekdays(day(2023, 12, 25), day(2023, 12, 29)), weekdays(day(2024, 1, 2), day(2024, 1, 5))...)

	closes := []float64{50, 50, 50, 50, 50, 100, 101, 102, 110}
	ranking := RankReturns([]models.SecuritySeries{seriesFrom("Y", calendar, closes)}, calendar, Window{YTD: true}, day(2024, 1, 5), 30)

	require.Len(t, ranking.Rows, 1)
	assert.Equal(t, day(2024, 1, 2), ranking.Rows[0].WindowStartDate)
	assert.InDelta(t, 10.0, ranking.Rows[0].CumulativeReturnPct, 1e-9)
	assert.Equal(t, "ytd", ranking.Window)
}

func TestRankReturns_NonTradingDay(t *testing.T) {
	calendar := []time.Time{day(2024, 3, 15)}
	ranking := RankReturns(nil, calendar, Window{Days: 5}, day(2024, 3, 16), 30)

	assert.Equal(t, models.OutcomeNonTradingDay, ranking.Outcome)
	assert.Empty(t, ranking.Rows)
}

func TestRankReturns_CalendarTooShort(t *testing.T) {
	calendar := []time.Time{day(2024, 3, 14), day(2024, 3, 15)}
	series := []models.SecuritySeries{seriesFrom("X", calendar, []float64{1, 2})}

	ranking := RankReturns(series, calendar, Window{Days: 5}, day(2024, 3, 15), 30)
	assert.Empty(t, ranking.Rows)
	assert.Equal(t, 1, ranking.Excluded)
}

func returnIDs(r models.ReturnRanking) []string {
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, row.SecurityID)
	}
	return out
}
