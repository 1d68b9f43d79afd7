package screening

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
	"github.com/stock-programmer/limit-up-review/internal/signals"
)

// ErrUnknownWindow is returned by ParseWindow for unsupported windows.
var ErrUnknownWindow = errors.New("unknown return window")

// DefaultTopK is the default length of a ranking or a top-K screen.
const DefaultTopK = 30

// supportedDays lists the fixed trading-day windows.
var supportedDays = map[int]bool{5: true, 10: true, 20: true}

// Window is a return ranking horizon: N trading days or year-to-date.
type Window struct {
	Days int // 0 for YTD
	YTD  bool
}

// ParseWindow accepts "5d", "10d", "20d" and "ytd" (case-insensitive).
func ParseWindow(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "ytd" {
		return Window{YTD: true}, nil
	}
	if strings.HasSuffix(s, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && supportedDays[n] {
			return Window{Days: n}, nil
		}
	}
	return Window{}, fmt.Errorf("%w: %q (supported: 5d, 10d, 20d, ytd)", ErrUnknownWindow, s)
}

// ParseWindows parses a list of windows, failing on the first unknown one.
func ParseWindows(names []string) ([]Window, error) {
	windows := make([]Window, 0, len(names))
	for _, name := range names {
		w, err := ParseWindow(name)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func (w Window) String() string {
	if w.YTD {
		return "ytd"
	}
	return strconv.Itoa(w.Days) + "d"
}

// Span returns the trading dates covered by the window ending at end: the base
// close date first and end last. ok is false when end is not a trading day;
// dates is nil when the calendar is too short for the window.
func (w Window) Span(calendar []time.Time, end time.Time) (dates []time.Time, ok bool) {
	cal := normalizeCalendar(calendar)
	end = common.DateOnly(end)

	endIdx := sort.Search(len(cal), func(i int) bool { return !cal[i].Before(end) })
	if endIdx == len(cal) || !cal[endIdx].Equal(end) {
		return nil, false
	}

	startIdx := endIdx - w.Days
	if w.YTD {
		startIdx = endIdx
		for startIdx > 0 && cal[startIdx-1].Year() == end.Year() {
			startIdx--
		}
	}
	if startIdx < 0 {
		return nil, true
	}
	return cal[startIdx : endIdx+1], true
}

// RankReturns ranks securities by compounded return over the window ending at
// end. A series missing a close on any date of the window is excluded and
// counted. Results are sorted descending, ties by security id, truncated to topK.
func RankReturns(series []models.SecuritySeries, calendar []time.Time, window Window, end time.Time, topK int) models.ReturnRanking {
	ranking := models.ReturnRanking{
		Window:  window.String(),
		EndDate: common.DateOnly(end),
		Rows:    make([]models.ReturnRow, 0),
	}

	dates, ok := window.Span(calendar, end)
	if !ok {
		ranking.Outcome = models.OutcomeNonTradingDay
		return ranking
	}

	for _, s := range series {
		row, ok := windowReturn(s, dates)
		if !ok {
			ranking.Excluded++
			continue
		}
		ranking.Rows = append(ranking.Rows, row)
	}

	sort.SliceStable(ranking.Rows, func(i, j int) bool {
		a, b := ranking.Rows[i], ranking.Rows[j]
		if a.CumulativeReturnPct != b.CumulativeReturnPct {
			return a.CumulativeReturnPct > b.CumulativeReturnPct
		}
		return a.SecurityID < b.SecurityID
	})
	if topK > 0 && len(ranking.Rows) > topK {
		ranking.Rows = ranking.Rows[:topK]
	}

	ranking.Outcome = models.OutcomeFor(len(ranking.Rows))
	return ranking
}

func windowReturn(s models.SecuritySeries, dates []time.Time) (models.ReturnRow, bool) {
	if len(dates) == 0 {
		return models.ReturnRow{}, false
	}

	byDate := make(map[time.Time]float64, len(s.Closes))
	for _, c := range s.Closes {
		byDate[common.DateOnly(c.Date)] = c.Close
	}

	closes := make([]float64, 0, len(dates))
	for _, d := range dates {
		c, ok := byDate[d]
		if !ok || c <= 0 {
			return models.ReturnRow{}, false
		}
		closes = append(closes, c)
	}

	var pct float64
	if len(closes) > 1 {
		returns, ok := signals.DailyReturns(closes)
		if !ok {
			return models.ReturnRow{}, false
		}
		pct = signals.CompoundReturnPct(returns)
	}

	return models.ReturnRow{
		SecurityID:          s.SecurityID,
		Name:                s.Name,
		CumulativeReturnPct: pct,
		WindowStartDate:     dates[0],
		WindowEndDate:       dates[len(dates)-1],
		StartClose:          closes[0],
		EndClose:            closes[len(closes)-1],
	}, true
}

// normalizeCalendar returns sorted, de-duplicated trading dates.
func normalizeCalendar(calendar []time.Time) []time.Time {
	cal := make([]time.Time, 0, len(calendar))
	for _, d := range calendar {
		cal = append(cal, common.DateOnly(d))
	}
	sort.Slice(cal, func(i, j int) bool { return cal[i].Before(cal[j]) })

	out := cal[:0]
	for _, d := range cal {
		if len(out) > 0 && d.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, d)
	}
	return out
}
