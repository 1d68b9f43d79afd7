package common

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TradeDateLayout is the compact date format used by Tushare and the CLI.
const TradeDateLayout = "20060102"

const (
	sessionCloseHour = 15
	// dataDelay is how long after the close end-of-day data is considered final
	dataDelay = 60 * time.Minute
)

var (
	chinaLocation     *time.Location
	chinaLocationOnce sync.Once
)

// ChinaLocation returns Asia/Shanghai, falling back to a fixed UTC+8 zone
// when the tz database is unavailable.
func ChinaLocation() *time.Location {
	chinaLocationOnce.Do(func() {
		loc, err := time.LoadLocation("Asia/Shanghai")
		if err != nil {
			loc = time.FixedZone("CST", 8*3600)
		}
		chinaLocation = loc
	})
	return chinaLocation
}

// DateOnly truncates t to its calendar date at UTC midnight. All trade dates
// in the module are represented this way.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseTradeDate parses YYYYMMDD or YYYY-MM-DD.
func ParseTradeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TradeDateLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid trade date %q: expected YYYYMMDD", s)
}

// FormatTradeDate formats a trade date as YYYYMMDD.
func FormatTradeDate(t time.Time) string {
	return t.Format(TradeDateLayout)
}

// Today returns the current calendar date in China.
func Today(now time.Time) time.Time {
	return DateOnly(now.In(ChinaLocation()))
}

// IsWorkingDay reports whether t falls on Monday to Friday. Exchange holidays
// need the trading calendar.
func IsWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// LastWorkingDay returns the most recent weekday on or before now's China date.
func LastWorkingDay(now time.Time) time.Time {
	current := Today(now)
	for !IsWorkingDay(current) {
		current = current.AddDate(0, 0, -1)
	}
	return current
}

// SessionFinal reports whether end-of-day data for date is final at now.
func SessionFinal(date time.Time, now time.Time) bool {
	loc := ChinaLocation()
	available := time.Date(date.Year(), date.Month(), date.Day(), sessionCloseHour, 0, 0, 0, loc).Add(dataDelay)
	return now.After(available)
}
