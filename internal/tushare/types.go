// Package tushare provides a client for the Tushare Pro HTTP API.
// Every endpoint is a POST of {api_name, token, params, fields} that returns a
// column-oriented table.
package tushare

import (
	"fmt"
	"time"
)

// APIError represents an error reported by Tushare, either as an HTTP status
// or as a non-zero response code.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	APIName    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("Tushare API error: %s (code: %d, api: %s)", e.Message, e.Code, e.APIName)
	}
	return fmt.Sprintf("Tushare API error: %s (status: %d, api: %s)", e.Message, e.StatusCode, e.APIName)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Tushare rate limit exceeded, retry after %v", e.RetryAfter)
}

// Tushare answers over-quota calls with this code and HTTP 200.
const codeRateLimited = 40203

// Params are the per-endpoint request parameters.
type Params map[string]interface{}

// Option adds a parameter to a request.
type Option func(Params)

// WithTradeDate restricts the query to one trading date.
func WithTradeDate(date time.Time) Option {
	return func(p Params) {
		p["trade_date"] = date.Format(DateLayout)
	}
}

// WithDateRange restricts the query to [from, to].
func WithDateRange(from, to time.Time) Option {
	return func(p Params) {
		if !from.IsZero() {
			p["start_date"] = from.Format(DateLayout)
		}
		if !to.IsZero() {
			p["end_date"] = to.Format(DateLayout)
		}
	}
}

// WithSecurity restricts the query to one ts_code.
func WithSecurity(tsCode string) Option {
	return func(p Params) {
		p["ts_code"] = tsCode
	}
}

// WithPeriod selects a reporting period (YYYYMMDD of the period end).
func WithPeriod(period string) Option {
	return func(p Params) {
		p["period"] = period
	}
}
