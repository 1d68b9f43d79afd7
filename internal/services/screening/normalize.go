// Package screening implements the row normalizer, the screening rules and the
// multi-window return ranker. Everything here is pure and synchronous.
package screening

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// DropReason says why a raw row was discarded.
type DropReason string

const (
	DropMissingSecurityID DropReason = "missing_security_id"
	DropMissingClose      DropReason = "missing_close_price"
	DropMissingChange     DropReason = "missing_change_pct"
	DropDuplicate         DropReason = "duplicate_security_id"
)

// Source field aliases, first match wins.
var (
	securityIDKeys = []string{"security_id", "ts_code", "code"}
	nameKeys       = []string{"name"}
	boardKeys      = []string{"board"}
	closeKeys      = []string{"close_price", "close"}
	highKeys       = []string{"high"}
	changeKeys     = []string{"change_pct", "pct_chg"}
	volumeKeys     = []string{"volume", "vol"}
	turnoverKeys   = []string{"turnover_amount", "amount"}
	marketCapKeys  = []string{"market_cap", "total_mv"}
	newHighKeys    = []string{"is_new_high"}
)

// NormalizeOptions declares the native units of a source. Each scale multiplies
// the raw value to reach the canonical unit (thousands of CNY for money, shares
// for volume).
type NormalizeOptions struct {
	TurnoverScale  float64
	MarketCapScale float64
	VolumeScale    float64
}

// DefaultNormalizeOptions is for sources already in canonical units.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{TurnoverScale: 1, MarketCapScale: 1, VolumeScale: 1}
}

// TushareNormalizeOptions matches Tushare daily (amount in thousand CNY, vol in
// lots of 100 shares) and daily_basic (total_mv in ten-thousand CNY).
func TushareNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{TurnoverScale: 1, MarketCapScale: 10, VolumeScale: 100}
}

// EODHDNormalizeOptions matches rows built from EODHD bulk data, where turnover
// and market cap are in CNY and volume is already in shares.
func EODHDNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{TurnoverScale: 0.001, MarketCapScale: 0.001, VolumeScale: 1}
}

// NormalizeResult is the normalized frame plus the drop accounting.
type NormalizeResult struct {
	Rows        []models.MarketRow
	Dropped     int
	DropReasons map[DropReason]int
}

// Normalize converts raw source rows to MarketRows. Rows without a security id,
// close price or change percent are dropped and counted; the batch never fails.
// The output is sorted by security id and holds one row per security.
func Normalize(raw []models.RawRow, opts NormalizeOptions) NormalizeResult {
	opts = withDefaultScales(opts)
	result := NormalizeResult{
		Rows:        make([]models.MarketRow, 0, len(raw)),
		DropReasons: make(map[DropReason]int),
	}

	drop := func(reason DropReason) {
		result.Dropped++
		result.DropReasons[reason]++
	}

	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		fields := lowerKeys(r)

		id := common.NormalizeSecurityID(stringField(fields, securityIDKeys))
		if id == "" {
			drop(DropMissingSecurityID)
			continue
		}

		closePrice, ok := numberField(fields, closeKeys, 1)
		if !ok {
			drop(DropMissingClose)
			continue
		}

		changePct, ok := numberField(fields, changeKeys, 1)
		if !ok {
			drop(DropMissingChange)
			continue
		}

		if _, dup := seen[id]; dup {
			drop(DropDuplicate)
			continue
		}
		seen[id] = struct{}{}

		row := models.MarketRow{
			SecurityID: id,
			Name:       strings.TrimSpace(stringField(fields, nameKeys)),
			ClosePrice: closePrice,
			ChangePct:  changePct,
		}
		row.High, _ = numberField(fields, highKeys, 1)
		row.Volume, _ = numberField(fields, volumeKeys, opts.VolumeScale)
		row.TurnoverAmount, _ = numberField(fields, turnoverKeys, opts.TurnoverScale)
		row.MarketCap, _ = numberField(fields, marketCapKeys, opts.MarketCapScale)
		row.IsNewHigh = boolField(fields, newHighKeys)

		if board := models.Board(stringField(fields, boardKeys)); board != "" {
			row.Board = board
		} else {
			row.Board = common.BoardFor(id, row.Name)
		}

		result.Rows = append(result.Rows, row)
	}

	sort.SliceStable(result.Rows, func(i, j int) bool {
		return result.Rows[i].SecurityID < result.Rows[j].SecurityID
	})

	return result
}

func withDefaultScales(opts NormalizeOptions) NormalizeOptions {
	if opts.TurnoverScale == 0 {
		opts.TurnoverScale = 1
	}
	if opts.MarketCapScale == 0 {
		opts.MarketCapScale = 1
	}
	if opts.VolumeScale == 0 {
		opts.VolumeScale = 1
	}
	return opts
}

func lowerKeys(r models.RawRow) map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for k, v := range r {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func lookup(fields map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(fields map[string]interface{}, keys []string) string {
	v, ok := lookup(fields, keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// numberField returns the first parseable alias scaled by scale.
func numberField(fields map[string]interface{}, keys []string, scale float64) (float64, bool) {
	v, ok := lookup(fields, keys)
	if !ok {
		return 0, false
	}
	d, ok := toDecimal(v)
	if !ok {
		return 0, false
	}
	f, _ := d.Mul(decimal.NewFromFloat(scale)).Float64()
	return f, true
}

// toDecimal coerces the numeric representations sources use.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case float32:
		return toDecimal(float64(t))
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(strings.TrimSuffix(t, "%"), ",", ""))
		switch strings.ToLower(s) {
		case "", "-", "--", "nan", "none", "null":
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func boolField(fields map[string]interface{}, keys []string) bool {
	v, ok := lookup(fields, keys)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		d, ok := toDecimal(v)
		return ok && !d.IsZero()
	}
}
