package common

import (
	"fmt"
	"strings"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Exchange codes used in security ids ("600519.SH").
const (
	ExchangeShanghai = "SH"
	ExchangeShenzhen = "SZ"
	ExchangeBeijing  = "BJ"
)

// exchangeToEODHD maps exchange codes to EODHD exchange suffixes.
var exchangeToEODHD = map[string]string{
	ExchangeShanghai: "SHG",
	ExchangeShenzhen: "SHE",
}

// Security is a parsed A-share security id.
type Security struct {
	// Code is the six digit listing code (e.g. "600519")
	Code string
	// Exchange is SH, SZ or BJ
	Exchange string
}

// ParseSecurityID parses a security id in any of the common notations:
//   - "600519.SH" (Tushare style)
//   - "SH600519" or "sh.600519"
//   - "600519.SHG" (EODHD style)
//   - "600519" (exchange inferred from the code prefix)
func ParseSecurityID(id string) (Security, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return Security{}, fmt.Errorf("empty security id")
	}

	var code, exchange string
	switch {
	case strings.Contains(id, "."):
		parts := strings.SplitN(id, ".", 2)
		if isDigits(parts[0]) {
			code, exchange = parts[0], parts[1]
		} else {
			exchange, code = parts[0], parts[1]
		}
	case len(id) == 8 && !isDigits(id[:2]):
		exchange, code = id[:2], id[2:]
	default:
		code = id
	}

	switch exchange {
	case "SHG", "SS":
		exchange = ExchangeShanghai
	case "SHE":
		exchange = ExchangeShenzhen
	}

	if len(code) != 6 || !isDigits(code) {
		return Security{}, fmt.Errorf("invalid security code in %q", id)
	}
	if exchange == "" {
		exchange = inferExchange(code)
	}
	if exchange != ExchangeShanghai && exchange != ExchangeShenzhen && exchange != ExchangeBeijing {
		return Security{}, fmt.Errorf("unknown exchange %q in %q", exchange, id)
	}

	return Security{Code: code, Exchange: exchange}, nil
}

// NormalizeSecurityID returns the canonical "CODE.EX" form, or the trimmed
// input unchanged when it cannot be parsed.
func NormalizeSecurityID(id string) string {
	sec, err := ParseSecurityID(id)
	if err != nil {
		return strings.TrimSpace(id)
	}
	return sec.String()
}

// inferExchange derives the exchange from the listing code prefix.
func inferExchange(code string) string {
	switch {
	case strings.HasPrefix(code, "92"), code[0] == '8', code[0] == '4':
		return ExchangeBeijing
	case code[0] == '6', code[0] == '9', code[0] == '5':
		return ExchangeShanghai
	default:
		return ExchangeShenzhen
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String returns the canonical security id, e.g. "600519.SH".
func (s Security) String() string {
	if s.Code == "" {
		return ""
	}
	return s.Code + "." + s.Exchange
}

// EODHDSymbol returns the EODHD symbol ("600519.SHG"), or "" for exchanges EODHD does not list.
func (s Security) EODHDSymbol() string {
	suffix, ok := exchangeToEODHD[s.Exchange]
	if !ok || s.Code == "" {
		return ""
	}
	return s.Code + "." + suffix
}

// CNINFOColumn returns the CNINFO announcement column for the exchange.
func (s Security) CNINFOColumn() string {
	switch s.Exchange {
	case ExchangeShanghai:
		return "sse"
	case ExchangeBeijing:
		return "bj"
	default:
		return "szse"
	}
}

// BoardFor returns the board that sets the daily price limit of a security.
// Risk-warning names (ST, *ST) take precedence over the listing segment.
func BoardFor(securityID, name string) models.Board {
	if isRiskWarning(name) {
		return models.BoardRiskWarning
	}

	sec, err := ParseSecurityID(securityID)
	if err != nil {
		return models.BoardStandard
	}

	switch {
	case sec.Exchange == ExchangeBeijing:
		return models.BoardBeijing
	case strings.HasPrefix(sec.Code, "300"), strings.HasPrefix(sec.Code, "301"),
		strings.HasPrefix(sec.Code, "688"), strings.HasPrefix(sec.Code, "689"):
		return models.BoardHighVolatility
	default:
		return models.BoardStandard
	}
}

func isRiskWarning(name string) bool {
	upper := strings.ToUpper(strings.TrimSpace(name))
	return strings.HasPrefix(upper, "ST") || strings.HasPrefix(upper, "*ST") || strings.HasPrefix(upper, "S*ST")
}
