package models

// Outcome tells an empty result caused by no matches apart from one caused by a
// failing source or a closed market.
type Outcome string

const (
	OutcomeMatched       Outcome = "matched"
	OutcomeNoMatches     Outcome = "no_matches"
	OutcomeSourceFailed  Outcome = "source_failed"
	OutcomeNonTradingDay Outcome = "non_trading_day"
)

// OutcomeFor returns matched or no_matches for a result of n rows.
func OutcomeFor(n int) Outcome {
	if n > 0 {
		return OutcomeMatched
	}
	return OutcomeNoMatches
}

// IsEmpty reports whether the outcome carries no rows.
func (o Outcome) IsEmpty() bool {
	return o != OutcomeMatched
}
