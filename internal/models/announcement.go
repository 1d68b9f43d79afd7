package models

import "time"

// Category is the announcement class assigned by the classifier.
type Category string

const (
	CategoryRegulatory          Category = "regulatory"
	CategoryRiskEvent           Category = "risk_event"
	CategoryPerformanceDecrease Category = "performance_decrease"
	CategoryPerformanceIncrease Category = "performance_increase"
	CategoryShareBuyback        Category = "share_buyback"
	CategoryContractWin         Category = "contract_win"
	CategoryRestructuring       Category = "restructuring"
	CategoryEquityIncentive     Category = "equity_incentive"
	CategoryDividend            Category = "dividend"
	CategoryCooperation         Category = "cooperation"
	CategoryPeriodicReport      Category = "periodic_report"
	CategoryGovernance          Category = "governance"
	CategoryOther               Category = "other"
)

// Polarity is the coarse market-impact sentiment of an announcement.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNeutral  Polarity = "neutral"
	PolarityNegative Polarity = "negative"
)

// Weight maps polarity to +1, 0 or -1.
func (p Polarity) Weight() float64 {
	switch p {
	case PolarityPositive:
		return 1
	case PolarityNegative:
		return -1
	default:
		return 0
	}
}

// Announcement is one filing of one security.
// Category, Polarity and MatchedKeyword are empty until classified.
type Announcement struct {
	SecurityID     string    `json:"security_id"`
	Title          string    `json:"title"`
	FiledDate      time.Time `json:"filed_date"`
	DocumentRef    string    `json:"document_ref,omitempty"`
	Category       Category  `json:"category,omitempty"`
	Polarity       Polarity  `json:"polarity,omitempty"`
	MatchedKeyword string    `json:"matched_keyword,omitempty"`
	Source         string    `json:"source,omitempty"`
}

// Classified reports whether the classifier has already run on the announcement.
func (a Announcement) Classified() bool {
	return a.Category != "" && a.Polarity != ""
}
