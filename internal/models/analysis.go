package models

import "time"

// BusinessInfo is the business summary of one company.
type BusinessInfo struct {
	MainBusiness string `json:"main_business,omitempty"`
	Industry     string `json:"industry,omitempty"`
	MainProducts string `json:"main_products,omitempty"`
	Source       string `json:"source,omitempty"`
}

// IsEmpty reports whether no field is set.
func (b *BusinessInfo) IsEmpty() bool {
	return b == nil || (b.MainBusiness == "" && b.Industry == "" && b.MainProducts == "")
}

// Section names an optional sub-result of a StockAnalysis.
type Section string

const (
	SectionBusinessInfo        Section = "business_info"
	SectionFinancialData       Section = "financial_data"
	SectionRecentAnnouncements Section = "recent_announcements"
)

// SectionStatus records whether a sub-result could be filled.
type SectionStatus string

const (
	SectionOK            SectionStatus = "ok"
	SectionUnavailable   SectionStatus = "unavailable"
	SectionNotConfigured SectionStatus = "not_configured"
)

// Reason is one announcement offered as a possible cause of the price event.
type Reason struct {
	Title     string    `json:"title"`
	Category  Category  `json:"category"`
	Polarity  Polarity  `json:"polarity"`
	FiledDate time.Time `json:"filed_date"`
	Score     float64   `json:"score"`
}

// Insights is the correlator output for one security and one event date.
type Insights struct {
	PossibleReasons         []string `json:"possible_reasons"`
	Reasons                 []Reason `json:"reasons"`
	AnnouncementCorrelation bool     `json:"announcement_correlation"`
	PositiveNewsCount       int      `json:"positive_news_count"`
	ThemeDriven             bool     `json:"theme_driven"`
}

// StockAnalysis is the per-security record for one event date.
type StockAnalysis struct {
	SecurityID          string                    `json:"security_id"`
	Name                string                    `json:"name"`
	EventDate           time.Time                 `json:"event_date"`
	MarketData          MarketRow                 `json:"market_data"`
	BusinessInfo        *BusinessInfo             `json:"business_info,omitempty"`
	FinancialData       map[string]float64        `json:"financial_data,omitempty"`
	RecentAnnouncements []Announcement            `json:"recent_announcements"`
	Insights            Insights                  `json:"insights"`
	Sections            map[Section]SectionStatus `json:"sections"`
	Errors              map[Section]string        `json:"errors,omitempty"`
}

// Partial reports whether any sub-result was unavailable.
func (s *StockAnalysis) Partial() bool {
	for _, status := range s.Sections {
		if status == SectionUnavailable {
			return true
		}
	}
	return false
}

// Industry returns the known industry or an empty string.
func (s *StockAnalysis) Industry() string {
	if s.BusinessInfo == nil {
		return ""
	}
	return s.BusinessInfo.Industry
}

// Summary holds batch statistics for one run.
type Summary struct {
	TotalStocks          int     `json:"total_stocks"`
	AvgChangePct         float64 `json:"avg_change_pct"`
	TotalTurnover        float64 `json:"total_turnover"`
	WithPositiveNews     int     `json:"with_positive_news"`
	PositiveNewsRatioPct float64 `json:"positive_news_ratio_pct"`
	PartialCount         int     `json:"partial_count"`
}

// AnalysisReport is the result of one analysis run. It is not modified after Aggregate.
type AnalysisReport struct {
	RunID                   string           `json:"run_id"`
	TradeDate               time.Time        `json:"trade_date"`
	GeneratedAt             time.Time        `json:"generated_at"`
	Outcome                 Outcome          `json:"outcome"`
	Analyses                []StockAnalysis  `json:"analyses"`
	IndustryDistribution    map[string]int   `json:"industry_distribution"`
	UnknownIndustryCount    int              `json:"unknown_industry_count"`
	AnnouncementThemeCounts map[Category]int `json:"announcement_theme_counts"`
	Summary                 Summary          `json:"summary"`
	Err                     string           `json:"error,omitempty"`
}
