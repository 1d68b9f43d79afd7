package announcements

import (
	"fmt"
	"sort"
	"time"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Correlator defaults.
const (
	DefaultLookbackDays = 30
	DefaultReasonsTopK  = 3
)

// CorrelatorOptions configures the event window and the number of reasons.
type CorrelatorOptions struct {
	LookbackDays int
	TopK         int
}

// Correlation is the result of linking one price event to its announcements.
type Correlation struct {
	WindowStart time.Time
	WindowEnd   time.Time
	// Announcements are the classified filings inside the window, newest first.
	Announcements []models.Announcement
	Insights      models.Insights
}

// Correlator links a price event to the announcements filed in the preceding
// calendar window.
type Correlator struct {
	classifier *Classifier
	opts       CorrelatorOptions
}

// NewCorrelator creates a correlator. Non-positive options take the defaults.
func NewCorrelator(classifier *Classifier, opts CorrelatorOptions) *Correlator {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultReasonsTopK
	}
	return &Correlator{classifier: classifier, opts: opts}
}

// Window returns the inclusive calendar window [eventDate-L, eventDate].
func (c *Correlator) Window(eventDate time.Time) (time.Time, time.Time) {
	end := common.DateOnly(eventDate)
	return end.AddDate(0, 0, -c.opts.LookbackDays), end
}

// RecencyWeight is (L+1-d)/(L+1) for a filing d days before the event. It is
// non-increasing in d and positive for 0 <= d <= L.
func RecencyWeight(days, lookback int) float64 {
	if days < 0 || days > lookback {
		return 0
	}
	return float64(lookback+1-days) / float64(lookback+1)
}

type scored struct {
	ann   models.Announcement
	score float64
}

// Correlate classifies the announcements inside the window on copies and
// scores them. The input slice is not modified.
func (c *Correlator) Correlate(eventDate time.Time, announcements []models.Announcement) Correlation {
	start, end := c.Window(eventDate)
	result := Correlation{
		WindowStart:   start,
		WindowEnd:     end,
		Announcements: make([]models.Announcement, 0),
		Insights: models.Insights{
			PossibleReasons: make([]string, 0),
			Reasons:         make([]models.Reason, 0),
		},
	}

	candidates := make([]scored, 0, len(announcements))
	for _, a := range announcements {
		filed := common.DateOnly(a.FiledDate)
		if filed.Before(start) || filed.After(end) {
			continue
		}
		a = c.classifier.ClassifyAnnouncement(a)
		days := int(end.Sub(filed).Hours() / 24)
		candidates = append(candidates, scored{
			ann:   a,
			score: a.Polarity.Weight() * RecencyWeight(days, c.opts.LookbackDays),
		})
	}

	if len(candidates) == 0 {
		result.Insights.ThemeDriven = true
		return result
	}

	for _, cand := range candidates {
		switch cand.ann.Polarity {
		case models.PolarityPositive:
			result.Insights.PositiveNewsCount++
			result.Insights.AnnouncementCorrelation = true
		case models.PolarityNeutral:
			result.Insights.AnnouncementCorrelation = true
		}
	}
	result.Insights.ThemeDriven = result.Insights.PositiveNewsCount == 0

	byRecency := append([]scored(nil), candidates...)
	sort.SliceStable(byRecency, func(i, j int) bool {
		return byRecency[i].ann.FiledDate.After(byRecency[j].ann.FiledDate)
	})
	for _, cand := range byRecency {
		result.Announcements = append(result.Announcements, cand.ann)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.ann.FiledDate.Equal(b.ann.FiledDate) {
			return a.ann.FiledDate.After(b.ann.FiledDate)
		}
		return a.ann.Title < b.ann.Title
	})

	for _, cand := range candidates {
		if len(result.Insights.Reasons) == c.opts.TopK || cand.score < 0 {
			break
		}
		result.Insights.Reasons = append(result.Insights.Reasons, models.Reason{
			Title:     cand.ann.Title,
			Category:  cand.ann.Category,
			Polarity:  cand.ann.Polarity,
			FiledDate: cand.ann.FiledDate,
			Score:     cand.score,
		})
		result.Insights.PossibleReasons = append(result.Insights.PossibleReasons,
			fmt.Sprintf("%s: %s", cand.ann.Category, cand.ann.Title))
	}

	return result
}
