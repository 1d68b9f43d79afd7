package announcements

import (
	"strings"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Classification is the classifier verdict for one text.
type Classification struct {
	Category models.Category
	Polarity models.Polarity
	// Keyword is the matched keyword, empty when nothing matched.
	Keyword string
}

// Classifier assigns a category and polarity by keyword matching. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	table KeywordTable
}

// NewClassifier creates a classifier over table.
func NewClassifier(table KeywordTable) *Classifier {
	return &Classifier{table: table}
}

// Classify matches text case-insensitively against the rules in table order.
// The first matching rule wins; unmatched text is other/neutral.
// Latin keywords only match at the start of a word.
func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) != "" {
		for _, rule := range c.table.rules {
			for _, kw := range rule.Keywords {
				if containsKeyword(lower, kw) {
					return Classification{Category: rule.Category, Polarity: rule.Polarity, Keyword: kw}
				}
			}
		}
	}
	return Classification{Category: models.CategoryOther, Polarity: models.PolarityNeutral}
}

// containsKeyword reports whether kw occurs in text. A keyword starting with a
// Latin letter or digit must also start a word, so "contract" does not match
// "subcontractor". CJK keywords match anywhere.
func containsKeyword(text, kw string) bool {
	if !isWordByte(kw[0]) {
		return strings.Contains(text, kw)
	}
	for offset := 0; ; {
		i := strings.Index(text[offset:], kw)
		if i < 0 {
			return false
		}
		at := offset + i
		if at == 0 || !isWordByte(text[at-1]) {
			return true
		}
		offset = at + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// ClassifyAnnouncement returns a classified copy of a. Already classified
// announcements are returned unchanged.
func (c *Classifier) ClassifyAnnouncement(a models.Announcement) models.Announcement {
	if a.Classified() {
		return a
	}
	result := c.Classify(a.Title)
	a.Category = result.Category
	a.Polarity = result.Polarity
	a.MatchedKeyword = result.Keyword
	return a
}
