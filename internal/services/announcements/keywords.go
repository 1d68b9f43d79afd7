package announcements

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

// KeywordRule maps a set of keywords to a category and its default polarity.
type KeywordRule struct {
	Category models.Category `yaml:"category"`
	Polarity models.Polarity `yaml:"polarity"`
	Keywords []string        `yaml:"keywords"`
}

// KeywordTable is an ordered, immutable list of rules. The first rule whose
// keyword occurs in a text decides the classification.
type KeywordTable struct {
	rules []KeywordRule
}

type keywordFile struct {
	Rules []KeywordRule `yaml:"rules"`
}

// NewKeywordTable validates and copies rules into a table. Keywords are
// lowercased and blank keywords are rejected.
func NewKeywordTable(rules []KeywordRule) (KeywordTable, error) {
	if len(rules) == 0 {
		return KeywordTable{}, fmt.Errorf("keyword table has no rules")
	}

	out := make([]KeywordRule, 0, len(rules))
	for i, r := range rules {
		if r.Category == "" {
			return KeywordTable{}, fmt.Errorf("rule %d: category is required", i)
		}
		switch r.Polarity {
		case models.PolarityPositive, models.PolarityNeutral, models.PolarityNegative:
		default:
			return KeywordTable{}, fmt.Errorf("rule %d (%s): invalid polarity %q", i, r.Category, r.Polarity)
		}
		if len(r.Keywords) == 0 {
			return KeywordTable{}, fmt.Errorf("rule %d (%s): no keywords", i, r.Category)
		}

		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return KeywordTable{}, fmt.Errorf("rule %d (%s): blank keyword", i, r.Category)
			}
			keywords = append(keywords, kw)
		}
		out = append(out, KeywordRule{Category: r.Category, Polarity: r.Polarity, Keywords: keywords})
	}

	return KeywordTable{rules: out}, nil
}

// LoadKeywordTable reads a YAML file of the form:
//
//	rules:
//	  - category: share_buyback
//	    polarity: positive
//	    keywords: [回购, buyback]
func LoadKeywordTable(path string) (KeywordTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordTable{}, fmt.Errorf("failed to read keyword file %s: %w", path, err)
	}

	var file keywordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return KeywordTable{}, fmt.Errorf("failed to parse keyword file %s: %w", path, err)
	}

	return NewKeywordTable(file.Rules)
}

// Rules returns a copy of the rules in priority order.
func (t KeywordTable) Rules() []KeywordRule {
	out := make([]KeywordRule, len(t.rules))
	for i, r := range t.rules {
		out[i] = KeywordRule{
			Category: r.Category,
			Polarity: r.Polarity,
			Keywords: append([]string(nil), r.Keywords...),
		}
	}
	return out
}

// Len returns the number of rules.
func (t KeywordTable) Len() int {
	return len(t.rules)
}

// DefaultKeywordTable returns the built-in table. Negative regulatory and risk
// events come first so that e.g. "回购注销...问询函" is never read as a buyback.
func DefaultKeywordTable() KeywordTable {
	table, err := NewKeywordTable(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("default keyword table: %v", err))
	}
	return table
}

var defaultRules = []KeywordRule{
	{
		Category: models.CategoryRegulatory,
		Polarity: models.PolarityNegative,
		Keywords: []string{
			"立案调查", "立案告知", "行政处罚", "监管函", "警示函", "问询函", "关注函",
			"纪律处分", "公开谴责", "通报批评", "investigation", "penalty", "regulatory warning",
		},
	},
	{
		Category: models.CategoryRiskEvent,
		Polarity: models.PolarityNegative,
		Keywords: []string{
			"退市", "终止上市", "停牌", "风险警示", "风险提示", "诉讼", "仲裁", "冻结",
			"违约", "减持", "质押", "爆雷", "suspension", "delisting", "lawsuit",
			"debt default", "payment default", "defaults on",
		},
	},
	{
		Category: models.CategoryPerformanceDecrease,
		Polarity: models.PolarityNegative,
		Keywords: []string{
			"业绩预减", "预亏", "首亏", "续亏", "业绩下滑", "净利润下降", "亏损",
			"profit warning", "loss widens",
		},
	},
	{
		Category: models.CategoryPerformanceIncrease,
		Polarity: models.PolarityPositive,
		Keywords: []string{
			"业绩预增", "扭亏", "预盈", "略增", "净利润增长", "业绩大幅增长",
			"profit jumps", "earnings beat", "record profit",
		},
	},
	{
		Category: models.CategoryShareBuyback,
		Polarity: models.PolarityPositive,
		Keywords: []string{"回购", "增持", "buyback", "repurchase"},
	},
	{
		Category: models.CategoryContractWin,
		Polarity: models.PolarityPositive,
		Keywords: []string{"中标", "重大合同", "签订", "签约", "订单", "contract", "awarded"},
	},
	{
		Category: models.CategoryRestructuring,
		Polarity: models.PolarityPositive,
		Keywords: []string{
			"重大资产重组", "重组", "资产注入", "收购", "并购", "增资",
			"acquisition", "merger", "takeover",
		},
	},
	{
		Category: models.CategoryEquityIncentive,
		Polarity: models.PolarityPositive,
		Keywords: []string{"股权激励", "员工持股", "限制性股票", "股票期权"},
	},
	{
		Category: models.CategoryDividend,
		Polarity: models.PolarityPositive,
		Keywords: []string{"分红", "派息", "利润分配", "权益分派", "dividend"},
	},
	{
		Category: models.CategoryCooperation,
		Polarity: models.PolarityPositive,
		Keywords: []string{
			"战略合作", "合作", "新品", "专利", "技术突破", "扩产", "补贴", "政策支持", "奖励",
			"partnership", "strategic agreement",
		},
	},
	{
		Category: models.CategoryPeriodicReport,
		Polarity: models.PolarityNeutral,
		Keywords: []string{
			"年度报告", "半年度报告", "季度报告", "年报", "季报", "中报", "财务报告", "业绩快报",
			"annual report", "quarterly report", "half-year report",
		},
	},
	{
		Category: models.CategoryGovernance,
		Polarity: models.PolarityNeutral,
		Keywords: []string{
			"董事会", "监事会", "股东大会", "决议", "公司章程", "独立董事",
			"board meeting", "general meeting",
		},
	},
}
