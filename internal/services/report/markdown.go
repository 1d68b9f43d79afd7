package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Amounts are thousands of CNY; reports show 亿元 (1e8 CNY).
const thousandsPerYi = 1e5

func yi(thousands float64) string {
	return fmt.Sprintf("%.2f", thousands/thousandsPerYi)
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// cell escapes a value for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	return s
}

func writeTable(b *strings.Builder, headers []string, rows [][]string) {
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	b.WriteString("\n")
}

// sortedCounts orders a count map by count descending, then key.
func sortedCounts(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func themeCounts(report *models.AnalysisReport) map[string]int {
	out := make(map[string]int, len(report.AnnouncementThemeCounts))
	for k, v := range report.AnnouncementThemeCounts {
		out[string(k)] = v
	}
	return out
}

func businessField(a *models.StockAnalysis, pick func(*models.BusinessInfo) string) string {
	if a.BusinessInfo == nil {
		return ""
	}
	return pick(a.BusinessInfo)
}

func correlationLabel(a *models.StockAnalysis) string {
	switch {
	case a.Insights.AnnouncementCorrelation:
		return "是"
	case a.Insights.ThemeDriven:
		return "题材驱动"
	default:
		return "否"
	}
}

// AnalysisMarkdown renders an analysis report as Markdown.
func AnalysisMarkdown(report *models.AnalysisReport) string {
	var b strings.Builder
	date := common.FormatTradeDate(report.TradeDate)

	fmt.Fprintf(&b, "# 涨停复盘 %s\n\n", date)
	fmt.Fprintf(&b, "- 结果: %s\n", report.Outcome)
	if report.RunID != "" {
		fmt.Fprintf(&b, "- 运行: %s\n", report.RunID)
	}
	if !report.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- 生成时间: %s\n", report.GeneratedAt.In(common.ChinaLocation()).Format("2006-01-02 15:04:05"))
	}
	if report.Err != "" {
		fmt.Fprintf(&b, "- 错误: %s\n", report.Err)
	}
	b.WriteString("\n")

	s := report.Summary
	b.WriteString("## 汇总\n\n")
	writeTable(&b, []string{"指标", "数值"}, [][]string{
		{"涨停家数", fmt.Sprint(s.TotalStocks)},
		{"平均涨幅", pct(s.AvgChangePct)},
		{"总成交额(亿元)", yi(s.TotalTurnover)},
		{"有利好公告", fmt.Sprint(s.WithPositiveNews)},
		{"利好公告占比", fmt.Sprintf("%.1f%%", s.PositiveNewsRatioPct)},
		{"数据不完整", fmt.Sprint(s.PartialCount)},
	})

	if len(report.Analyses) == 0 {
		return b.String()
	}

	b.WriteString("## 行业分布\n\n")
	industryRows := make([][]string, 0, len(report.IndustryDistribution)+1)
	for _, industry := range sortedCounts(report.IndustryDistribution) {
		industryRows = append(industryRows, []string{industry, fmt.Sprint(report.IndustryDistribution[industry])})
	}
	if report.UnknownIndustryCount > 0 {
		industryRows = append(industryRows, []string{"未知", fmt.Sprint(report.UnknownIndustryCount)})
	}
	writeTable(&b, []string{"行业", "家数"}, industryRows)

	if len(report.AnnouncementThemeCounts) > 0 {
		b.WriteString("## 公告题材\n\n")
		themes := themeCounts(report)
		themeRows := make([][]string, 0, len(themes))
		for _, theme := range sortedCounts(themes) {
			themeRows = append(themeRows, []string{theme, fmt.Sprint(themes[theme])})
		}
		writeTable(&b, []string{"类别", "公告数"}, themeRows)
	}

	b.WriteString("## 个股明细\n\n")
	rows := make([][]string, 0, len(report.Analyses))
	for i := range report.Analyses {
		a := &report.Analyses[i]
		rows = append(rows, []string{
			a.SecurityID,
			a.Name,
			pct(a.MarketData.ChangePct),
			yi(a.MarketData.TurnoverAmount),
			a.Industry(),
			strings.Join(a.Insights.PossibleReasons, "; "),
			correlationLabel(a),
		})
	}
	writeTable(&b, []string{"代码", "名称", "涨幅", "成交额(亿元)", "行业", "可能原因", "公告关联"}, rows)

	for i := range report.Analyses {
		a := &report.Analyses[i]
		fmt.Fprintf(&b, "### %s %s\n\n", a.SecurityID, a.Name)
		if mb := businessField(a, func(bi *models.BusinessInfo) string { return bi.MainBusiness }); mb != "" {
			fmt.Fprintf(&b, "**主营业务**: %s\n\n", mb)
		}
		if mp := businessField(a, func(bi *models.BusinessInfo) string { return bi.MainProducts }); mp != "" {
			fmt.Fprintf(&b, "**主要产品**: %s\n\n", mp)
		}
		if len(a.RecentAnnouncements) > 0 {
			for _, ann := range a.RecentAnnouncements {
				fmt.Fprintf(&b, "- %s [%s] %s\n", common.FormatTradeDate(ann.FiledDate), ann.Category, ann.Title)
			}
			b.WriteString("\n")
		}
		if len(a.Errors) > 0 {
			sections := make([]string, 0, len(a.Errors))
			for section := range a.Errors {
				sections = append(sections, string(section))
			}
			sort.Strings(sections)
			fmt.Fprintf(&b, "_不完整: %s_\n\n", strings.Join(sections, ", "))
		}
	}

	return b.String()
}

// ScreensMarkdown renders the screening results of one date.
func ScreensMarkdown(report *models.ScreenReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 选股结果 %s\n\n", common.FormatTradeDate(report.TradeDate))
	fmt.Fprintf(&b, "- 结果: %s\n- 有效行数: %d\n- 丢弃行数: %d\n", report.Outcome, report.RowCount, report.Dropped)
	if report.Err != "" {
		fmt.Fprintf(&b, "- 错误: %s\n", report.Err)
	}
	b.WriteString("\n")

	for _, result := range report.Results {
		fmt.Fprintf(&b, "## %s (%d)\n\n", result.Rule, len(result.Rows))
		if result.Err != "" {
			fmt.Fprintf(&b, "_%s: %s_\n\n", result.Outcome, result.Err)
			continue
		}
		if len(result.Rows) == 0 {
			fmt.Fprintf(&b, "_%s_\n\n", result.Outcome)
			continue
		}
		rows := make([][]string, 0, len(result.Rows))
		for _, r := range result.Rows {
			rows = append(rows, []string{r.SecurityID, r.Name, pct(r.ChangePct), yi(r.TurnoverAmount), yi(r.MarketCap)})
		}
		writeTable(&b, []string{"代码", "名称", "涨幅", "成交额(亿元)", "市值(亿元)"}, rows)
	}
	return b.String()
}

// RankingsMarkdown renders return rankings over one or more windows.
func RankingsMarkdown(rankings []models.ReturnRanking) string {
	var b strings.Builder
	b.WriteString("# 区间涨幅排行\n\n")
	for _, ranking := range rankings {
		fmt.Fprintf(&b, "## %s 截至 %s\n\n", ranking.Window, common.FormatTradeDate(ranking.EndDate))
		if ranking.Err != "" {
			fmt.Fprintf(&b, "_%s: %s_\n\n", ranking.Outcome, ranking.Err)
			continue
		}
		rows := make([][]string, 0, len(ranking.Rows))
		for i, r := range ranking.Rows {
			rows = append(rows, []string{
				fmt.Sprint(i + 1),
				r.SecurityID,
				r.Name,
				pct(r.CumulativeReturnPct),
				common.FormatTradeDate(r.WindowStartDate),
				fmt.Sprintf("%.2f", r.StartClose),
				fmt.Sprintf("%.2f", r.EndClose),
			})
		}
		writeTable(&b, []string{"排名", "代码", "名称", "累计涨幅", "起始日", "起始价", "收盘价"}, rows)
		if ranking.Excluded > 0 {
			fmt.Fprintf(&b, "_%d 只证券数据不足被排除_\n\n", ranking.Excluded)
		}
	}
	return b.String()
}
