package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

const (
	sheetDetail   = "明细"
	sheetSummary  = "汇总"
	sheetIndustry = "行业分布"
	sheetThemes   = "公告题材"
)

// sheet writes rows into one worksheet with a bold, frozen header row.
type sheet struct {
	f      *excelize.File
	name   string
	header int
	row    int
}

func newSheet(f *excelize.File, name string, first bool, header int) (*sheet, error) {
	if first {
		if err := f.SetSheetName("Sheet1", name); err != nil {
			return nil, err
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return nil, err
	}
	return &sheet{f: f, name: name, header: header, row: 1}, nil
}

func (s *sheet) append(values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		return err
	}
	s.row++
	return nil
}

func (s *sheet) headers(names ...string) error {
	values := make([]interface{}, len(names))
	for i, n := range names {
		values[i] = n
	}
	if err := s.append(values...); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(names), s.row-1)
	if err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, s.row-1)
	if err := s.f.SetCellStyle(s.name, first, last, s.header); err != nil {
		return err
	}
	return s.f.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      s.row - 1,
		TopLeftCell: fmt.Sprintf("A%d", s.row),
		ActivePane:  "bottomLeft",
	})
}

func (s *sheet) widths(widths ...float64) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := s.f.SetColWidth(s.name, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6E6"}, Pattern: 1},
	})
}

func toYi(thousands float64) float64 {
	return round2(thousands / thousandsPerYi)
}

func round2(v float64) float64 {
	if v < 0 {
		return -round2(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}

// AnalysisWorkbook builds the analysis report workbook: per-stock detail,
// batch summary, industry distribution and announcement themes.
func AnalysisWorkbook(report *models.AnalysisReport) (*excelize.File, error) {
	f := excelize.NewFile()
	style, err := headerStyle(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := writeAnalysisSheets(f, style, report); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to build analysis workbook: %w", err)
	}
	return f, nil
}

func writeAnalysisSheets(f *excelize.File, style int, report *models.AnalysisReport) error {
	detail, err := newSheet(f, sheetDetail, true, style)
	if err != nil {
		return err
	}
	if err := detail.headers("代码", "名称", "涨幅%", "收盘价", "成交额(亿元)", "市值(亿元)", "行业", "主营业务", "主要产品", "可能原因", "公告关联", "利好公告数", "数据不完整"); err != nil {
		return err
	}
	for i := range report.Analyses {
		a := &report.Analyses[i]
		partial := ""
		if a.Partial() {
			partial = "是"
		}
		if err := detail.append(
			a.SecurityID,
			a.Name,
			a.MarketData.ChangePct,
			a.MarketData.ClosePrice,
			toYi(a.MarketData.TurnoverAmount),
			toYi(a.MarketData.MarketCap),
			a.Industry(),
			businessField(a, func(b *models.BusinessInfo) string { return b.MainBusiness }),
			businessField(a, func(b *models.BusinessInfo) string { return b.MainProducts }),
			strings.Join(a.Insights.PossibleReasons, "\n"),
			correlationLabel(a),
			a.Insights.PositiveNewsCount,
			partial,
		); err != nil {
			return err
		}
	}
	if err := detail.widths(12, 12, 9, 9, 12, 12, 14, 40, 30, 40, 10, 10, 10); err != nil {
		return err
	}

	summary, err := newSheet(f, sheetSummary, false, style)
	if err != nil {
		return err
	}
	s := report.Summary
	if err := summary.headers("指标", "数值"); err != nil {
		return err
	}
	for _, kv := range [][2]interface{}{
		{"交易日", common.FormatTradeDate(report.TradeDate)},
		{"结果", string(report.Outcome)},
		{"涨停家数", s.TotalStocks},
		{"平均涨幅%", s.AvgChangePct},
		{"总成交额(亿元)", toYi(s.TotalTurnover)},
		{"有利好公告", s.WithPositiveNews},
		{"利好公告占比%", s.PositiveNewsRatioPct},
		{"数据不完整", s.PartialCount},
	} {
		if err := summary.append(kv[0], kv[1]); err != nil {
			return err
		}
	}
	if err := summary.widths(18, 16); err != nil {
		return err
	}

	industry, err := newSheet(f, sheetIndustry, false, style)
	if err != nil {
		return err
	}
	if err := industry.headers("行业", "家数"); err != nil {
		return err
	}
	for _, name := range sortedCounts(report.IndustryDistribution) {
		if err := industry.append(name, report.IndustryDistribution[name]); err != nil {
			return err
		}
	}
	if report.UnknownIndustryCount > 0 {
		if err := industry.append("未知", report.UnknownIndustryCount); err != nil {
			return err
		}
	}
	if err := industry.widths(20, 10); err != nil {
		return err
	}

	themes, err := newSheet(f, sheetThemes, false, style)
	if err != nil {
		return err
	}
	if err := themes.headers("类别", "公告数"); err != nil {
		return err
	}
	counts := themeCounts(report)
	for _, name := range sortedCounts(counts) {
		if err := themes.append(name, counts[name]); err != nil {
			return err
		}
	}
	if err := themes.widths(22, 10); err != nil {
		return err
	}

	idx, err := f.GetSheetIndex(sheetDetail)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}

// ScreensWorkbook builds one sheet per screening rule.
func ScreensWorkbook(report *models.ScreenReport) (*excelize.File, error) {
	f := excelize.NewFile()
	style, err := headerStyle(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	results := report.Results
	if len(results) == 0 {
		results = []models.RankedResult{{Rule: "screens", Outcome: report.Outcome, Err: report.Err}}
	}

	used := make(map[string]struct{}, len(results))
	for i, result := range results {
		name := sanitizeSheetName(result.Rule)
		for {
			if _, exists := used[name]; !exists {
				break
			}
			name += "_"
		}
		used[name] = struct{}{}

		s, err := newSheet(f, name, i == 0, style)
		if err == nil {
			err = writeScreenSheet(s, result)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build screens workbook: %w", err)
		}
	}
	return f, nil
}

func writeScreenSheet(s *sheet, result models.RankedResult) error {
	if err := s.headers("代码", "名称", "板块", "收盘价", "涨幅%", "成交额(亿元)", "市值(亿元)", "新高"); err != nil {
		return err
	}
	for _, r := range result.Rows {
		newHigh := ""
		if r.IsNewHigh {
			newHigh = "是"
		}
		if err := s.append(r.SecurityID, r.Name, string(r.Board), r.ClosePrice, r.ChangePct, toYi(r.TurnoverAmount), toYi(r.MarketCap), newHigh); err != nil {
			return err
		}
	}
	if len(result.Rows) == 0 {
		note := string(result.Outcome)
		if result.Err != "" {
			note += ": " + result.Err
		}
		if err := s.append(note); err != nil {
			return err
		}
	}
	return s.widths(12, 12, 16, 9, 9, 12, 12, 8)
}

// RankingsWorkbook builds one sheet per return window.
func RankingsWorkbook(rankings []models.ReturnRanking) (*excelize.File, error) {
	f := excelize.NewFile()
	style, err := headerStyle(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if len(rankings) == 0 {
		rankings = []models.ReturnRanking{{Window: "rankings", Outcome: models.OutcomeNoMatches}}
	}
	sorted := append([]models.ReturnRanking(nil), rankings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Window < sorted[j].Window })

	for i, ranking := range sorted {
		s, err := newSheet(f, sanitizeSheetName(ranking.Window), i == 0, style)
		if err == nil {
			err = writeRankingSheet(s, ranking)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build rankings workbook: %w", err)
		}
	}
	return f, nil
}

func writeRankingSheet(s *sheet, ranking models.ReturnRanking) error {
	if err := s.headers("排名", "代码", "名称", "累计涨幅%", "起始日", "截止日", "起始价", "收盘价"); err != nil {
		return err
	}
	for i, r := range ranking.Rows {
		if err := s.append(i+1, r.SecurityID, r.Name, r.CumulativeReturnPct,
			common.FormatTradeDate(r.WindowStartDate), common.FormatTradeDate(r.WindowEndDate),
			r.StartClose, r.EndClose); err != nil {
			return err
		}
	}
	if ranking.Err != "" {
		if err := s.append(string(ranking.Outcome) + ": " + ranking.Err); err != nil {
			return err
		}
	}
	return s.widths(6, 12, 12, 11, 11, 11, 9, 9)
}

func workbookBytes(f *excelize.File) ([]byte, error) {
	defer f.Close()
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sanitizeSheetName strips characters Excel rejects and applies the 31 rune limit.
func sanitizeSheetName(name string) string {
	sanitized := name
	for _, ch := range []string{"/", "\\", "*", "?", "[", "]", ":"} {
		sanitized = strings.ReplaceAll(sanitized, ch, " ")
	}
	sanitized = strings.TrimSpace(sanitized)
	if runes := []rune(sanitized); len(runes) > 28 {
		sanitized = string(runes[:28])
	}
	if sanitized == "" {
		sanitized = "Sheet"
	}
	return sanitized
}
