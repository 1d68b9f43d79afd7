package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

var tradeDate = time.Date(2024, 3, 15, 0, 0, 0, 0, common.ChinaLocation())

func sampleReport() *models.AnalysisReport {
	return &models.AnalysisReport{
		RunID:     "run-1",
		TradeDate: tradeDate,
		Outcome:   models.OutcomeMatched,
		Analyses: []models.StockAnalysis{
			{
				SecurityID:   "600519.SH",
				Name:         "贵州茅台",
				EventDate:    tradeDate,
				MarketData:   models.MarketRow{SecurityID: "600519.SH", ChangePct: 10.01, TurnoverAmount: 5000000, MarketCap: 2e9, ClosePrice: 1700},
				BusinessInfo: &models.BusinessInfo{MainBusiness: "白酒生产与销售", Industry: "白酒", MainProducts: "茅台酒"},
				RecentAnnouncements: []models.Announcement{
					{Title: "2023年度业绩预增公告", FiledDate: tradeDate, Category: models.CategoryPerformanceIncrease, Polarity: models.PolarityPositive},
				},
				Insights: models.Insights{
					PossibleReasons:         []string{"业绩预增: 2023年度业绩预增公告"},
					AnnouncementCorrelation: true,
					PositiveNewsCount:       1,
				},
				Sections: map[models.Section]models.SectionStatus{
					models.SectionBusinessInfo:        models.SectionOK,
					models.SectionRecentAnnouncements: models.SectionOK,
				},
			},
			{
				SecurityID: "300750.SZ",
				Name:       "宁德时代",
				MarketData: models.MarketRow{SecurityID: "300750.SZ", ChangePct: 20, TurnoverAmount: 3000000},
				Insights:   models.Insights{PossibleReasons: []string{}, ThemeDriven: true},
				Sections: map[models.Section]models.SectionStatus{
					models.SectionBusinessInfo: models.SectionUnavailable,
				},
				Errors: map[models.Section]string{models.SectionBusinessInfo: "timeout"},
			},
		},
		IndustryDistribution:    map[string]int{"白酒": 1},
		UnknownIndustryCount:    1,
		AnnouncementThemeCounts: map[models.Category]int{models.CategoryPerformanceIncrease: 1},
		Summary: models.Summary{
			TotalStocks:          2,
			AvgChangePct:         15.01,
			TotalTurnover:        8000000,
			WithPositiveNews:     1,
			PositiveNewsRatioPct: 50,
			PartialCount:         1,
		},
	}
}

func sampleScreens() *models.ScreenReport {
	return &models.ScreenReport{
		TradeDate: tradeDate,
		Outcome:   models.OutcomeMatched,
		RowCount:  10,
		Dropped:   1,
		Results: []models.RankedResult{
			{Rule: "limit_up", Outcome: models.OutcomeMatched, Rows: []models.MarketRow{{SecurityID: "600519.SH", Name: "贵州茅台", ChangePct: 10.01}}},
			{Rule: "new_high", Outcome: models.OutcomeNoMatches},
			{Rule: "big/drop", Outcome: models.OutcomeSourceFailed, Err: "history unavailable"},
		},
	}
}

func TestAnalysisMarkdown(t *testing.T) {
	md := AnalysisMarkdown(sampleReport())

	assert.Contains(t, md, "# 涨停复盘 20240315")
	assert.Contains(t, md, "| 涨停家数 | 2 |")
	assert.Contains(t, md, "| 总成交额(亿元) | 80.00 |")
	assert.Contains(t, md, "| 白酒 | 1 |")
	assert.Contains(t, md, "| 未知 | 1 |")
	assert.Contains(t, md, "| performance_increase | 1 |")
	assert.Contains(t, md, "| 600519.SH | 贵州茅台 | 10.01% | 50.00 | 白酒 | 业绩预增: 2023年度业绩预增公告 | 是 |")
	assert.Contains(t, md, "| 300750.SZ | 宁德时代 | 20.00% | 30.00 | - | - | 题材驱动 |")
	assert.Contains(t, md, "**主营业务**: 白酒生产与销售")
	assert.Contains(t, md, "_不完整: business_info_")
}

func TestAnalysisMarkdown_Empty(t *testing.T) {
	md := AnalysisMarkdown(&models.AnalysisReport{TradeDate: tradeDate, Outcome: models.OutcomeNonTradingDay})

	assert.Contains(t, md, "non_trading_day")
	assert.NotContains(t, md, "## 个股明细")
}

func TestScreensMarkdown(t *testing.T) {
	md := ScreensMarkdown(sampleScreens())

	assert.Contains(t, md, "## limit_up (1)")
	assert.Contains(t, md, "_no_matches_")
	assert.Contains(t, md, "_source_failed: history unavailable_")
}

func TestRankingsMarkdown(t *testing.T) {
	md := RankingsMarkdown([]models.ReturnRanking{
		{
			Window:   "5d",
			EndDate:  tradeDate,
			Outcome:  models.OutcomeMatched,
			Rows:     []models.ReturnRow{{SecurityID: "A", Name: "a|b", CumulativeReturnPct: 12.5, WindowStartDate: tradeDate.AddDate(0, 0, -7), StartClose: 10, EndClose: 11.25}},
			Excluded: 2,
		},
	})

	assert.Contains(t, md, "## 5d 截至 20240315")
	assert.Contains(t, md, "| 1 | A | a\\|b | 12.50% | 20240308 | 10.00 | 11.25 |")
	assert.Contains(t, md, "_2 只证券数据不足被排除_")
}

func TestMarkdownToPDF(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
	}{
		{"basic", "# Title\n\nSome paragraph text.\n\n- Item 1\n- Item 2"},
		{"empty", ""},
		{"table and code", "# Header\n\n| Col 1 | Col 2 |\n|-------|-------|\n| Val 1 | Val 2 |\n\n```\nplain code\n```"},
		{"emphasis", "Normal **Bold** *Italic* ***BoldItalic*** `code`"},
		{"chinese without font", "# 涨停复盘\n\n| 代码 | 名称 |\n| --- | --- |\n| 600519.SH | 贵州茅台 |"},
		{"analysis report", AnalysisMarkdown(sampleReport())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarkdownToPDF(tt.markdown, tt.name, "")
			require.NoError(t, err)
			require.NotEmpty(t, data)
			assert.Equal(t, "%PDF", string(data[:4]))
		})
	}
}

func TestMarkdownToPDF_MissingFont(t *testing.T) {
	_, err := MarkdownToPDF("# x", "x", filepath.Join(t.TempDir(), "missing.ttf"))
	assert.Error(t, err)
}

func TestPDFRenderer_Wrap(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 8)
	r := &pdfRenderer{pdf: pdf}

	lines := r.wrap("alpha beta gamma delta epsilon", 20)
	require.Greater(t, len(lines), 1)
	assert.Equal(t, "alpha beta gamma delta epsilon", strings.Join(lines, " "))
	for _, line := range lines {
		assert.Equal(t, strings.TrimSpace(line), line)
	}

	assert.Nil(t, r.wrap("", 20))
	assert.Equal(t, []string{"short"}, r.wrap("short", 100))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"白", "酒", " A", "股", " ok"}, tokenize("白酒 A股 ok"))
	assert.Equal(t, []string{"a", "，", "b"}, tokenize("a，b"))
	assert.Empty(t, tokenize(""))
}

func TestAnalysisWorkbook(t *testing.T) {
	f, err := AnalysisWorkbook(sampleReport())
	require.NoError(t, err)
	data, err := workbookBytes(f)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{sheetDetail, sheetSummary, sheetIndustry, sheetThemes}, wb.GetSheetList())

	rows, err := wb.GetRows(sheetDetail)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "代码", rows[0][0])
	assert.Equal(t, "600519.SH", rows[1][0])
	assert.Equal(t, "50", rows[1][4])
	assert.Equal(t, "是", rows[2][12])

	summary, err := wb.GetRows(sheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"交易日", "20240315"}, summary[1])
	assert.Equal(t, []string{"涨停家数", "2"}, summary[3])

	industry, err := wb.GetRows(sheetIndustry)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"行业", "家数"}, {"白酒", "1"}, {"未知", "1"}}, industry)
}

func TestScreensWorkbook(t *testing.T) {
	f, err := ScreensWorkbook(sampleScreens())
	require.NoError(t, err)
	data, err := workbookBytes(f)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"limit_up", "new_high", "big drop"}, wb.GetSheetList())

	rows, err := wb.GetRows("big drop")
	require.NoError(t, err)
	assert.Equal(t, "source_failed: history unavailable", rows[1][0])
}

func TestSanitizeSheetName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"limit_up", "limit_up"},
		{"a/b:c", "a b c"},
		{"  ", "Sheet"},
		{strings.Repeat("x", 40), strings.Repeat("x", 28)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeSheetName(tt.in), tt.in)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "limit_up_analysis_20240315.md", FileName(PrefixAnalysis, tradeDate, FormatMarkdown))
	assert.Equal(t, "screens_20240315.xlsx", FileName(PrefixScreens, tradeDate, FormatXLSX))
}

func TestWriter_WriteAnalysis(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := NewWriter(common.ReportConfig{
		OutputDir: dir,
		Formats:   []string{FormatJSON, FormatMarkdown, FormatXLSX, FormatPDF},
	}, arbor.NewLogger())

	artifacts, err := w.WriteAnalysis(sampleReport())
	require.NoError(t, err)
	require.Len(t, artifacts, 4)

	for _, a := range artifacts {
		info, err := os.Stat(a.Path)
		require.NoError(t, err, a.Path)
		assert.Equal(t, int64(a.Size), info.Size())
	}

	data, err := os.ReadFile(filepath.Join(dir, "limit_up_analysis_20240315.json"))
	require.NoError(t, err)
	var decoded models.AnalysisReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.Analyses, 2)
	assert.Equal(t, 1, decoded.AnnouncementThemeCounts[models.CategoryPerformanceIncrease])

	_, err = os.Stat(filepath.Join(dir, "limit_up_analysis_20240315.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_UnsupportedFormat(t *testing.T) {
	w := NewWriter(common.ReportConfig{OutputDir: t.TempDir(), Formats: []string{"json", "docx"}}, arbor.NewLogger())

	artifacts, err := w.WriteScreens(sampleScreens())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docx")
	require.Len(t, artifacts, 1)
	assert.Equal(t, FormatJSON, artifacts[0].Format)
}

func TestWriter_DefaultFormats(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(common.ReportConfig{OutputDir: dir}, arbor.NewLogger())

	artifacts, err := w.WriteRankings(tradeDate, []models.ReturnRanking{{Window: "5d", EndDate: tradeDate, Outcome: models.OutcomeNoMatches}})
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.FileExists(t, filepath.Join(dir, "rankings_20240315.json"))
	assert.FileExists(t, filepath.Join(dir, "rankings_20240315.md"))
}

func TestLogAnalysisSummary(t *testing.T) {
	logger := arbor.NewLogger()
	assert.NotPanics(t, func() {
		LogAnalysisSummary(logger, sampleReport())
		LogScreens(logger, sampleScreens())
		LogRankings(logger, []models.ReturnRanking{{Window: "5d", Rows: []models.ReturnRow{{SecurityID: "A"}}}})
	})
}
