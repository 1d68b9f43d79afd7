package main

import (
	"github.com/spf13/cobra"

	"github.com/stock-programmer/limit-up-review/internal/common"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Explain the limit-up stocks of one trading date",
	Long:  `Correlates each limit-up stock with its recent announcements, financials and business summary, then writes and optionally mails the review.`,
	RunE:  runAnalyze,
}

var analyzeDate string

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeDate, "date", "d", "", "Trading date YYYYMMDD (default: latest weekday)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	date, err := tradeDate(analyzeDate)
	if err != nil {
		return err
	}

	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	result, artifacts, err := application.RunAnalysis(cmd.Context(), date)
	for _, artifact := range artifacts {
		logger.Info().Str("format", artifact.Format).Str("path", artifact.Path).Int("bytes", artifact.Size).Msg("Report written")
	}
	if err != nil {
		return err
	}

	logger.Info().
		Str("trade_date", common.FormatTradeDate(date)).
		Str("outcome", string(result.Outcome)).
		Int("analyzed", len(result.Analyses)).
		Msg("Analysis complete")
	return nil
}
