package main

import (
	"github.com/spf13/cobra"

	"github.com/stock-programmer/limit-up-review/internal/common"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run every screening rule for one trading date",
	Long:  `Runs the limit-up, turnover and new-high screens for a trading date and writes the screens report.`,
	RunE:  runScreen,
}

var screenDate string

func init() {
	screenCmd.Flags().StringVarP(&screenDate, "date", "d", "", "Trading date YYYYMMDD (default: latest weekday)")
}

func runScreen(cmd *cobra.Command, args []string) error {
	date, err := tradeDate(screenDate)
	if err != nil {
		return err
	}

	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	result, artifacts, err := application.RunScreens(cmd.Context(), date)
	for _, artifact := range artifacts {
		logger.Info().Str("format", artifact.Format).Str("path", artifact.Path).Msg("Report written")
	}
	if err != nil {
		return err
	}

	logger.Info().
		Str("trade_date", common.FormatTradeDate(date)).
		Str("outcome", string(result.Outcome)).
		Int("screens", len(result.Results)).
		Msg("Screening complete")
	return nil
}
