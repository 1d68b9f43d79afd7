package main

import (
	"github.com/spf13/cobra"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank market returns over trailing windows",
	Long:  `Ranks every security by its return over each window (5d, 10d, 20d, ytd) ending on a trading date.`,
	RunE:  runRank,
}

var (
	rankDate    string
	rankWindows []string
)

func init() {
	rankCmd.Flags().StringVarP(&rankDate, "date", "d", "", "Window end date YYYYMMDD (default: latest weekday)")
	rankCmd.Flags().StringSliceVarP(&rankWindows, "window", "w", nil, "Windows to rank, e.g. 5d,ytd (default: ranking.windows)")
}

func runRank(cmd *cobra.Command, args []string) error {
	end, err := tradeDate(rankDate)
	if err != nil {
		return err
	}

	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	rankings, artifacts, err := application.RunRankings(cmd.Context(), rankWindows, end)
	for _, artifact := range artifacts {
		logger.Info().Str("format", artifact.Format).Str("path", artifact.Path).Msg("Report written")
	}
	if err != nil {
		return err
	}

	logger.Info().Int("windows", len(rankings)).Msg("Ranking complete")
	return nil
}
