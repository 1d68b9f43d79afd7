package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stock-programmer/limit-up-review/internal/app"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the daily review on the configured cron schedule",
	Long:  `Starts the scheduler and runs the limit-up review on scheduler.schedule until interrupted.`,
	RunE:  runSchedule,
}

var runNow bool

func init() {
	scheduleCmd.Flags().BoolVar(&runNow, "now", false, "Run the review once immediately after starting")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if !config.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, set scheduler.enabled = true")
	}

	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.StartScheduler(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if runNow {
		if err := application.SchedulerService.TriggerJob(app.AnalyzeJobName); err != nil {
			logger.Warn().Err(err).Msg("Immediate run failed")
		}
	}

	if status, err := application.SchedulerService.GetJobStatus(app.AnalyzeJobName); err == nil && status.NextRun != nil {
		logger.Info().Str("next_run", status.NextRun.String()).Msg("Scheduler ready - Press Ctrl+C to stop")
	}

	<-cmd.Context().Done()
	logger.Info().Msg("Interrupt signal received")
	return nil
}
