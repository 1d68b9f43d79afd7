package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/app"
	"github.com/stock-programmer/limit-up-review/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported
	logLevel    string
	outputDir   string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "limitup",
	Short:         "Screen the A-share market and explain limit-up moves",
	Long:          `Screens daily A-share market data, ranks multi-window returns and correlates limit-up stocks with company announcements.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Report output directory (overrides config)")

	rootCmd.AddCommand(screenCmd, rankCmd, analyzeCmd, scheduleCmd, versionCmd)
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence shared by every command:
// defaults -> file1 -> file2 -> ... -> env -> CLI flags, then logger and banner.
func loadConfig() error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("limitup.toml"); err == nil {
			configFiles = append(configFiles, "limitup.toml")
		} else if _, err := os.Stat("deployments/local/limitup.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/limitup.toml")
		}
	}

	// KV replacement happens in app.New() after storage initialization
	var err error
	config, err = common.LoadFromFiles(nil, configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration files %v: %w", configFiles, err)
	}

	common.ApplyFlagOverrides(config, logLevel, outputDir)

	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.Version)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("market_source", config.Market.Source).
		Bool("badger_enabled", config.Storage.Badger.Enabled).
		Str("output_dir", config.Report.OutputDir).
		Strs("formats", config.Report.Formats).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration (sanitized)")

	return nil
}

// newApp initializes the application for one command.
func newApp(ctx context.Context) (*app.App, error) {
	application, err := app.New(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	if err := application.EnsureOutputDir(); err != nil {
		application.Close()
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return application, nil
}

// tradeDate parses a --date flag, defaulting to the latest weekday in China.
func tradeDate(value string) (time.Time, error) {
	if value == "" {
		return common.LastWorkingDay(time.Now()), nil
	}
	return common.ParseTradeDate(value)
}
