package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/eodhd"
	"github.com/stock-programmer/limit-up-review/internal/httpclient"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
	"github.com/stock-programmer/limit-up-review/internal/services/analysis"
	"github.com/stock-programmer/limit-up-review/internal/services/announcements"
	"github.com/stock-programmer/limit-up-review/internal/services/documents"
	"github.com/stock-programmer/limit-up-review/internal/services/llm"
	"github.com/stock-programmer/limit-up-review/internal/services/mailer"
	"github.com/stock-programmer/limit-up-review/internal/services/market"
	"github.com/stock-programmer/limit-up-review/internal/services/report"
	"github.com/stock-programmer/limit-up-review/internal/services/scheduler"
	"github.com/stock-programmer/limit-up-review/internal/services/screening"
	"github.com/stock-programmer/limit-up-review/internal/storage"
	"github.com/stock-programmer/limit-up-review/internal/tushare"
)

// AnalyzeJobName is the scheduler job that runs the daily review.
const AnalyzeJobName = "daily_limit_up_review"

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// StorageManager is nil when storage.badger.enabled is false
	StorageManager interfaces.StorageManager

	MarketService       *market.Service
	AnnouncementService *announcements.Service
	Classifier          *announcements.Classifier
	DocumentFetcher     *documents.Fetcher
	Summarizer          *llm.ChainSummarizer
	Analyzer            *analysis.Analyzer
	ReportWriter        *report.Writer
	Mailer              *mailer.Service
	SchedulerService    *scheduler.Service

	eodhdClient *eodhd.Client
	cninfo      *announcements.CNINFOProvider
	now         func() time.Time
}

// New initializes the application with all dependencies. cfg is cloned before
// {key} references are replaced, so the caller's copy is never modified.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	cfg = common.DeepCloneConfig(cfg)
	app := &App{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("market_source", cfg.Market.Source).
		Bool("storage", app.StorageManager != nil).
		Bool("announcements", app.AnnouncementService != nil).
		Int("summarizers", app.Summarizer.Len()).
		Bool("mail", cfg.Mail.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the optional Badger store and loads variables into it
func (a *App) initDatabase(ctx context.Context) error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	if storageManager == nil {
		a.Logger.Debug().Msg("Badger storage disabled")
		return nil
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Load variables from files (e.g. API keys, SMTP settings)
	if _, err := a.StorageManager.LoadVariablesFromFiles(ctx, a.Config.Variables.Dir); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	// .env entries take precedence over TOML variables
	if _, err := a.StorageManager.LoadEnvFile(ctx, ".env"); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	// Replace {key-name} references in config with KV values before any client is built
	kvMap, err := a.StorageManager.KeyValueStorage().GetAll(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
	} else if len(kvMap) > 0 {
		if err := common.ReplaceInStruct(a.Config, kvMap, a.Logger); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to replace key references in config")
		}
	}

	return nil
}

// kvStorage returns the KV store or nil
func (a *App) kvStorage() interfaces.KeyValueStorage {
	if a.StorageManager == nil {
		return nil
	}
	return a.StorageManager.KeyValueStorage()
}

// initServices builds the collaborators in dependency order
func (a *App) initServices(ctx context.Context) error {
	cfg := a.Config
	kv := a.kvStorage()

	if apiKey, err := common.ResolveAPIKey(ctx, kv, "eodhd_api_key", cfg.EODHD.APIKey); err == nil {
		a.eodhdClient = eodhd.NewClient(apiKey,
			eodhd.WithBaseURL(cfg.EODHD.BaseURL),
			eodhd.WithRateLimit(cfg.EODHD.RateLimit),
			eodhd.WithHTTPClient(httpclient.NewDefaultHTTPClient(common.Duration(cfg.EODHD.Timeout, 30*time.Second))),
			eodhd.WithLogger(a.Logger),
		)
	}

	// 1. Market data
	source, normalize, err := a.marketSource(ctx)
	if err != nil {
		return err
	}
	var snapshots interfaces.SnapshotStorage
	if a.StorageManager != nil {
		snapshots = a.StorageManager.SnapshotStorage()
	}
	a.MarketService = market.NewService(source, snapshots, market.Options{
		Normalize:       normalize,
		Params:          screening.RuleParamsFromConfig(cfg.Screening),
		Thresholds:      screening.ThresholdsFromConfig(cfg.Screening.LimitUp),
		NewHighLookback: cfg.Screening.NewHighLookback,
		RankingTopK:     cfg.Ranking.TopK,
	}, a.Logger)

	// 2. Announcements
	table := announcements.DefaultKeywordTable()
	if cfg.Announcements.KeywordFile != "" {
		table, err = announcements.LoadKeywordTable(cfg.Announcements.KeywordFile)
		if err != nil {
			return fmt.Errorf("failed to load keyword table: %w", err)
		}
		a.Logger.Info().Str("path", cfg.Announcements.KeywordFile).Int("rules", table.Len()).Msg("Keyword table loaded")
	}
	a.Classifier = announcements.NewClassifier(table)

	var providers []interfaces.AnnouncementProvider
	if cfg.CNINFO.Enabled {
		client, err := httpclient.NewBrowserClient(common.Duration(cfg.CNINFO.Timeout, 30*time.Second), cfg.Documents.UserAgent)
		if err != nil {
			return err
		}
		a.cninfo = announcements.NewCNINFOProvider(announcements.CNINFOOptions{
			BaseURL:    cfg.CNINFO.BaseURL,
			StaticURL:  cfg.CNINFO.StaticURL,
			PageSize:   cfg.CNINFO.PageSize,
			MaxPages:   cfg.CNINFO.MaxPages,
			RateLimit:  cfg.CNINFO.RateLimit,
			HTTPClient: client,
		}, a.Logger)
		providers = append(providers, a.cninfo)
	}
	if cfg.EODHD.News && a.eodhdClient != nil {
		providers = append(providers, announcements.NewEODHDProvider(a.eodhdClient, a.Logger))
	}
	if len(providers) > 0 {
		a.AnnouncementService = announcements.NewService(a.Logger, providers...)
	}

	// 3. Documents and business summaries
	a.DocumentFetcher = documents.NewFetcher(documents.FetcherOptions{
		MaxBytes:  cfg.Documents.MaxBytes,
		RateLimit: cfg.Documents.RateLimit,
		Timeout:   common.Duration(cfg.Documents.Timeout, 60*time.Second),
		UserAgent: cfg.Documents.UserAgent,
	}, documents.NewPDFExtractor(a.Logger), a.Logger)

	var summarizers []interfaces.BusinessSummarizer
	if cfg.LLM.Enabled {
		provider, err := llm.NewProvider(ctx, cfg, kv, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM provider: %w", err)
		}
		summarizers = append(summarizers, llm.NewSummarizer(provider, a.DocumentFetcher, a.Logger))
	}
	if a.eodhdClient != nil {
		summarizers = append(summarizers, llm.NewFundamentalsSummarizer(a.eodhdClient, a.Logger))
	}
	a.Summarizer = llm.NewChainSummarizer(a.Logger, summarizers...)

	// 4. Analyzer
	collab := analysis.Collaborators{}
	if a.AnnouncementService != nil {
		collab.Announcements = a.AnnouncementService
	}
	if financials, ok := source.(interfaces.FinancialIndicatorProvider); ok {
		collab.Financials = financials
	}
	if a.Summarizer.Len() > 0 {
		collab.Summarizer = a.Summarizer
		if a.cninfo != nil {
			collab.Reports = a.cninfo
		}
	}
	a.Analyzer = analysis.NewAnalyzer(a.MarketService, collab, a.Classifier, analysis.Options{
		MaxStocks:    cfg.Analysis.MaxStocks,
		Concurrency:  cfg.Analysis.Concurrency,
		LookbackDays: cfg.Analysis.LookbackDays,
		ReasonsTopK:  cfg.Analysis.ReasonsTopK,
		Timeout:      common.Duration(cfg.Analysis.Timeout, 3*time.Minute),
	}, a.Logger)

	// 5. Output
	a.ReportWriter = report.NewWriter(cfg.Report, a.Logger)
	a.Mailer = mailer.NewService(cfg.Mail, kv, a.Logger)

	return nil
}

// marketSource builds the configured market data source
func (a *App) marketSource(ctx context.Context) (interfaces.MarketDataSource, screening.NormalizeOptions, error) {
	cfg := a.Config
	switch cfg.Market.Source {
	case market.SourceEODHD:
		if a.eodhdClient == nil {
			return nil, screening.NormalizeOptions{}, errors.New("market.source is eodhd but no EODHD API key is configured")
		}
		return market.NewEODHDSource(a.eodhdClient, cfg.EODHD.Exchanges, a.Logger), screening.EODHDNormalizeOptions(), nil
	case market.SourceTushare, "":
		token, err := common.ResolveAPIKey(ctx, a.kvStorage(), "tushare_token", cfg.Tushare.Token)
		if err != nil {
			return nil, screening.NormalizeOptions{}, fmt.Errorf("market.source is tushare: %w", err)
		}
		client := tushare.NewClient(token,
			tushare.WithBaseURL(cfg.Tushare.BaseURL),
			tushare.WithRateLimit(cfg.Tushare.RateLimit),
			tushare.WithHTTPClient(httpclient.NewDefaultHTTPClient(common.Duration(cfg.Tushare.Timeout, 30*time.Second))),
			tushare.WithLogger(a.Logger),
		)
		return market.NewTushareSource(client, a.Logger), screening.TushareNormalizeOptions(), nil
	default:
		return nil, screening.NormalizeOptions{}, fmt.Errorf("unsupported market source: %s", cfg.Market.Source)
	}
}

// RunScreens screens one date, writes the screens report and logs it.
func (a *App) RunScreens(ctx context.Context, date time.Time) (*models.ScreenReport, []report.Artifact, error) {
	result := a.MarketService.ScreenDate(ctx, date)
	report.LogScreens(a.Logger, &result)
	artifacts, err := a.ReportWriter.WriteScreens(&result)
	return &result, artifacts, err
}

// RunRankings ranks the market over each window ending on end.
func (a *App) RunRankings(ctx context.Context, windows []string, end time.Time) ([]models.ReturnRanking, []report.Artifact, error) {
	if len(windows) == 0 {
		windows = a.Config.Ranking.Windows
	}
	parsed, err := screening.ParseWindows(windows)
	if err != nil {
		return nil, nil, err
	}

	rankings := make([]models.ReturnRanking, 0, len(parsed))
	for _, window := range parsed {
		rankings = append(rankings, a.MarketService.RankMarket(ctx, window, end))
	}
	report.LogRankings(a.Logger, rankings)
	artifacts, err := a.ReportWriter.WriteRankings(end, rankings)
	return rankings, artifacts, err
}

// RunAnalysis runs the limit-up review for date, writes the reports and mails
// them when mail is enabled. The report is returned even when writing fails.
func (a *App) RunAnalysis(ctx context.Context, date time.Time) (*models.AnalysisReport, []report.Artifact, error) {
	result := a.Analyzer.Run(ctx, date)
	report.LogAnalysisSummary(a.Logger, result)

	artifacts, err := a.ReportWriter.WriteAnalysis(result)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Some report formats failed")
	}

	if a.Config.Mail.Enabled && result.Outcome != models.OutcomeNonTradingDay {
		paths := make([]string, 0, len(artifacts))
		for _, artifact := range artifacts {
			if artifact.Format != report.FormatMarkdown {
				paths = append(paths, artifact.Path)
			}
		}
		subject := "涨停复盘 " + common.FormatTradeDate(result.TradeDate)
		if mailErr := a.Mailer.SendReport(ctx, subject, report.AnalysisMarkdown(result), paths); mailErr != nil {
			err = errors.Join(err, mailErr)
		}
	}

	return result, artifacts, err
}

// StartScheduler registers the daily review and starts firing it. The job
// analyzes the current China date.
func (a *App) StartScheduler() error {
	svc, err := scheduler.NewService(a.Config.Scheduler.Timezone, a.kvStorage(), a.Logger)
	if err != nil {
		return err
	}

	schedule := a.Config.Scheduler.Schedule
	if schedule == "" {
		schedule = scheduler.DefaultSchedule
	}
	if err := svc.RegisterJob(AnalyzeJobName, schedule, "Daily limit-up review", func(ctx context.Context) error {
		date := common.Today(a.now())
		runLogger := a.Logger.WithCorrelationId(common.NewRunID())
		runLogger.Info().Str("trade_date", common.FormatTradeDate(date)).Msg("Scheduled review starting")
		_, _, err := a.RunAnalysis(ctx, date)
		return err
	}); err != nil {
		return err
	}

	if err := svc.Start(); err != nil {
		return err
	}
	a.SchedulerService = svc
	return nil
}

// Close shuts down the scheduler and storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}
	return nil
}

// EnsureOutputDir creates the report directory up front so permission
// problems surface before a long run.
func (a *App) EnsureOutputDir() error {
	return os.MkdirAll(a.Config.Report.OutputDir, 0755)
}
