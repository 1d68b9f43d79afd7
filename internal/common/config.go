package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIMITUP_"

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment"` // "development" or "production"
	Logging       LoggingConfig       `toml:"logging"`
	Storage       StorageConfig       `toml:"storage"`
	Variables     VariablesConfig     `toml:"variables"`
	Market        MarketConfig        `toml:"market"`
	Tushare       TushareConfig       `toml:"tushare"`
	EODHD         EODHDConfig         `toml:"eodhd"`
	CNINFO        CNINFOConfig        `toml:"cninfo"`
	Screening     ScreeningConfig     `toml:"screening"`
	Ranking       RankingConfig       `toml:"ranking"`
	Analysis      AnalysisConfig      `toml:"analysis"`
	Announcements AnnouncementsConfig `toml:"announcements"`
	Documents     DocumentsConfig     `toml:"documents"`
	Gemini        GeminiConfig        `toml:"gemini"`
	Claude        ClaudeConfig        `toml:"claude"`
	LLM           LLMConfig           `toml:"llm"`
	Report        ReportConfig        `toml:"report"`
	Mail          MailConfig          `toml:"mail"`
	Scheduler     SchedulerConfig     `toml:"scheduler"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"`
	Output     []string `toml:"output" validate:"dive,oneof=stdout console file"` // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`          // KV store and market snapshot cache
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

// VariablesConfig locates variables.toml files loaded into the KV store
type VariablesConfig struct {
	Dir string `toml:"dir"`
}

// MarketConfig selects the market data source.
type MarketConfig struct {
	Source string `toml:"source" validate:"oneof=tushare eodhd"`
}

type TushareConfig struct {
	Token     string `toml:"token"`
	BaseURL   string `toml:"base_url" validate:"required,url"`
	RateLimit int    `toml:"rate_limit" validate:"gte=1"` // Requests per second
	Timeout   string `toml:"timeout"`
}

type EODHDConfig struct {
	APIKey    string   `toml:"api_key"`
	BaseURL   string   `toml:"base_url" validate:"required,url"`
	RateLimit int      `toml:"rate_limit" validate:"gte=1"`
	Exchanges []string `toml:"exchanges"` // Bulk EOD exchanges, e.g. SHG and SHE
	News      bool     `toml:"news"`      // Use EODHD news as an announcement fallback
	Timeout   string   `toml:"timeout"`
}

type CNINFOConfig struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url" validate:"required,url"`
	StaticURL string `toml:"static_url" validate:"required,url"`
	RateLimit int    `toml:"rate_limit" validate:"gte=1"`
	PageSize  int    `toml:"page_size" validate:"gte=1,lte=100"`
	MaxPages  int    `toml:"max_pages" validate:"gte=1"`
	Timeout   string `toml:"timeout"`
}

// LimitUpConfig holds the limit-up threshold (percent) per board.
type LimitUpConfig struct {
	Standard       float64 `toml:"standard" validate:"gt=0"`
	HighVolatility float64 `toml:"high_volatility" validate:"gt=0"`
	Beijing        float64 `toml:"beijing" validate:"gt=0"`
	RiskWarning    float64 `toml:"risk_warning" validate:"gt=0"`
}

// ScreeningConfig holds rule parameters. Amounts are thousands of CNY.
type ScreeningConfig struct {
	LimitUp         LimitUpConfig `toml:"limit_up"`
	MinAmount       float64       `toml:"min_amount" validate:"gte=0"`
	MinGainPct      float64       `toml:"min_gain_pct" validate:"gte=0"`
	MinDeclinePct   float64       `toml:"min_decline_pct" validate:"gte=0"`
	MinMarketCap    float64       `toml:"min_market_cap" validate:"gte=0"`
	TopK            int           `toml:"top_k" validate:"gte=1"`
	NewHighLookback int           `toml:"new_high_lookback" validate:"gte=1"` // Trading days
}

type RankingConfig struct {
	TopK    int      `toml:"top_k" validate:"gte=1"`
	Windows []string `toml:"windows" validate:"min=1,dive,oneof=5d 10d 20d ytd"`
}

type AnalysisConfig struct {
	MaxStocks    int    `toml:"max_stocks" validate:"gte=1"`
	Concurrency  int    `toml:"concurrency" validate:"gte=1,lte=32"`
	LookbackDays int    `toml:"lookback_days" validate:"gte=1"` // Calendar days before the trade date
	ReasonsTopK  int    `toml:"reasons_top_k" validate:"gte=1"`
	Timeout      string `toml:"timeout"` // Per-security timeout
}

type AnnouncementsConfig struct {
	KeywordFile string `toml:"keyword_file"` // Optional YAML keyword table
}

type DocumentsConfig struct {
	MaxBytes  int64  `toml:"max_bytes" validate:"gte=1024"`
	RateLimit int    `toml:"rate_limit" validate:"gte=1"`
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	RateLimit   int     `toml:"rate_limit" validate:"gte=1"` // Requests per minute
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	RateLimit   int     `toml:"rate_limit" validate:"gte=1"` // Requests per minute
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the business summary provider.
type LLMConfig struct {
	Enabled         bool        `toml:"enabled"`
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"`
}

type ReportConfig struct {
	OutputDir string   `toml:"output_dir" validate:"required"`
	Formats   []string `toml:"formats" validate:"dive,oneof=json markdown xlsx pdf"`
	PDFFont   string   `toml:"pdf_font"` // TTF with CJK glyphs, required for readable PDF names
}

type MailConfig struct {
	Enabled  bool     `toml:"enabled"`
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // 5-field cron
	Timezone string `toml:"timezone"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled: false, // Engine is stateless unless the cache is opted into
				Path:    "./data",
			},
		},
		Variables: VariablesConfig{
			Dir: "./variables",
		},
		Market: MarketConfig{
			Source: "tushare",
		},
		Tushare: TushareConfig{
			BaseURL:   "https://api.tushare.pro",
			RateLimit: 3,
			Timeout:   "30s",
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
			Exchanges: []string{"SHG", "SHE"},
			Timeout:   "30s",
		},
		CNINFO: CNINFOConfig{
			Enabled:   true,
			BaseURL:   "http://www.cninfo.com.cn",
			StaticURL: "https://static.cninfo.com.cn",
			RateLimit: 2,
			PageSize:  30,
			MaxPages:  5,
			Timeout:   "30s",
		},
		Screening: ScreeningConfig{
			LimitUp: LimitUpConfig{
				Standard:       9.9,
				HighVolatility: 19.9,
				Beijing:        29.9,
				RiskWarning:    4.9,
			},
			MinAmount:       400000, // 400M CNY
			MinGainPct:      5,
			MinDeclinePct:   5,
			MinMarketCap:    30000000, // 30B CNY
			TopK:            30,
			NewHighLookback: 60,
		},
		Ranking: RankingConfig{
			TopK:    30,
			Windows: []string{"5d", "10d", "20d", "ytd"},
		},
		Analysis: AnalysisConfig{
			MaxStocks:    20,
			Concurrency:  4,
			LookbackDays: 30,
			ReasonsTopK:  3,
			Timeout:      "3m",
		},
		Documents: DocumentsConfig{
			MaxBytes:  20 * 1024 * 1024, // 20MB
			RateLimit: 2,
			Timeout:   "60s",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			RateLimit:   10,
			Timeout:     "5m",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   2048,
			RateLimit:   50,
			Timeout:     "5m",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			Enabled:         false,
			DefaultProvider: LLMProviderGemini,
		},
		Report: ReportConfig{
			OutputDir: "./output",
			Formats:   []string{"json", "markdown", "xlsx"},
		},
		Mail: MailConfig{
			Port: 587,
		},
		Scheduler: SchedulerConfig{
			Schedule: "0 16 * * 1-5", // Weekdays after the close
			Timezone: "Asia/Shanghai",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files. kvStorage can be nil, in which case {key}
// references are left untouched.
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if kvStorage != nil {
		kvMap, err := kvStorage.GetAll(context.Background())
		if err != nil {
			GetLogger().Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else if err := ReplaceInStruct(config, kvMap, GetLogger()); err != nil {
			GetLogger().Warn().Err(err).Msg("Failed to replace key references in config")
		}
	}

	// .env never overrides variables already present in the process environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		GetLogger().Warn().Err(err).Msg("Failed to load .env file")
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies LIMITUP_* environment variable overrides to config.
// Unparseable values are ignored.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv(EnvPrefix + "ENV"); env != "" {
		config.Environment = env
	}

	// Logging
	if level := os.Getenv(EnvPrefix + "LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv(EnvPrefix + "LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage
	if enabled := os.Getenv(EnvPrefix + "BADGER_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Badger.Enabled = b
		}
	}
	if path := os.Getenv(EnvPrefix + "BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	// Market sources
	if source := os.Getenv(EnvPrefix + "MARKET_SOURCE"); source != "" {
		config.Market.Source = source
	}
	if token := os.Getenv(EnvPrefix + "TUSHARE_TOKEN"); token != "" {
		config.Tushare.Token = token
	}
	if rl := os.Getenv(EnvPrefix + "TUSHARE_RATE_LIMIT"); rl != "" {
		if n, err := strconv.Atoi(rl); err == nil {
			config.Tushare.RateLimit = n
		}
	}
	if apiKey := os.Getenv(EnvPrefix + "EODHD_API_KEY"); apiKey != "" {
		config.EODHD.APIKey = apiKey
	}
	if enabled := os.Getenv(EnvPrefix + "CNINFO_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.CNINFO.Enabled = b
		}
	}

	// Screening
	if v := os.Getenv(EnvPrefix + "SCREENING_MIN_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Screening.MinAmount = f
		}
	}
	if v := os.Getenv(EnvPrefix + "SCREENING_MIN_MARKET_CAP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Screening.MinMarketCap = f
		}
	}
	if v := os.Getenv(EnvPrefix + "SCREENING_LIMIT_UP_STANDARD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Screening.LimitUp.Standard = f
		}
	}
	if v := os.Getenv(EnvPrefix + "SCREENING_LIMIT_UP_HIGH_VOLATILITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Screening.LimitUp.HighVolatility = f
		}
	}

	// Analysis
	if v := os.Getenv(EnvPrefix + "ANALYSIS_MAX_STOCKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Analysis.MaxStocks = n
		}
	}
	if v := os.Getenv(EnvPrefix + "ANALYSIS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Analysis.Concurrency = n
		}
	}
	if v := os.Getenv(EnvPrefix + "ANALYSIS_LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Analysis.LookbackDays = n
		}
	}

	// LLM providers
	if apiKey := os.Getenv(EnvPrefix + "GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv(EnvPrefix + "GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv(EnvPrefix + "CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // LIMITUP_ prefix takes priority
	}
	if model := os.Getenv(EnvPrefix + "CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if enabled := os.Getenv(EnvPrefix + "LLM_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.LLM.Enabled = b
		}
	}
	if provider := os.Getenv(EnvPrefix + "LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Report and mail
	if dir := os.Getenv(EnvPrefix + "REPORT_OUTPUT_DIR"); dir != "" {
		config.Report.OutputDir = dir
	}
	if formats := os.Getenv(EnvPrefix + "REPORT_FORMATS"); formats != "" {
		if f := splitList(formats); len(f) > 0 {
			config.Report.Formats = f
		}
	}
	if host := os.Getenv(EnvPrefix + "MAIL_HOST"); host != "" {
		config.Mail.Host = host
	}
	if password := os.Getenv(EnvPrefix + "MAIL_PASSWORD"); password != "" {
		config.Mail.Password = password
	}
	if to := os.Getenv(EnvPrefix + "MAIL_TO"); to != "" {
		config.Mail.To = splitList(to)
	}

	// Scheduler
	if schedule := os.Getenv(EnvPrefix + "SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, logLevel string, outputDir string) {
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if outputDir != "" {
		config.Report.OutputDir = outputDir
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the cross-field rules validator tags cannot express.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for _, d := range []struct{ name, value string }{
		{"tushare.timeout", c.Tushare.Timeout},
		{"eodhd.timeout", c.EODHD.Timeout},
		{"cninfo.timeout", c.CNINFO.Timeout},
		{"analysis.timeout", c.Analysis.Timeout},
		{"documents.timeout", c.Documents.Timeout},
		{"gemini.timeout", c.Gemini.Timeout},
		{"claude.timeout", c.Claude.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", d.name, err)
		}
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" || c.Mail.From == "" || len(c.Mail.To) == 0 {
			return fmt.Errorf("invalid configuration: mail.enabled requires host, from and to")
		}
	}

	if c.Scheduler.Enabled {
		if err := ValidateJobSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid configuration: scheduler.schedule: %w", err)
		}
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("invalid configuration: scheduler.timezone: %w", err)
		}
	}

	return nil
}

// Duration parses a configured duration, returning fallback when empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"tushare_token":     {EnvPrefix + "TUSHARE_TOKEN", "TUSHARE_TOKEN"},
		"eodhd_api_key":     {EnvPrefix + "EODHD_API_KEY", "EODHD_API_KEY"},
		"gemini_api_key":    {EnvPrefix + "GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {EnvPrefix + "CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {EnvPrefix + "CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ValidateJobSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) != 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// DeepCloneConfig creates a deep copy of the Config struct
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Logging.Output = cloneStrings(c.Logging.Output)
	clone.EODHD.Exchanges = cloneStrings(c.EODHD.Exchanges)
	clone.Ranking.Windows = cloneStrings(c.Ranking.Windows)
	clone.Report.Formats = cloneStrings(c.Report.Formats)
	clone.Mail.To = cloneStrings(c.Mail.To)

	return &clone
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
