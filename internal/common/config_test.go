package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, 9.9, config.Screening.LimitUp.Standard)
	assert.Equal(t, 19.9, config.Screening.LimitUp.HighVolatility)
	assert.Equal(t, 400000.0, config.Screening.MinAmount)
	assert.Equal(t, 30, config.Ranking.TopK)
	assert.Equal(t, 30, config.Analysis.LookbackDays)
	assert.Equal(t, 3, config.Analysis.ReasonsTopK)
	assert.False(t, config.Storage.Badger.Enabled)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[screening]
min_amount = 100000

[screening.limit_up]
standard = 9.5

[analysis]
max_stocks = 10
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[analysis]
max_stocks = 5
`), 0644))

	config, err := LoadFromFiles(nil, base, override)
	require.NoError(t, err)

	assert.Equal(t, 100000.0, config.Screening.MinAmount)
	assert.Equal(t, 9.5, config.Screening.LimitUp.Standard)
	assert.Equal(t, 19.9, config.Screening.LimitUp.HighVolatility, "unset keys keep defaults")
	assert.Equal(t, 5, config.Analysis.MaxStocks)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	_, err := LoadFromFiles(nil, filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[screening\nmin_amount ="), 0644))
	_, err = LoadFromFiles(nil, bad)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LIMITUP_SCREENING_MIN_AMOUNT", "250000")
	t.Setenv("LIMITUP_ANALYSIS_CONCURRENCY", "not-a-number")
	t.Setenv("LIMITUP_MARKET_SOURCE", "eodhd")
	t.Setenv("LIMITUP_REPORT_FORMATS", "json, pdf")

	config := NewDefaultConfig()
	applyEnvOverrides(config)

	assert.Equal(t, 250000.0, config.Screening.MinAmount)
	assert.Equal(t, 4, config.Analysis.Concurrency, "invalid values are ignored")
	assert.Equal(t, "eodhd", config.Market.Source)
	assert.Equal(t, []string{"json", "pdf"}, config.Report.Formats)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown market source", func(c *Config) { c.Market.Source = "yahoo" }},
		{"unknown window", func(c *Config) { c.Ranking.Windows = []string{"7d"} }},
		{"zero concurrency", func(c *Config) { c.Analysis.Concurrency = 0 }},
		{"zero lookback", func(c *Config) { c.Analysis.LookbackDays = 0 }},
		{"zero gemini rate limit", func(c *Config) { c.Gemini.RateLimit = 0 }},
		{"zero claude rate limit", func(c *Config) { c.Claude.RateLimit = 0 }},
		{"zero threshold", func(c *Config) { c.Screening.LimitUp.Standard = 0 }},
		{"negative min amount", func(c *Config) { c.Screening.MinAmount = -1 }},
		{"bad provider", func(c *Config) { c.LLM.DefaultProvider = "gpt" }},
		{"bad timeout", func(c *Config) { c.Analysis.Timeout = "soon" }},
		{"mail without recipients", func(c *Config) { c.Mail.Enabled = true; c.Mail.Host = "smtp" }},
		{"scheduler every minute", func(c *Config) { c.Scheduler.Enabled = true; c.Scheduler.Schedule = "* * * * *" }},
		{"unknown report format", func(c *Config) { c.Report.Formats = []string{"html"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestValidateJobSchedule(t *testing.T) {
	assert.NoError(t, ValidateJobSchedule("0 16 * * 1-5"))
	assert.NoError(t, ValidateJobSchedule("*/15 * * * *"))
	assert.Error(t, ValidateJobSchedule("*/2 * * * *"))
	assert.Error(t, ValidateJobSchedule("not a cron"))
}

func TestResolveAPIKey(t *testing.T) {
	ctx := context.Background()
	t.Setenv("LIMITUP_TUSHARE_TOKEN", "")
	t.Setenv("TUSHARE_TOKEN", "")

	key, err := ResolveAPIKey(ctx, nil, "tushare_token", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)

	t.Setenv("LIMITUP_TUSHARE_TOKEN", "from-env")
	key, err = ResolveAPIKey(ctx, nil, "tushare_token", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	_, err = ResolveAPIKey(ctx, nil, "unknown_key", "")
	assert.Error(t, err)
}

func TestDeepCloneConfig(t *testing.T) {
	config := NewDefaultConfig()
	clone := DeepCloneConfig(config)

	clone.Ranking.Windows[0] = "ytd"
	clone.Mail.To = append(clone.Mail.To, "x@example.com")

	assert.Equal(t, "5d", config.Ranking.Windows[0])
	assert.Empty(t, config.Mail.To)
	assert.Nil(t, DeepCloneConfig(nil))
}
