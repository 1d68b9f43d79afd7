package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestReplaceKeyReferences(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{
		"tushare_token": "tok-123",
		"smtp_host":     "smtp.example.com",
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "{tushare_token}", "tok-123"},
		{"embedded", "token={tushare_token};host={smtp_host}", "token=tok-123;host=smtp.example.com"},
		{"missing key left unchanged", "{unknown}", "{unknown}"},
		{"no references", "plain", "plain"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ReplaceKeyReferences(tt.input, kvMap, logger))
		})
	}
}

func TestReplaceInStruct_Config(t *testing.T) {
	config := NewDefaultConfig()
	config.Tushare.Token = "{tushare_token}"
	config.Mail.To = []string{"{report_to}", "desk@example.com"}

	err := ReplaceInStruct(config, map[string]string{
		"tushare_token": "tok-123",
		"report_to":     "pm@example.com",
	}, arbor.NewLogger())
	require.NoError(t, err)

	assert.Equal(t, "tok-123", config.Tushare.Token)
	assert.Equal(t, []string{"pm@example.com", "desk@example.com"}, config.Mail.To)
	assert.Equal(t, "https://api.tushare.pro", config.Tushare.BaseURL)
}

func TestReplaceInStruct_RequiresStructPointer(t *testing.T) {
	err := ReplaceInStruct(NewDefaultConfig().Tushare, nil, arbor.NewLogger())
	assert.Error(t, err)
}
