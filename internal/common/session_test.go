package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTradeDate(t *testing.T) {
	d, err := ParseTradeDate("20240315")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseTradeDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, "20240315", FormatTradeDate(d))

	_, err = ParseTradeDate("15/03/2024")
	assert.Error(t, err)
}

func TestLastWorkingDay(t *testing.T) {
	// Sunday 2024-03-17 10:00 China time
	sunday := time.Date(2024, 3, 17, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), LastWorkingDay(sunday))

	// Late Monday UTC is already Tuesday in China
	monday := time.Date(2024, 3, 18, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC), LastWorkingDay(monday))
}

func TestSessionFinal(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	// 14:00 China time: still trading
	assert.False(t, SessionFinal(date, time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)))
	// 17:00 China time: close plus delay has passed
	assert.True(t, SessionFinal(date, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)))
	assert.True(t, SessionFinal(date, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)))
}
