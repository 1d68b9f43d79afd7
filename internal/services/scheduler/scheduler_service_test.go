package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

type memKV struct {
	interfaces.KeyValueStorage
	mu     sync.Mutex
	values map[string]string
}

func newMemKV() *memKV { return &memKV{values: map[string]string{}} }

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", interfaces.ErrKeyNotFound
}

func (m *memKV) Set(ctx context.Context, key, value, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func newTestScheduler(t *testing.T, kv interfaces.KeyValueStorage) *Service {
	t.Helper()
	s, err := NewService("Asia/Shanghai", kv, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestNewService_Timezone(t *testing.T) {
	_, err := NewService("Not/AZone", nil, arbor.NewLogger())
	assert.Error(t, err)

	s, err := NewService("", nil, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", s.location.String())
}

func TestRegisterJob(t *testing.T) {
	s := newTestScheduler(t, nil)
	noop := func(ctx context.Context) error { return nil }

	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"daily", DefaultSchedule, false},
		{"every minute", "* * * * *", true},
		{"too frequent", "*/2 * * * *", true},
		{"six fields", "0 0 16 * * 1-5", true},
		{"every ten minutes", "*/10 9-15 * * 1-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RegisterJob(tt.name, tt.schedule, "", noop)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, s.RegisterJob("daily", DefaultSchedule, "", noop), "duplicate")
	assert.Len(t, s.GetAllJobStatuses(), 2)
}

func TestTriggerJob(t *testing.T) {
	kv := newMemKV()
	s := newTestScheduler(t, kv)

	calls := 0
	require.NoError(t, s.RegisterJob("analyze", DefaultSchedule, "daily review", func(ctx context.Context) error {
		calls++
		if calls == 2 {
			return errors.New("source down")
		}
		if calls == 3 {
			panic("boom")
		}
		return nil
	}))

	require.NoError(t, s.TriggerJob("analyze"))
	status, err := s.GetJobStatus("analyze")
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.Empty(t, status.LastError)
	assert.False(t, status.IsRunning)
	assert.Equal(t, "daily review", status.Description)
	assert.Contains(t, kv.values, lastRunKeyPrefix+"analyze")

	err = s.TriggerJob("analyze")
	assert.ErrorContains(t, err, "source down")

	err = s.TriggerJob("analyze")
	assert.ErrorContains(t, err, "boom")

	assert.Error(t, s.TriggerJob("missing"))
}

func TestLastRunRestored(t *testing.T) {
	kv := newMemKV()
	last := time.Date(2024, 3, 15, 16, 0, 0, 0, time.UTC)
	kv.values[lastRunKeyPrefix+"analyze"] = last.Format(time.RFC3339)

	s := newTestScheduler(t, kv)
	require.NoError(t, s.RegisterJob("analyze", DefaultSchedule, "", func(ctx context.Context) error { return nil }))

	status, err := s.GetJobStatus("analyze")
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.True(t, last.Equal(*status.LastRun))
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t, nil)

	var jobCtx context.Context
	require.NoError(t, s.RegisterJob("analyze", DefaultSchedule, "", func(ctx context.Context) error {
		jobCtx = ctx
		return nil
	}))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())

	status, err := s.GetJobStatus("analyze")
	require.NoError(t, err)
	require.NotNil(t, status.NextRun)
	next := status.NextRun.In(s.location)
	assert.Equal(t, 16, next.Hour())
	assert.NotEqual(t, time.Saturday, next.Weekday())
	assert.NotEqual(t, time.Sunday, next.Weekday())

	require.NoError(t, s.TriggerJob("analyze"))
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	require.NotNil(t, jobCtx)
	assert.Error(t, jobCtx.Err())
	assert.NoError(t, s.Stop())
}
