package badger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestKVStorage(t *testing.T) {
	kv := newTestManager(t).KeyValueStorage()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "TUSHARE_TOKEN", "abc", "token"))

	value, err := kv.Get(ctx, "tushare_token")
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	isNew, err := kv.Upsert(ctx, "tushare_token", "def", "rotated")
	require.NoError(t, err)
	assert.False(t, isNew)

	isNew, err = kv.Upsert(ctx, "smtp_host", "smtp.example.com", "")
	require.NoError(t, err)
	assert.True(t, isNew)
	require.NoError(t, kv.Set(ctx, "smtp_port", "465", ""))

	pair, err := kv.GetPair(ctx, "Tushare_Token")
	require.NoError(t, err)
	assert.Equal(t, "def", pair.Value)
	assert.Equal(t, "rotated", pair.Description)

	all, err := kv.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tushare_token": "def", "smtp_host": "smtp.example.com", "smtp_port": "465"}, all)

	require.NoError(t, kv.Delete(ctx, "smtp_port"))
	_, err = kv.Get(ctx, "smtp_port")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	assert.ErrorIs(t, kv.Delete(ctx, "smtp_port"), interfaces.ErrKeyNotFound)
}

func TestSnapshotStorage(t *testing.T) {
	snapshots := newTestManager(t).SnapshotStorage()
	ctx := context.Background()
	d1 := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	_, err := snapshots.GetSnapshot(ctx, "tushare", d1)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	rows := []models.RawRow{
		{"ts_code": "600519.SH", "name": "贵州茅台", "close": 1700.5, "pct_chg": 10.0},
		{"ts_code": "000001.SZ", "name": "平安银行", "close": 10.2, "pct_chg": -1.5},
	}
	require.NoError(t, snapshots.SaveSnapshot(ctx, "tushare", d1, rows))
	require.NoError(t, snapshots.SaveSnapshot(ctx, "tushare", d2, rows[:1]))
	require.NoError(t, snapshots.SaveSnapshot(ctx, "eodhd", d1, nil))

	got, err := snapshots.GetSnapshot(ctx, "tushare", d1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "贵州茅台", got[0]["name"])
	assert.Equal(t, json.Number("1700.5"), got[0]["close"])

	empty, err := snapshots.GetSnapshot(ctx, "eodhd", d1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	deleted, err := snapshots.DeleteSnapshotsBefore(ctx, d2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = snapshots.GetSnapshot(ctx, "tushare", d1)
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	kept, err := snapshots.GetSnapshot(ctx, "tushare", d2)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestLoadEnvFile(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# credentials\nTUSHARE_TOKEN=\"abc123\"\nGEMINI_API_KEY=g-key\nEMPTY=\n"), 0600))

	loaded, err := manager.LoadEnvFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	value, err := manager.KeyValueStorage().Get(ctx, "tushare_token")
	require.NoError(t, err)
	assert.Equal(t, "abc123", value)

	loaded, err = manager.LoadEnvFile(ctx, filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
	assert.Zero(t, loaded)
}

func TestLoadVariablesFromFiles(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables.toml"), []byte(`
[smtp_host]
value = "smtp.example.com"
description = "SMTP relay"

[smtp_password]
value = ""
`), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "variables"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables", "keys.toml"), []byte(`
[eodhd_api_key]
value = "e-key"
`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "variables", "broken.toml"), []byte("[[not toml"), 0600))

	loaded, err := manager.LoadVariablesFromFiles(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	pair, err := manager.KeyValueStorage().GetPair(ctx, "smtp_host")
	require.NoError(t, err)
	assert.Equal(t, "SMTP relay", pair.Description)

	pair, err = manager.KeyValueStorage().GetPair(ctx, "eodhd_api_key")
	require.NoError(t, err)
	assert.Equal(t, "Loaded from keys.toml", pair.Description)
}

func TestNewBadgerDB_RequiresPath(t *testing.T) {
	_, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{})
	assert.Error(t, err)
}
