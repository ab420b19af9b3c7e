package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.False(t, cfg.Storage.InMemory)
	assert.Equal(t, "local", cfg.Device.ID)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 256, cfg.Query.PlanCacheSize)
	assert.Equal(t, 16, cfg.Notify.Workers)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KVQ_STORAGE_IN_MEMORY", "true")
	t.Setenv("KVQ_DEVICE_ID", "phone-1")
	t.Setenv("KVQ_QUERY_PLAN_CACHE_SIZE", "8")
	t.Setenv("KVQ_LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "phone-1", cfg.Device.ID)
	assert.Equal(t, 8, cfg.Query.PlanCacheSize)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvq.yaml")
	body := "device:\n  id: tablet\nhttp:\n  addr: 127.0.0.1:9999\nnotify:\n  workers: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("KVQ_NOTIFY_WORKERS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tablet", cfg.Device.ID)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.Addr)
	assert.Equal(t, 4, cfg.Notify.Workers, "env wins over file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Device.ID = "a/b"
	cfg.Query.PlanCacheSize = 0
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device.id")
	assert.Contains(t, err.Error(), "plan_cache_size")
	assert.Contains(t, err.Error(), "log.format")
}
