package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MNEMO_RUNTIME_PATH", dir)

	cfg, err := ParseAppConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "mnemo.db"), cfg.GetDatabasePath())
	assert.Equal(t, filepath.Join(dir, ".env"), cfg.GetEnvPath())
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 10, cfg.Recall.Limit)
	assert.InDelta(t, 1.0, cfg.Recall.VectorWeight+cfg.Recall.KeywordWeight+cfg.Recall.FileWeight, 1e-9)
	assert.Equal(t, 0.7, cfg.Lifecycle.DuplicateThreshold)
	assert.Equal(t, 50, cfg.Lifecycle.ConsolidationThreshold)
	assert.Equal(t, 15, cfg.Quality.MinLength)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestParseAppConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MNEMO_RUNTIME_PATH", dir)
	t.Setenv("MNEMO_DB_FILE", "/var/lib/mnemo/memory.db")
	t.Setenv("MNEMO_EMBED_PROVIDER", "none")
	t.Setenv("MNEMO_RECALL_LIMIT", "3")
	t.Setenv("MNEMO_LIFECYCLE_INTERVAL", "30m")
	t.Setenv("MNEMO_METRICS_ADDR", "127.0.0.1:9464")

	cfg, err := ParseAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mnemo/memory.db", cfg.GetDatabasePath())
	assert.Equal(t, "none", cfg.Embedding.Provider)
	assert.Equal(t, 3, cfg.Recall.Limit)
	assert.Equal(t, 30*time.Minute, cfg.Lifecycle.Interval)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
}

func TestParseAppConfig_InvalidValue(t *testing.T) {
	t.Setenv("MNEMO_RUNTIME_PATH", t.TempDir())
	t.Setenv("MNEMO_RECALL_LIMIT", "many")

	_, err := ParseAppConfig()
	assert.Error(t, err)
}

func TestGetRuntimePath_Relative(t *testing.T) {
	t.Setenv("MNEMO_RUNTIME_PATH", "")
	path := GetRuntimePath()
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, ".mnemo", filepath.Base(path))
}
