package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(4), cfg.Pools.Process)
	assert.Equal(t, ".forge/cas", cfg.Cache.Directory)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
}

func TestConfigSaveLoad(t *testing.T) {
	t.Setenv("CACHE_DIR", "")
	t.Setenv("MAX_JOBS", "")
	t.Setenv("LOG_LEVEL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "forge.yaml")

	cfg := DefaultConfig()
	cfg.Pools.Process = 16
	cfg.Cache.RemoteURL = "https://cache.example.com"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(16), loaded.Pools.Process)
	assert.Equal(t, "https://cache.example.com", loaded.Cache.RemoteURL)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ".forge/cas", cfg.Cache.Directory)
}

func TestPoolConfigCapacitiesIncludesCustomPools(t *testing.T) {
	p := PoolConfig{Process: 2, Network: 3, Cache: 1, Custom: map[string]int64{"gpu": 1}}
	caps := p.Capacities()
	assert.Equal(t, int64(2), caps["process"])
	assert.Equal(t, int64(1), caps["gpu"])
}

func TestValidateRejectsEmptyCacheDirectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Directory = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositivePools(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pools.Process = 0
	assert.Error(t, cfg.Validate())
}

func TestRetryDurationsFallBackOnBadInput(t *testing.T) {
	r := RetryConfig{BaseDelay: "not-a-duration", MaxDelay: "also-bad"}
	assert.Equal(t, 500_000_000, int(r.BaseDelayDuration()))
	assert.Equal(t, int64(30_000_000_000), r.MaxDelayDuration().Nanoseconds())
}
