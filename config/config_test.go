package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "dynamo", cfg.Store.Backend)
	assert.Equal(t, "s3", cfg.Objects.Backend)
	assert.Equal(t, "replicate", cfg.Classifier.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 5, cfg.RateLimit.ClassifyBurst)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GARDEN_SERVER_PORT", "9090")
	t.Setenv("GARDEN_STORE_BACKEND", "sqlite")
	t.Setenv("GARDEN_DEV_MODE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.True(t, cfg.DevMode)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
objects:
  backend: fs
  dir: /tmp/garden
moderation:
  moderators:
    - github:42
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fs", cfg.Objects.Backend)
	assert.Equal(t, "/tmp/garden", cfg.Objects.Dir)
	assert.Equal(t, []string{"github:42"}, cfg.Moderation.Moderators)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("GARDEN_CLASSIFIER_BACKEND", "magic")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported classifier backend")
}

func TestLoad_NonPositiveRedisTTL(t *testing.T) {
	t.Setenv("GARDEN_REDIS_TTL", "0s")

	_, err := Load("")
	assert.ErrorContains(t, err, "redis ttl must be positive")
}
