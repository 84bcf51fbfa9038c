package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilal/devstats/pkg/collector"
	"github.com/bilal/devstats/pkg/stats"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
stats:
  api_key: key
  collection: ios
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "devstats-agent", cfg.Agent.Name)
	assert.Equal(t, time.Hour, cfg.Interval())
	assert.Equal(t, "8085", cfg.Agent.HealthPort)
	assert.Equal(t, 180*time.Hour, cfg.Stats.MinimumSubmitInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	opts, err := cfg.CollectorOptions()
	require.NoError(t, err)
	assert.Equal(t, collector.System, opts)
}

func TestLoadConfig_StatsConfigurationAPIKey(t *testing.T) {
	path := writeConfig(t, `
agent:
  interval_seconds: 0
  options: [system, watch]
stats:
  collection: ios
  api_key_env: DEVSTATS_TEST_API_KEY
  minimum_submit_interval: 1260h
  timeout_seconds: 10
`)
	t.Setenv("DEVSTATS_TEST_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Interval())

	sc, err := cfg.StatsConfiguration()
	require.NoError(t, err)
	assert.Equal(t, "from-env", sc.APIKey)
	assert.Equal(t, 4536000*time.Second, sc.MinimumSubmitInterval)
	assert.Equal(t, 10*time.Second, sc.Timeout)

	p, err := sc.Protocol()
	require.NoError(t, err)
	assert.Equal(t, stats.APIKeyDiff, p.Kind)

	opts, err := cfg.CollectorOptions()
	require.NoError(t, err)
	assert.Equal(t, collector.System|collector.Watch, opts)
}

func TestLoadConfig_StatsConfigurationSharedSecret(t *testing.T) {
	path := writeConfig(t, `
stats:
  firebase_project: foobar
  collection: somecollection
  shared_secret: random-string-used-for-creating-a-checksum
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	sc, err := cfg.StatsConfiguration()
	require.NoError(t, err)
	u, err := sc.EndpointURL()
	require.NoError(t, err)
	assert.Equal(t, "https://firestore.googleapis.com/v1/projects/foobar/databases/(default)/documents/somecollection", u.String())
}

func TestLoadConfig_InvalidStatsConfiguration(t *testing.T) {
	path := writeConfig(t, `
stats:
  collection: ios
  api_key: key
  shared_secret: secret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = cfg.StatsConfiguration()
	assert.ErrorIs(t, err, stats.ErrInvalidConfiguration)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
stats:
  collection: ios
  api_key: file-key
`)
	t.Setenv("DEVSTATS_STATS_API_KEY", "env-key")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Stats.APIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
