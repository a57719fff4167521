package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "/mcp", cfg.Gateway.BasePath)
	assert.Equal(t, 24, cfg.Session.TTLHours)
	assert.Equal(t, 15, cfg.Session.SweepMinutes)
	assert.Equal(t, 100, cfg.RateLimit.DefaultRequestsPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.DefaultOperationsPerHour)
	assert.Equal(t, 1024, cfg.Context.MaxBytes)
	assert.Equal(t, "USD", cfg.Commerce.Currency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  basePath: /agents
database:
  path: /srv/mercora/shop.db
session:
  ttlHours: 12
  sweepMinutes: -1
rateLimit:
  defaultRequestsPerMinute: 30
  defaultOperationsPerHour: 5
context:
  maxBytes: 2048
commerce:
  currency: EUR
  taxRatePercent: 20
  freeShippingThreshold: 50
metrics:
  enabled: false
logging:
  level: debug
  consoleStyle: json
hooks:
  orderPlaced:
    - command: "notify-warehouse"
      timeout: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "/agents", cfg.Gateway.BasePath)
	assert.Equal(t, "/srv/mercora/shop.db", cfg.Database.Path)
	assert.Equal(t, 12, cfg.Session.TTLHours)
	assert.Equal(t, -1, cfg.Session.SweepMinutes)
	assert.Equal(t, 30, cfg.RateLimit.DefaultRequestsPerMinute)
	assert.Equal(t, 5, cfg.RateLimit.DefaultOperationsPerHour)
	assert.Equal(t, 2048, cfg.Context.MaxBytes)
	assert.Equal(t, "EUR", cfg.Commerce.Currency)
	assert.Equal(t, 20.0, cfg.Commerce.TaxRatePercent)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)
	require.Len(t, cfg.Hooks.OrderPlaced, 1)
	assert.Equal(t, "notify-warehouse", cfg.Hooks.OrderPlaced[0].Command)
	assert.Equal(t, 5000, cfg.Hooks.OrderPlaced[0].Timeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLoadPartialAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  port: 8080\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 24, cfg.Session.TTLHours)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MERCORA_GATEWAY_PORT", "7777")
	t.Setenv("MERCORA_GATEWAY_BIND", "lan")
	t.Setenv("MERCORA_DB_PATH", ":memory:")
	t.Setenv("MERCORA_LOG_LEVEL", "DEBUG")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverrides_InvalidPortIgnored(t *testing.T) {
	t.Setenv("MERCORA_GATEWAY_PORT", "not-a-number")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 18790, cfg.Gateway.Port)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MERCORA_TEST_DIR", "/srv/state")

	assert.Equal(t, "/srv/state/shop.db", expandEnvVars("${MERCORA_TEST_DIR}/shop.db"))
	assert.Equal(t, "${MERCORA_UNSET_VAR}/x", expandEnvVars("${MERCORA_UNSET_VAR}/x"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestLoadExpandsPathFields(t *testing.T) {
	t.Setenv("MERCORA_TEST_STATE", "/srv/state")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: ${MERCORA_TEST_STATE}/shop.db\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/state/shop.db", cfg.Database.Path)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	SetValueAtPath(raw, []string{"gateway", "port"}, 9000)
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"gateway", "port"})
	require.True(t, ok)
	assert.Equal(t, 9000, val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Gateway.Port)
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Message: "boom"}
	assert.Equal(t, "config: boom", err.Error())
}
