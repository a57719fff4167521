package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	good := map[string][]string{
		"session":                 {"session"},
		"commerce.taxRatePercent": {"commerce", "taxRatePercent"},
		"gateway.tls.certPath":    {"gateway", "tls", "certPath"},
	}
	for in, want := range good {
		got, err := ParseConfigPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "rateLimit..defaultRequestsPerMinute", ".gateway", "hooks.", "hooks.__proto__", "prototype.x", "constructor"} {
		_, err := ParseConfigPath(in)
		var ce *ConfigError
		assert.ErrorAs(t, err, &ce, "%q should be rejected", in)
	}
}

func sampleRaw() map[string]any {
	return map[string]any{
		"gateway": map[string]any{
			"port": 18790,
			"tls":  map[string]any{"enabled": false},
		},
		"commerce": map[string]any{"currency": "USD", "taxRatePercent": 8.25},
		"database": "flat",
	}
}

func TestGetValueAtPath(t *testing.T) {
	raw := sampleRaw()

	v, ok := GetValueAtPath(raw, []string{"commerce", "taxRatePercent"})
	require.True(t, ok)
	assert.Equal(t, 8.25, v)

	v, ok = GetValueAtPath(raw, []string{"gateway", "tls"})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"enabled": false}, v)

	for _, path := range [][]string{
		{"session"},
		{"gateway", "bind"},
		{"database", "path"},
		{"gateway", "port", "deeper"},
	} {
		_, ok := GetValueAtPath(raw, path)
		assert.False(t, ok, "%v", path)
	}
}

func TestSetValueAtPath(t *testing.T) {
	raw := sampleRaw()

	SetValueAtPath(raw, []string{"gateway", "port"}, 19000)
	SetValueAtPath(raw, []string{"session", "ttlHours"}, 48)
	SetValueAtPath(raw, []string{"database", "path"}, ":memory:")
	SetValueAtPath(raw, []string{"logging"}, "debug")

	assert.Equal(t, 19000, raw["gateway"].(map[string]any)["port"])
	assert.Equal(t, map[string]any{"enabled": false}, raw["gateway"].(map[string]any)["tls"])
	assert.Equal(t, map[string]any{"ttlHours": 48}, raw["session"])
	assert.Equal(t, map[string]any{"path": ":memory:"}, raw["database"], "scalars are replaced by maps")
	assert.Equal(t, "debug", raw["logging"])
}

func TestUnsetValueAtPath(t *testing.T) {
	raw := sampleRaw()

	assert.True(t, UnsetValueAtPath(raw, []string{"commerce", "currency"}))
	assert.Equal(t, map[string]any{"taxRatePercent": 8.25}, raw["commerce"])

	assert.False(t, UnsetValueAtPath(raw, []string{"commerce", "currency"}))
	assert.False(t, UnsetValueAtPath(raw, []string{"metrics", "path"}))
	assert.False(t, UnsetValueAtPath(raw, []string{"database", "path"}))

	assert.True(t, UnsetValueAtPath(raw, []string{"gateway"}))
	assert.NotContains(t, raw, "gateway")
}

func TestResolvePaths(t *testing.T) {
	t.Run("home directory", func(t *testing.T) {
		t.Setenv("MERCORA_HOME", "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		p, err := ResolvePaths()
		require.NoError(t, err)
		base := filepath.Join(home, ".mercora")
		assert.Equal(t, Paths{
			Base:   base,
			Config: filepath.Join(base, "config.yaml"),
			Data:   filepath.Join(base, "data"),
			Logs:   filepath.Join(base, "logs"),
		}, p)
	})

	t.Run("MERCORA_HOME", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("MERCORA_HOME", dir)

		p, err := ResolvePaths()
		require.NoError(t, err)
		assert.Equal(t, dir, p.Base)
		assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)
		assert.Equal(t, filepath.Join(dir, "data", "mercora.db"), p.DatabasePath(DatabaseConfig{}))
	})
}

func TestEnsureDirs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mercora")
	p := Paths{Base: dir, Data: filepath.Join(dir, "data"), Logs: filepath.Join(dir, "logs")}

	for range 2 {
		require.NoError(t, p.EnsureDirs())
	}
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}
}

func TestDatabasePath(t *testing.T) {
	p := Paths{Data: "/srv/mercora/data"}
	assert.Equal(t, "/srv/mercora/data/mercora.db", p.DatabasePath(DatabaseConfig{}))
	assert.Equal(t, ":memory:", p.DatabasePath(DatabaseConfig{Path: ":memory:"}))
	assert.Equal(t, "/tmp/shop.db", p.DatabasePath(DatabaseConfig{Path: "/tmp/shop.db"}))
}
