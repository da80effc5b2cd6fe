package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"upper case level", func(c *Config) { c.LogLevel = "DEBUG" }, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "invalid log-level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "invalid log-format"},
		{"negative timeout", func(c *Config) { c.WorkerTimeout = -time.Second }, "worker-timeout"},
		{"negative history", func(c *Config) { c.HistoryLimit = -1 }, "history-limit"},
		{"watch without dir", func(c *Config) { c.Watch = true; c.PluginDir = "" }, "watch requires"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			got, err := NewConfig(cfg)

			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, strings.ToLower(cfg.LogLevel), got.LogLevel)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "opcalc.yaml")
	content := `
plugins_dir: /opt/opcalc/plugins
isolated: true
worker_timeout: 5s
log_format: json
history_limit: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg := DefaultConfig()

	// --- Act ---
	err := LoadConfigFile(&cfg, path)

	// --- Assert ---
	require.NoError(t, err)
	want := DefaultConfig()
	want.PluginDir = "/opt/opcalc/plugins"
	want.Isolated = true
	want.WorkerTimeout = 5 * time.Second
	want.LogFormat = "json"
	want.HistoryLimit = 50
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := DefaultConfig()

	require.ErrorContains(t, LoadConfigFile(&cfg, filepath.Join(dir, "missing.yaml")), "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("isolated: [not, a, bool]"), 0o644))
	require.ErrorContains(t, LoadConfigFile(&cfg, bad), "failed to parse config file")
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, mapLookup(map[string]string{
		EnvUseMultiprocessing: "true",
		EnvPluginDir:          "custom",
		EnvStrictPlugins:      "1",
		EnvWorkerTimeout:      "750ms",
		EnvLogLevel:           "warn",
		EnvLogFile:            "",
		EnvHistoryLimit:       "10",
		EnvEnvironment:        "test",
	}))

	require.NoError(t, err)
	want := DefaultConfig()
	want.Isolated = true
	want.PluginDir = "custom"
	want.StrictPlugins = true
	want.WorkerTimeout = 750 * time.Millisecond
	want.LogLevel = "warn"
	want.LogFile = ""
	want.HistoryLimit = 10
	want.Environment = "test"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv_MultiprocessingOnlyWhenTrue(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	require.NoError(t, ApplyEnv(&cfg, mapLookup(map[string]string{EnvUseMultiprocessing: "yes"})))

	require.False(t, cfg.Isolated)
}

func TestApplyEnv_Errors(t *testing.T) {
	t.Parallel()

	for name, env := range map[string]map[string]string{
		"bool":     {EnvIsolated: "sometimes"},
		"duration": {EnvWorkerTimeout: "soon"},
		"int":      {EnvHistoryLimit: "many"},
	} {
		name, env := name, env
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			require.Error(t, ApplyEnv(&cfg, mapLookup(env)))
		})
	}
}
