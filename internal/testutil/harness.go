package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/opcalc/internal/app"
	"github.com/specialistvlad/opcalc/internal/registry"
	"github.com/stretchr/testify/require"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	PluginDir string
	Output    *app.SafeBuffer
	LogOutput *app.SafeBuffer
	Err       error
	App       *app.App
}

// RunIntegrationTest writes files into a fresh plugin directory and starts an
// app over it with a background context. cfg.PluginDir is overwritten.
func RunIntegrationTest(t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, cfg, modules...)
}

// RunIntegrationTestWithContext is RunIntegrationTest with a caller-provided
// context. A startup error or panic is reported in Err with a nil App.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *HarnessResult {
	t.Helper()

	// 1. Write the manifests. Names may include subdirectories.
	pluginDir := filepath.Join(t.TempDir(), "plugins")
	require.NoError(t, os.Mkdir(pluginDir, 0o755))
	for name, content := range files {
		path := filepath.Join(pluginDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	// 2. Configure the app against the directory, logging everything.
	cfg.PluginDir = pluginDir
	cfg.LogLevel = "debug"
	cfg.LogFile = ""
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	res := &HarnessResult{
		PluginDir: pluginDir,
		Output:    &app.SafeBuffer{},
		LogOutput: &app.SafeBuffer{},
	}

	validated, err := app.NewConfig(cfg)
	if err != nil {
		res.Err = err
		return res
	}

	// 3. Start the app, turning a startup panic into an error.
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("application startup panicked | %v", r)
			}
		}()
		res.App, res.Err = app.NewApp(ctx, res.Output, res.LogOutput, validated, modules...)
	}()

	t.Cleanup(func() {
		if res.App != nil {
			res.App.Close()
		}
		if os.Getenv("OPCALC_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), res.LogOutput.String())
		}
	})

	return res
}
