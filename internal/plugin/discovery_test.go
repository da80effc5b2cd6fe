package plugin

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/specialistvlad/opcalc/internal/registry"
	"github.com/specialistvlad/opcalc/modules/arithmetic"
	"github.com/specialistvlad/opcalc/modules/power"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const fourthManifest = `
operation "fourth" {
  handler     = "power"
  description = "Raise a number to the fourth power"
  params      = { exponent = 4 }
}
`

const doubleManifest = `
operation "double" {
  handler = "scale"
  params  = { factor = 2 }
}

operation "halve" {
  handler = "scale"
  params  = { factor = 0.5 }
}
`

const brokenManifest = `
operation "oops" {
  handler = "add"
`

// setup creates a registry with the compiled-in modules and a plugin
// directory populated with files.
func setup(t *testing.T, files map[string]string) (*registry.Registry, string, context.Context, *bytes.Buffer) {
	t.Helper()

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := registry.New(logger)
	reg.RegisterModules(&arithmetic.Module{}, &power.Module{})

	dir := filepath.Join(t.TempDir(), "plugins")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	return reg, dir, ctxlog.WithLogger(context.Background(), logger), logs
}

func computeOne(t *testing.T, reg *registry.Registry, name, a string) decimal.Decimal {
	t.Helper()
	desc, ok := reg.Lookup(name)
	require.True(t, ok, "operation %q not registered", name)
	got, err := desc.New(operation.One(decimal.RequireFromString(a))).Compute(context.Background())
	require.NoError(t, err)
	return got
}

func TestDiscover_RegistersManifestsAndIgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg, dir, ctx, _ := setup(t, map[string]string{
		"fourth.hcl": fourthManifest,
		"double.hcl": `operation "double" {
  handler = "scale"
  params  = { factor = 2 }
}`,
		"README.txt": "not a plugin",
		"_init.hcl":  `operation "hidden" { handler = "add" }`,
	})
	before := reg.Names()

	// --- Act ---
	report, err := NewDiscoverer(reg, Options{}).Discover(ctx, dir)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, reg.Names(), len(before)+2)
	if diff := cmp.Diff([]string{"plugins.double", "plugins.fourth"}, report.Modules); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}
	require.ElementsMatch(t, []string{"double", "fourth"}, report.Registered)
	require.Empty(t, report.Failed)

	_, hidden := reg.Lookup("hidden")
	require.False(t, hidden, "internal modules must not be loaded")

	desc, ok := reg.Lookup("fourth")
	require.True(t, ok)
	require.Equal(t, "plugins.fourth", desc.Source)
	require.Equal(t, operation.Unary, desc.Arity)
	require.Equal(t, "Raise a number to the fourth power", desc.Description)
	require.True(t, computeOne(t, reg, "fourth", "3").Equal(decimal.NewFromInt(81)))
	require.True(t, computeOne(t, reg, "double", "21").Equal(decimal.NewFromInt(42)))
}

func TestDiscover_DescriptorsCarryTheirRecipe(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{"fourth.hcl": fourthManifest, "double.hcl": doubleManifest})

	_, err := NewDiscoverer(reg, Options{}).Discover(ctx, dir)
	require.NoError(t, err)

	for _, tc := range []struct{ name, kind, a string }{
		{"fourth", "power", "3"},
		{"halve", "scale", "5"},
	} {
		desc, ok := reg.Lookup(tc.name)
		require.True(t, ok)
		require.Equal(t, tc.kind, desc.Kind)

		data, err := registry.EncodeParams(desc.Params)
		require.NoError(t, err)
		params, err := registry.DecodeParams(data)
		require.NoError(t, err)
		_, ctor, err := registry.Build(reg, desc.Kind, params)
		require.NoError(t, err)

		got, err := ctor(operation.One(decimal.RequireFromString(tc.a))).Compute(context.Background())
		require.NoError(t, err)
		require.True(t, got.Equal(computeOne(t, reg, tc.name, tc.a)))
	}

	builtin, ok := reg.Lookup("add")
	require.True(t, ok)
	require.Equal(t, "add", builtin.Kind)
	require.Equal(t, cty.NilType, builtin.Params.Type())
}

func TestDiscover_MultipleOperationsPerManifest(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{"double.hcl": doubleManifest})

	report, err := NewDiscoverer(reg, Options{}).Discover(ctx, dir)

	require.NoError(t, err)
	require.Equal(t, []string{"double", "halve"}, report.Registered)
	require.True(t, computeOne(t, reg, "halve", "5").Equal(decimal.RequireFromString("2.5")))
}

func TestDiscover_MissingDirectory(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg, dir, ctx, logs := setup(t, nil)
	missing := filepath.Join(dir, "does-not-exist")
	before := reg.Names()

	// --- Act ---
	report, err := NewDiscoverer(reg, Options{Strict: true}).Discover(ctx, missing)

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, MissingDirNotice(missing), report.Notice)
	require.Equal(t, "Plugins directory '"+missing+"' does not exist. Skipping plugin loading.", report.Notice)
	require.Equal(t, before, reg.Names())
	require.Contains(t, logs.String(), "does not exist")
}

func TestDiscover_EmptyDirectory(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, nil)
	before := reg.Names()

	report, err := NewDiscoverer(reg, Options{}).Discover(ctx, dir)

	require.NoError(t, err)
	require.Empty(t, report.Notice)
	require.Empty(t, report.Modules)
	require.Equal(t, before, reg.Names())
}

func TestDiscover_PathIsAFile(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{"fourth.hcl": fourthManifest})

	_, err := NewDiscoverer(reg, Options{}).Discover(ctx, filepath.Join(dir, "fourth.hcl"))

	require.ErrorContains(t, err, "is not a directory")
}

func TestDiscover_SkipsBrokenManifestByDefault(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg, dir, ctx, logs := setup(t, map[string]string{
		"broken.hcl":  brokenManifest,
		"fourth.hcl":  fourthManifest,
		"unknown.hcl": `operation "sqrt" { handler = "nth_root" }`,
	})

	// --- Act ---
	report, err := NewDiscoverer(reg, Options{}).Discover(ctx, dir)

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, []string{"plugins.fourth"}, report.Modules)
	require.Len(t, report.Failed, 2)
	require.Equal(t, filepath.Join(dir, "broken.hcl"), report.Failed[0].Path)
	require.ErrorContains(t, report.Failed[0].Err, "failed to parse")
	require.ErrorContains(t, report.Failed[1].Err, "unknown handler 'nth_root'")

	_, ok := reg.Lookup("oops")
	require.False(t, ok)
	_, ok = reg.Lookup("sqrt")
	require.False(t, ok)
	_, ok = reg.Lookup("fourth")
	require.True(t, ok)
	require.Contains(t, logs.String(), "Skipping plugin that failed to load.")
}

func TestDiscover_StrictAbortsWithoutRegistering(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg, dir, ctx, _ := setup(t, map[string]string{
		"broken.hcl": brokenManifest,
		"fourth.hcl": fourthManifest,
	})
	before := reg.Names()

	// --- Act ---
	report, err := NewDiscoverer(reg, Options{Strict: true}).Discover(ctx, dir)

	// --- Assert ---
	require.Error(t, err)
	require.Nil(t, report)
	require.Contains(t, err.Error(), "plugin discovery aborted")
	require.Contains(t, err.Error(), "broken.hcl")
	require.Equal(t, before, reg.Names(), "strict failure must leave the registry untouched")
}

func TestDiscover_BadParamsFailTheFile(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{
		"neg.hcl": `
operation "ok" {
  handler = "power"
  params  = { exponent = 2 }
}
operation "bad" {
  handler = "power"
  params  = { exponent = -1 }
}`,
	})

	report, err := NewDiscoverer(reg, Options{}).Discover(ctx, dir)

	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	_, ok := reg.Lookup("ok")
	require.False(t, ok, "a failing file contributes no operations at all")
}

func TestDiscover_DuplicateNameInOneFile(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{
		"dup.hcl": `
operation "twice" { handler = "add" }
operation "twice" { handler = "subtract" }`,
	})

	_, err := NewDiscoverer(reg, Options{Strict: true}).Discover(ctx, dir)

	require.ErrorContains(t, err, "declared twice")
}

func TestDiscover_RepeatedRunsReRegister(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{"fourth.hcl": fourthManifest})
	d := NewDiscoverer(reg, Options{})

	_, err := d.Discover(ctx, dir)
	require.NoError(t, err)
	first := reg.Names()

	report, err := d.Discover(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, first, reg.Names())
	require.Equal(t, []string{"fourth"}, report.Registered)
}

func TestDiscover_PluginOverridesBuiltin(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{
		"override.hcl": `operation "add" { handler = "subtract" }`,
	})

	_, err := NewDiscoverer(reg, Options{}).Discover(ctx, dir)
	require.NoError(t, err)

	desc, ok := reg.Lookup("add")
	require.True(t, ok)
	require.Equal(t, "plugins.override", desc.Source)
	got, err := desc.New(operation.Two(decimal.NewFromInt(5), decimal.NewFromInt(3))).Compute(context.Background())
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(2)))
}

type countingLoader struct {
	calls chan string
}

func (l *countingLoader) Load(_ context.Context, c Candidate, _ KindSource) ([]Registration, error) {
	l.calls <- c.ModuleID
	return nil, nil
}

func TestDiscover_UsesInjectedLoader(t *testing.T) {
	t.Parallel()
	reg, dir, ctx, _ := setup(t, map[string]string{
		"plugin1.hcl": "",
		"plugin2.hcl": "",
		"_init.hcl":   "",
	})
	loader := &countingLoader{calls: make(chan string, 8)}

	_, err := NewDiscoverer(reg, Options{Loader: loader}).Discover(ctx, dir)
	require.NoError(t, err)
	close(loader.calls)

	var got []string
	for id := range loader.calls {
		got = append(got, id)
	}
	require.ElementsMatch(t, []string{"plugins.plugin1", "plugins.plugin2"}, got)
}

func TestWatch_ReloadsOnNewManifest(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.RegisterModules(&arithmetic.Module{}, &power.Module{})
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer cancel()

	reloads := make(chan *Report, 4)
	d := NewDiscoverer(reg, Options{Debounce: 20 * time.Millisecond})
	done := make(chan error, 1)
	go func() {
		done <- d.Watch(ctx, dir, func(r *Report, err error) {
			if err == nil {
				reloads <- r
			}
		})
	}()

	// --- Act ---
	// Give the watcher a moment to register the directory before writing.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(filepath.Join(dir, "fourth.hcl"), []byte(fourthManifest), 0o644); err != nil {
			return false
		}
		_, ok := reg.Lookup("fourth")
		return ok
	}, 5*time.Second, 100*time.Millisecond)

	// --- Assert ---
	select {
	case r := <-reloads:
		require.Contains(t, r.Registered, "fourth")
	case <-time.After(5 * time.Second):
		t.Fatal("no reload reported")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

// slowLoader tracks how many loads overlap.
type slowLoader struct {
	active, peak atomic.Int32
	loads        atomic.Int32
}

func (l *slowLoader) Load(_ context.Context, _ Candidate, _ KindSource) ([]Registration, error) {
	n := l.active.Add(1)
	defer l.active.Add(-1)
	for {
		peak := l.peak.Load()
		if n <= peak || l.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	l.loads.Add(1)
	time.Sleep(50 * time.Millisecond)
	return nil, nil
}

func TestWatch_ReloadsRunOneAtATime(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer cancel()

	loader := &slowLoader{}
	d := NewDiscoverer(reg, Options{Debounce: time.Millisecond, Concurrency: 1, Loader: loader})
	var returned, lateCalls atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- d.Watch(ctx, dir, func(*Report, error) {
			if returned.Load() {
				lateCalls.Store(true)
			}
		})
	}()

	// --- Act ---
	// Keep writing until several reloads have overlapped with new events.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "op.hcl"), []byte(fourthManifest), 0o644)
		return loader.loads.Load() >= 3
	}, 10*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	returned.Store(true)
	time.Sleep(100 * time.Millisecond)

	// --- Assert ---
	require.EqualValues(t, 1, loader.peak.Load())
	require.EqualValues(t, 0, loader.active.Load())
	require.False(t, lateCalls.Load())
}
