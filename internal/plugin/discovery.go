package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/specialistvlad/opcalc/internal/calcerr"
	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/fsutil"
	"github.com/specialistvlad/opcalc/internal/registry"
	"golang.org/x/sync/errgroup"
)

// ManifestExtension is the file extension of plugin manifests.
const ManifestExtension = ".hcl"

// Options tunes a Discoverer.
type Options struct {
	// Strict aborts discovery on the first manifest that fails to load and
	// registers nothing from that pass. The default skips and logs the
	// failed file and continues with the rest.
	Strict bool
	// Concurrency bounds how many manifests are parsed at once. Zero means 4.
	Concurrency int
	// Debounce is the quiet period Watch waits for before reloading.
	// Zero means 250ms.
	Debounce time.Duration
	Loader   Loader
}

// Failure records a manifest that could not be loaded.
type Failure struct {
	Path string
	Err  error
}

// Report summarises one discovery pass.
type Report struct {
	Dir string
	// Notice is set when the directory does not exist.
	Notice     string
	Modules    []string
	Registered []string
	Failed     []Failure
}

// Discoverer loads plugin manifests from a directory into a registry.
type Discoverer struct {
	reg  *registry.Registry
	opts Options
}

// NewDiscoverer creates a Discoverer that registers into reg.
func NewDiscoverer(reg *registry.Registry, opts Options) *Discoverer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}
	if opts.Loader == nil {
		opts.Loader = NewHCLLoader()
	}
	return &Discoverer{reg: reg, opts: opts}
}

// IsInternal reports whether a file name marks an internal module that is
// never loaded as a plugin.
func IsInternal(name string) bool {
	return strings.HasPrefix(name, "_")
}

// MissingDirNotice is the notice reported for a plugin directory that does not exist.
func MissingDirNotice(dir string) string {
	return fmt.Sprintf("Plugins directory '%s' does not exist. Skipping plugin loading.", dir)
}

// Discover loads every manifest directly inside dir. A missing directory is
// not an error: the registry is left untouched and Report.Notice is set.
func (d *Discoverer) Discover(ctx context.Context, dir string) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	report := &Report{Dir: dir}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		report.Notice = MissingDirNotice(dir)
		logger.Warn(report.Notice, "kind", calcerr.KindPluginDirectoryMissing)
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat plugin directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugin path %s is not a directory", dir)
	}

	paths, err := fsutil.ListFilesByExtension(dir, ManifestExtension, IsInternal)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugin directory %s: %w", dir, err)
	}
	if len(paths) == 0 {
		logger.Warn("No plugin manifests found.", "dir", dir)
		return report, nil
	}
	logger.Debug("Found plugin manifests.", "dir", dir, "files", paths)

	candidates := make([]Candidate, len(paths))
	for i, p := range paths {
		candidates[i] = Candidate{Path: p, ModuleID: moduleID(dir, p)}
	}

	results := make([][]Registration, len(candidates))
	loadErrs := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], loadErrs[i] = d.opts.Loader.Load(gctx, c, d.reg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Failures are resolved in file order so strict mode always reports the
	// same file for the same directory.
	for i, c := range candidates {
		if loadErrs[i] == nil {
			continue
		}
		if d.opts.Strict {
			return nil, fmt.Errorf("plugin discovery aborted: %w", loadErrs[i])
		}
		logger.Warn("Skipping plugin that failed to load.", "module", c.ModuleID, "error", loadErrs[i])
		report.Failed = append(report.Failed, Failure{Path: c.Path, Err: loadErrs[i]})
	}

	for i, c := range candidates {
		if loadErrs[i] != nil {
			continue
		}
		for _, reg := range results[i] {
			reg.Apply(d.reg)
			report.Registered = append(report.Registered, reg.Descriptor.Name)
		}
		report.Modules = append(report.Modules, c.ModuleID)
	}

	logger.Info("Plugins loaded.", "dir", dir, "modules", len(report.Modules), "operations", len(report.Registered), "failed", len(report.Failed))
	return report, nil
}

// moduleID builds "<dir base>.<file base without extension>".
func moduleID(dir, path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ManifestExtension)
	return filepath.Base(filepath.Clean(dir)) + "." + base
}
