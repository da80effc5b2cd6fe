package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/dispatch"
	"github.com/specialistvlad/opcalc/internal/history"
	"github.com/specialistvlad/opcalc/internal/metrics"
	"github.com/specialistvlad/opcalc/internal/plugin"
	"github.com/specialistvlad/opcalc/internal/present"
	"github.com/specialistvlad/opcalc/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	logCloser  io.Closer
	config     *Config
	registry   *registry.Registry
	discoverer *plugin.Discoverer
	report     *plugin.Report
	dispatcher *dispatch.Dispatcher
	history    *history.Store
	metrics    *metrics.Collector
	printer    *present.Printer
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Results go to outW and log records to errW. modules defaults to the
// compiled-in module list.
func NewApp(ctx context.Context, outW, errW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger, closer := newLogger(cfg.LogLevel, cfg.LogFormat, errW, cfg.LogFile)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")
	logger.Info("Application started.", "environment", cfg.Environment)

	if len(modules) == 0 {
		modules = coreModules
	}
	reg, discoverer, report, err := buildRegistry(ctx, logger, modules, cfg.PluginDir, cfg.StrictPlugins)
	if err != nil {
		closer.Close()
		return nil, err
	}

	// A descriptor without a constructor is a programmer error in a compiled-in
	// module, so we panic.
	if err := reg.Validate(); err != nil {
		closer.Close()
		panic(err)
	}
	logger.Debug("Registry validation passed.", "operations", reg.Len())

	collector := metrics.New()
	collector.SetOperations(reg.Len())

	disp := dispatch.New(reg, dispatch.Options{
		WorkerKinds:   workerCatalog(),
		WorkerTimeout: cfg.WorkerTimeout,
		Metrics:       collector,
	})
	if cfg.Isolated {
		if err := disp.CheckTransferable(); err != nil {
			closer.Close()
			return nil, fmt.Errorf("isolated mode is unavailable: %w", err)
		}
	}

	return &App{
		outW:       outW,
		logger:     logger,
		logCloser:  closer,
		config:     cfg,
		registry:   reg,
		discoverer: discoverer,
		report:     report,
		dispatcher: disp,
		history:    history.New(cfg.HistoryLimit),
		metrics:    collector,
		printer:    present.New(outW),
	}, nil
}

// buildRegistry registers modules and then discovers plugins from dir. An
// empty dir skips discovery.
func buildRegistry(ctx context.Context, logger *slog.Logger, modules []registry.Module, dir string, strict bool) (*registry.Registry, *plugin.Discoverer, *plugin.Report, error) {
	reg := registry.New(logger)
	reg.RegisterModules(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	discoverer := plugin.NewDiscoverer(reg, plugin.Options{Strict: strict})
	if dir == "" {
		return reg, discoverer, &plugin.Report{}, nil
	}
	report, err := discoverer.Discover(ctx, dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load plugins: %w", err)
	}
	return reg, discoverer, report, nil
}

// workerCatalog is the handler-kind catalog of a worker process: the kinds of
// the compiled-in modules.
func workerCatalog() *registry.Registry {
	catalog := registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	catalog.RegisterModules(coreModules...)
	return catalog
}

// Close releases the log file.
func (a *App) Close() error {
	return a.logCloser.Close()
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// History returns the calculations performed so far.
func (a *App) History() *history.Store {
	return a.history
}

// Metrics returns the application's dispatch collector.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

// PluginReport returns the result of the startup discovery pass.
func (a *App) PluginReport() *plugin.Report {
	return a.report
}

// ListOperations prints every registered operation.
func (a *App) ListOperations() {
	a.printer.Title("Operations")
	a.printer.Operations(a.registry.Descriptors())
}

func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
