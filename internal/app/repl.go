package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/opcalc/internal/ctxlog"
	"github.com/specialistvlad/opcalc/internal/fsutil"
	"github.com/specialistvlad/opcalc/internal/plugin"
	"github.com/specialistvlad/opcalc/internal/present"
)

// REPL prompts and banners.
const (
	Prompt         = "Enter command (e.g., 3 4 add or 3 cube): "
	WelcomeMessage = "Welcome to the Interactive Calculator. Type 'menu' to see available commands or 'exit' to quit."
	IsolatedNotice = "Running with multiprocessing enabled."
	GoodbyeMessage = "Exiting the calculator. Goodbye!"
)

// RunREPL reads commands from in until "exit", end of input or ctx is
// cancelled. Calculation failures are printed and the loop continues.
func (a *App) RunREPL(ctx context.Context, in io.Reader) error {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Info("Entering REPL mode.")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.config.Watch {
		go a.watchPlugins(ctx)
	}

	a.printer.Title(WelcomeMessage)
	if a.config.Isolated {
		a.printer.Line(IsolatedNotice)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.outW, Prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			a.printer.Line("")
			break
		}
		if ctx.Err() != nil {
			break
		}
		if !a.handleLine(ctx, scanner.Text()) {
			break
		}
	}

	logger.Info("Exiting REPL mode.")
	a.printer.Line(GoodbyeMessage)
	return nil
}

// handleLine runs one REPL command and reports whether the loop continues.
func (a *App) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return true
	case "exit":
		return false
	case "menu":
		a.printer.Menu(a.registry.Names())
		return true
	case "list":
		a.ListOperations()
		return true
	case "history":
		a.printer.History(a.history.All())
		return true
	case "clear":
		a.history.Clear()
		a.printer.Success("History cleared.")
		return true
	case "stats":
		stats, err := a.metrics.Summary()
		if err != nil {
			a.printer.Error(err, "", "")
			return true
		}
		a.printer.Stats(stats)
		return true
	}

	parts := strings.Fields(line)
	switch len(parts) {
	case 3:
		a.Calculate(ctx, parts[0], parts[1], parts[2])
	case 2:
		a.Calculate(ctx, parts[0], "", parts[1])
	default:
		a.printer.Line(present.UsageAny)
	}
	return true
}

// watchPlugins reloads the plugin directory while the REPL runs.
func (a *App) watchPlugins(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if !fsutil.DirExists(a.config.PluginDir) {
		logger.Warn("Plugin directory does not exist. Not watching.", "dir", a.config.PluginDir)
		return
	}
	err := a.discoverer.Watch(ctx, a.config.PluginDir, func(report *plugin.Report, err error) {
		if err != nil {
			logger.Error("Plugin reload failed.", "error", err)
			return
		}
		a.metrics.SetOperations(a.registry.Len())
		logger.Info("Plugins reloaded.", "registered", report.Registered)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Plugin watcher stopped.", "error", err)
	}
}
