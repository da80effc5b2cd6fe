package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/opcalc/internal/app"
	"github.com/specialistvlad/opcalc/internal/operand"
	"github.com/spf13/cobra"
)

// Usage is printed when the positional arguments cannot be interpreted.
const Usage = "Usage: opcalc [mp] <number1> <number2> <operation>"

// isolatedArg is the positional switch for isolated execution.
const isolatedArg = "mp"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Streams are the process's standard streams.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type flags struct {
	configPath    string
	envFile       string
	pluginDir     string
	isolated      bool
	strictPlugins bool
	watch         bool
	workerTimeout time.Duration
	logLevel      string
	logFormat     string
	logFile       string
	historyLimit  int
}

// Execute parses args and runs the selected command. lookup resolves
// environment variables and is normally os.LookupEnv.
func Execute(ctx context.Context, args []string, streams Streams, lookup func(string) (string, bool)) error {
	root := NewRootCommand(streams, lookup)
	root.SetArgs(guardNegativeNumbers(args))
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the opcalc command tree.
func NewRootCommand(streams Streams, lookup func(string) (string, bool)) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "opcalc [mp] [number1] [number2] [operation]",
		Short: "A calculator with pluggable operations.",
		Long: `opcalc evaluates named operations over decimal operands.

With no arguments it starts an interactive session. With "<a> <b> <op>" or
"<a> <op>" it performs one calculation and exits. A leading "mp" runs the
calculation in an isolated worker process. Operations beyond the built-in
ones are declared in HCL manifests in the plugins directory.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			args, isolated := stripIsolatedArg(args)
			if isolated {
				if err := cmd.Flags().Set("isolated", "true"); err != nil {
					return err
				}
			}
			switch len(args) {
			case 0:
				return runREPL(cmd, f, streams, lookup)
			case 2:
				return runCalc(cmd, f, streams, lookup, args[0], "", args[1])
			case 3:
				return runCalc(cmd, f, streams, lookup, args[0], args[1], args[2])
			default:
				return &ExitError{Code: 1, Message: Usage}
			}
		},
	}
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	pf := root.PersistentFlags()
	defaults := app.DefaultConfig()
	pf.StringVar(&f.configPath, "config", "", "Path to a YAML config file.")
	pf.StringVar(&f.envFile, "env-file", ".env", "Path to a dotenv file. A missing file is ignored.")
	pf.StringVarP(&f.pluginDir, "plugins", "p", defaults.PluginDir, "Directory containing plugin manifests.")
	pf.BoolVar(&f.isolated, "isolated", false, "Run every calculation in an isolated worker process.")
	pf.BoolVar(&f.strictPlugins, "strict-plugins", false, "Abort startup if any plugin manifest fails to load.")
	pf.BoolVar(&f.watch, "watch", false, "Reload plugin manifests when they change (interactive mode).")
	pf.DurationVar(&f.workerTimeout, "worker-timeout", 0, "Upper bound for an isolated calculation. 0 is disabled.")
	pf.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&f.logFile, "log-file", defaults.LogFile, "Rotated log file. Empty disables it.")
	pf.IntVar(&f.historyLimit, "history-limit", 0, "Maximum calculations kept in history. 0 keeps everything.")

	root.AddCommand(
		&cobra.Command{
			Use:   "repl",
			Short: "Start an interactive session.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runREPL(cmd, f, streams, lookup)
			},
		},
		&cobra.Command{
			Use:   "calc <number1> [number2] <operation>",
			Short: "Perform one calculation.",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 2 {
					return runCalc(cmd, f, streams, lookup, args[0], "", args[1])
				}
				return runCalc(cmd, f, streams, lookup, args[0], args[1], args[2])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the registered operations.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd, f, streams, lookup)
				if err != nil {
					return err
				}
				defer a.Close()
				a.ListOperations()
				return nil
			},
		},
	)

	return root
}

func runREPL(cmd *cobra.Command, f *flags, streams Streams, lookup func(string) (string, bool)) error {
	a, err := newApp(cmd, f, streams, lookup)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.RunREPL(cmd.Context(), streams.In)
}

func runCalc(cmd *cobra.Command, f *flags, streams Streams, lookup func(string) (string, bool), x, y, op string) error {
	a, err := newApp(cmd, f, streams, lookup)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Calculate(cmd.Context(), x, y, op); err != nil {
		// Already reported to the user.
		return &ExitError{Code: 1}
	}
	return nil
}

func newApp(cmd *cobra.Command, f *flags, streams Streams, lookup func(string) (string, bool)) (*app.App, error) {
	cfg, err := resolveConfig(cmd, f, lookup)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("CLI configuration resolved.", "config", cfg)

	a, err := app.NewApp(cmd.Context(), streams.Out, streams.Err, cfg)
	if err != nil {
		return nil, &ExitError{Code: 1, Message: err.Error()}
	}
	return a, nil
}

// resolveConfig layers defaults, the config file, the environment (including
// the dotenv file) and explicitly set flags, in that order.
func resolveConfig(cmd *cobra.Command, f *flags, lookup func(string) (string, bool)) (*app.Config, error) {
	cfg := app.DefaultConfig()
	if f.configPath != "" {
		if err := app.LoadConfigFile(&cfg, f.configPath); err != nil {
			return nil, err
		}
	}

	env, err := withDotenv(f.envFile, lookup)
	if err != nil {
		return nil, err
	}
	if err := app.ApplyEnv(&cfg, env); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("plugins") {
		cfg.PluginDir = f.pluginDir
	}
	if changed("isolated") {
		cfg.Isolated = f.isolated
	}
	if changed("strict-plugins") {
		cfg.StrictPlugins = f.strictPlugins
	}
	if changed("watch") {
		cfg.Watch = f.watch
	}
	if changed("worker-timeout") {
		cfg.WorkerTimeout = f.workerTimeout
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if changed("history-limit") {
		cfg.HistoryLimit = f.historyLimit
	}

	return app.NewConfig(cfg)
}

// withDotenv returns a lookup that consults lookup first and falls back to
// the values in the dotenv file at path.
func withDotenv(path string, lookup func(string) (string, bool)) (func(string) (string, bool), error) {
	if path == "" {
		return lookup, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return lookup, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

func stripIsolatedArg(args []string) ([]string, bool) {
	out := make([]string, 0, len(args))
	found := false
	for _, a := range args {
		if a == isolatedArg {
			found = true
			continue
		}
		out = append(out, a)
	}
	return out, found
}

// guardNegativeNumbers inserts "--" before the first negative number so it
// is read as an operand rather than a flag.
func guardNegativeNumbers(args []string) []string {
	for i, a := range args {
		if a == "--" {
			return args
		}
		if !strings.HasPrefix(a, "-") {
			continue
		}
		if _, err := operand.Parse(a); err != nil {
			continue
		}
		out := make([]string, 0, len(args)+1)
		out = append(out, args[:i]...)
		out = append(out, "--")
		return append(out, args[i:]...)
	}
	return args
}
