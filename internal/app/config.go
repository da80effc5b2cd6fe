package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvPluginDir          = "OPCALC_PLUGINS_DIR"
	EnvIsolated           = "OPCALC_ISOLATED"
	EnvUseMultiprocessing = "USE_MULTIPROCESSING"
	EnvStrictPlugins      = "OPCALC_STRICT_PLUGINS"
	EnvWatch              = "OPCALC_WATCH"
	EnvWorkerTimeout      = "OPCALC_WORKER_TIMEOUT"
	EnvLogLevel           = "OPCALC_LOG_LEVEL"
	EnvLogFormat          = "OPCALC_LOG_FORMAT"
	EnvLogFile            = "OPCALC_LOG_FILE"
	EnvHistoryLimit       = "OPCALC_HISTORY_LIMIT"
	EnvEnvironment        = "ENVIRONMENT"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PluginDir     string        `yaml:"plugins_dir"`
	Isolated      bool          `yaml:"isolated"`
	StrictPlugins bool          `yaml:"strict_plugins"`
	Watch         bool          `yaml:"watch"`
	WorkerTimeout time.Duration `yaml:"worker_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"` // empty disables the file sink

	HistoryLimit int    `yaml:"history_limit"` // 0 keeps everything
	Environment  string `yaml:"environment"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		PluginDir: "plugins",
		LogLevel:  "info",
		LogFormat: "text",
		LogFile:   "logs/opcalc.log",
	}
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	if cfg.WorkerTimeout < 0 {
		return nil, errors.New("worker-timeout cannot be negative")
	}
	if cfg.HistoryLimit < 0 {
		return nil, errors.New("history-limit cannot be negative")
	}
	if cfg.Watch && cfg.PluginDir == "" {
		return nil, errors.New("watch requires a plugins directory")
	}

	return &cfg, nil
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys missing from
// the file keep their current values.
func LoadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment values onto cfg. lookup is normally
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPluginDir); ok {
		cfg.PluginDir = v
	}
	if v, ok := lookup(EnvUseMultiprocessing); ok && v == "true" {
		cfg.Isolated = true
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{EnvIsolated, &cfg.Isolated},
		{EnvStrictPlugins, &cfg.StrictPlugins},
		{EnvWatch, &cfg.Watch},
	}
	for _, b := range bools {
		v, ok := lookup(b.name)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", b.name, v, err)
		}
		*b.dst = parsed
	}

	if v, ok := lookup(EnvWorkerTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkerTimeout, v, err)
		}
		cfg.WorkerTimeout = d
	}
	if v, ok := lookup(EnvHistoryLimit); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHistoryLimit, v, err)
		}
		cfg.HistoryLimit = n
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := lookup(EnvLogFile); ok {
		cfg.LogFile = v
	}
	if v, ok := lookup(EnvEnvironment); ok {
		cfg.Environment = v
	}
	return nil
}
