package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigFileNotFound is returned by AutoLoad when no configuration file
// exists in any search path.
var ErrConfigFileNotFound = errors.New("config file not found")

// Format represents the configuration file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Loader loads configuration from files and the environment.
type Loader struct {
	searchPaths []string
	envPrefix   string
	defaults    *Config
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"/etc/stategraph",
		},
		envPrefix: "STATEGRAPH",
		defaults:  DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths.
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaults sets the configuration the loader merges file values onto.
func (l *Loader) SetDefaults(config *Config) *Loader {
	l.defaults = config
	return l
}

// Load loads configuration from the given file, applies environment
// overrides and validates the result.
func (l *Loader) Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	format, err := formatFromExt(filename)
	if err != nil {
		return nil, err
	}

	return l.finish(data, format)
}

// LoadFromReader loads configuration from an io.Reader.
func (l *Loader) LoadFromReader(reader io.Reader, format Format) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	return l.finish(data, format)
}

// AutoLoad discovers a configuration file in the search paths. When none
// exists, the defaults plus environment overrides are returned.
func (l *Loader) AutoLoad() (*Config, error) {
	filename, err := l.findConfigFile()
	if err != nil {
		if errors.Is(err, ErrConfigFileNotFound) {
			config := l.baseConfig()

			l.applyEnv(config)

			if err := config.Validate(); err != nil {
				return nil, fmt.Errorf("configuration validation failed: %w", err)
			}

			return config, nil
		}

		return nil, err
	}

	return l.Load(filename)
}

func (l *Loader) finish(data []byte, format Format) (*Config, error) {
	config := l.baseConfig()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// baseConfig returns a copy of the defaults so unmarshalling overlays
// file values onto them.
func (l *Loader) baseConfig() *Config {
	defaults := l.defaults
	if defaults == nil {
		defaults = DefaultConfig()
	}

	cloned := *defaults

	return &cloned
}

func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"stategraph.yaml", "stategraph.yml",
		"config.yaml", "config.yml",
		"stategraph.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

func (l *Loader) applyEnv(config *Config) {
	if val := os.Getenv(l.envPrefix + "_APP_NAME"); val != "" {
		config.App.Name = val
	}

	if val := os.Getenv(l.envPrefix + "_APP_ENVIRONMENT"); val != "" {
		config.App.Environment = Environment(val)
	}

	if val := os.Getenv(l.envPrefix + "_APP_DEBUG"); val != "" {
		config.App.Debug = strings.EqualFold(val, "true")
	}

	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		config.Log.Level = strings.ToLower(val)
	}

	if val := os.Getenv(l.envPrefix + "_LOG_FORMAT"); val != "" {
		config.Log.Format = strings.ToLower(val)
	}

	if val := os.Getenv(l.envPrefix + "_RUN_MAX_STEPS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Run.MaxSteps = n
		}
	}

	if val := os.Getenv(l.envPrefix + "_RUN_MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Run.MaxConcurrency = n
		}
	}

	if val := os.Getenv(l.envPrefix + "_RUN_NODE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Run.NodeTimeout = Duration(d)
		}
	}

	if val := os.Getenv(l.envPrefix + "_RUN_STEP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Run.StepTimeout = Duration(d)
		}
	}

	if val := os.Getenv(l.envPrefix + "_CHECKPOINT_STORE"); val != "" {
		config.Checkpoint.Store = strings.ToLower(val)
	}

	if val := os.Getenv(l.envPrefix + "_CHECKPOINT_DIR"); val != "" {
		config.Checkpoint.Dir = val
	}
}

func formatFromExt(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", filepath.Ext(filename))
	}
}
