package config

import (
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/stategraph/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "stategraph", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, engine.DefaultConfig.MaxSteps, cfg.Run.MaxSteps)
	assert.Equal(t, "memory", cfg.Checkpoint.Store)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Environment = "staging"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Run.MaxSteps = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Run.NodeTimeout = Duration(-time.Second)
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Checkpoint.Store = "file"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint dir is required")

	cfg.Checkpoint.Dir = "/tmp/checkpoints"
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Checkpoint.OnFailure = "retry"
	assert.Error(t, cfg.Validate())
}

func TestConfig_EngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run.MaxSteps = 50
	cfg.Run.MaxConcurrency = 4
	cfg.Run.NodeTimeout = Duration(5 * time.Second)
	cfg.Run.TerminationChannel = "halt"
	cfg.Checkpoint.OnFailure = "continue"

	ec := cfg.EngineConfig()
	assert.Equal(t, 50, ec.MaxSteps)
	assert.Equal(t, 4, ec.MaxConcurrency)
	assert.Equal(t, 5*time.Second, ec.NodeTimeout)
	assert.Equal(t, "halt", ec.TerminationChannel)
	assert.Equal(t, engine.CheckpointContinue, ec.CheckpointFailure)

	cfg.Checkpoint.OnFailure = "abort"
	assert.Equal(t, engine.CheckpointAbort, cfg.EngineConfig().CheckpointFailure)
}

func TestLoader_LoadFromReaderYAML(t *testing.T) {
	doc := `
app:
  name: pipeline
  environment: production
log:
  level: debug
run:
  max_steps: 100
  node_timeout: 30s
checkpoint:
  store: file
  dir: /var/lib/stategraph
`

	cfg, err := NewLoader().LoadFromReader(strings.NewReader(doc), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "pipeline", cfg.App.Name)
	assert.Equal(t, EnvProduction, cfg.App.Environment)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Run.MaxSteps)
	assert.Equal(t, 30*time.Second, cfg.Run.NodeTimeout.Std())
	assert.Equal(t, "file", cfg.Checkpoint.Store)
}

func TestLoader_LoadFromReaderJSON(t *testing.T) {
	doc := `{"app": {"name": "pipeline"}, "run": {"max_concurrency": 3}}`

	cfg, err := NewLoader().LoadFromReader(strings.NewReader(doc), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "pipeline", cfg.App.Name)
	assert.Equal(t, 3, cfg.Run.MaxConcurrency)

	// Unset fields keep their defaults.
	assert.Equal(t, engine.DefaultConfig.MaxSteps, cfg.Run.MaxSteps)
}

func TestLoader_LoadFromReaderInvalid(t *testing.T) {
	_, err := NewLoader().LoadFromReader(strings.NewReader("log:\n  level: shouty\n"), FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("STATEGRAPH_LOG_LEVEL", "warn")
	t.Setenv("STATEGRAPH_RUN_MAX_STEPS", "7")
	t.Setenv("STATEGRAPH_RUN_NODE_TIMEOUT", "250ms")

	cfg, err := NewLoader().LoadFromReader(strings.NewReader("app:\n  name: pipeline\n"), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Run.MaxSteps)
	assert.Equal(t, 250*time.Millisecond, cfg.Run.NodeTimeout.Std())
}

func TestLoader_AutoLoadFallsBackToDefaults(t *testing.T) {
	loader := NewLoader().SetSearchPaths([]string{t.TempDir()})

	cfg, err := loader.AutoLoad()
	require.NoError(t, err)
	assert.Equal(t, "stategraph", cfg.App.Name)
}

func TestLoader_LoadUnsupportedExtension(t *testing.T) {
	_, err := NewLoader().Load("config.toml")
	assert.Error(t, err)
}
