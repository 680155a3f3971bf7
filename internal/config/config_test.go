package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"no agents",
			func(c *Config) { c.Agents = nil },
			"at least one agent",
		},
		{
			"agent without id",
			func(c *Config) { c.Agents[0].ID = "" },
			"ID is required",
		},
		{
			"agent model without provider",
			func(c *Config) { c.Agents[0].Model = "claude-sonnet-4" },
			"provider/model pair",
		},
		{
			"missing default model",
			func(c *Config) { c.Models.Default = "" },
			"models.default is required",
		},
		{
			"bad queue mode",
			func(c *Config) { c.Queue.Mode = "batch" },
			"invalid queue mode",
		},
		{
			"negative debounce",
			func(c *Config) { c.Queue.DebounceMs = -10 },
			"debounce cannot be negative",
		},
		{
			"bad drop policy",
			func(c *Config) { c.Queue.Drop = "oldest" },
			"invalid queue drop policy",
		},
		{
			"auth profile without provider",
			func(c *Config) { c.Auth.Profiles = []AuthProfile{{Name: "work"}} },
			"provider is required",
		},
		{
			"reconnect factor below one",
			func(c *Config) { c.Reconnect.Factor = 0.5 },
			"factor must be >= 1",
		},
		{
			"jitter out of range",
			func(c *Config) { c.Reconnect.Jitter = 1.5 },
			"jitter must be within",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.Models.Default)
	assert.Equal(t, "collect", cfg.Queue.Mode)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sela.json")
	content := `{
		"data_dir": "` + dir + `",
		"models": {"default": "openai/gpt-4.1"},
		"queue": {"mode": "followup", "debounce_ms": 800},
		"agents": [{"id": "coder", "model": "openai/gpt-4.1", "command": ["agent"]}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "openai/gpt-4.1", cfg.Models.Default)
	assert.Equal(t, "followup", cfg.Queue.Mode)
	assert.Equal(t, 800, cfg.Queue.DebounceMs)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "sela.log"), cfg.Logging.File)

	agent, ok := cfg.Agent("coder")
	require.True(t, ok)
	assert.Equal(t, "openai/gpt-4.1", agent.Model)

	// Defaults not mentioned in the file survive
	assert.Equal(t, 20, cfg.Queue.Cap)
	assert.Equal(t, 2.0, cfg.Reconnect.Factor)
}

func TestAgentLookup(t *testing.T) {
	cfg := DefaultConfig()

	_, ok := cfg.Agent("default")
	assert.True(t, ok)

	_, ok = cfg.Agent("ghost")
	assert.False(t, ok)
}
