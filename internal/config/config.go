package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the main Sela configuration
type Config struct {
	// Agents addressable by inbound events
	Agents []AgentConfig `json:"agents" mapstructure:"agents"`

	// Models catalog, default and aliases
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// Queue defaults applied when a session has no explicit override
	Queue QueueConfig `json:"queue" mapstructure:"queue"`

	// Elevated holds the global elevated-mode allowlists keyed by transport
	Elevated ElevatedConfig `json:"elevated" mapstructure:"elevated"`

	// Auth profiles for model providers
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// Reconnect policy for the persistent transport connection
	Reconnect ReconnectConfig `json:"reconnect" mapstructure:"reconnect"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AgentConfig represents one addressable agent
type AgentConfig struct {
	ID      string   `json:"id" mapstructure:"id"`
	Name    string   `json:"name" mapstructure:"name"`
	Kind    string   `json:"kind" mapstructure:"kind"` // output parser variant
	Command []string `json:"command" mapstructure:"command"`

	// Model is the default provider/model pair for this agent
	Model string `json:"model" mapstructure:"model"`

	// Allowlist of permitted provider/model keys; empty permits the whole catalog
	Allowlist []string `json:"allowlist" mapstructure:"allowlist"`

	// ThinkingDefault is the configured thinking level (off, minimal, low, medium, high)
	ThinkingDefault string `json:"thinking_default" mapstructure:"thinking_default"`

	// ElevatedEnabled gates the elevated directive for this agent
	ElevatedEnabled bool `json:"elevated_enabled" mapstructure:"elevated_enabled"`

	// ElevatedAllowlist maps transport name to sender IDs permitted elevated mode
	ElevatedAllowlist map[string][]string `json:"elevated_allowlist" mapstructure:"elevated_allowlist"`
}

// ModelsConfig holds model catalog configuration
type ModelsConfig struct {
	// Default provider/model pair, e.g. "anthropic/claude-sonnet-4"
	Default string `json:"default" mapstructure:"default"`

	// Aliases map a short name to a provider/model reference
	Aliases map[string]string `json:"aliases" mapstructure:"aliases"`

	// Custom catalog entries merged over the built-in catalog
	Custom []CustomModel `json:"custom" mapstructure:"custom"`
}

// CustomModel is a user-configured catalog entry
type CustomModel struct {
	Provider  string `json:"provider" mapstructure:"provider"`
	ID        string `json:"id" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	Reasoning bool   `json:"reasoning" mapstructure:"reasoning"`
}

// QueueConfig holds queue behavior defaults
type QueueConfig struct {
	Mode       string `json:"mode" mapstructure:"mode"` // interrupt, steer, followup, collect, steer+backlog
	DebounceMs int    `json:"debounce_ms" mapstructure:"debounce_ms"`
	Cap        int    `json:"cap" mapstructure:"cap"`
	Drop       string `json:"drop" mapstructure:"drop"` // old, new, summarize
}

// ElevatedConfig holds the global elevated allowlists
type ElevatedConfig struct {
	// Allowlist maps transport name to sender IDs
	Allowlist map[string][]string `json:"allowlist" mapstructure:"allowlist"`
}

// AuthConfig holds provider credential profiles
type AuthConfig struct {
	Profiles []AuthProfile `json:"profiles" mapstructure:"profiles"`
}

// AuthProfile maps a profile name to a provider credential
type AuthProfile struct {
	Name     string `json:"name" mapstructure:"name"`
	Provider string `json:"provider" mapstructure:"provider"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// ReconnectConfig holds backoff and heartbeat settings
type ReconnectConfig struct {
	InitialMs        int     `json:"initial_ms" mapstructure:"initial_ms"`
	MaxMs            int     `json:"max_ms" mapstructure:"max_ms"`
	Factor           float64 `json:"factor" mapstructure:"factor"`
	Jitter           float64 `json:"jitter" mapstructure:"jitter"`
	MaxAttempts      int     `json:"max_attempts" mapstructure:"max_attempts"`
	HeartbeatSeconds int     `json:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Models: ModelsConfig{
			Default: "anthropic/claude-sonnet-4",
			Aliases: map[string]string{
				"opus":   "anthropic/claude-opus-4",
				"sonnet": "anthropic/claude-sonnet-4",
				"mini":   "openai/gpt-4.1-mini",
			},
		},
		Queue: QueueConfig{
			Mode:       "collect",
			DebounceMs: 1500,
			Cap:        20,
			Drop:       "old",
		},
		Elevated: ElevatedConfig{
			Allowlist: map[string][]string{},
		},
		Reconnect: ReconnectConfig{
			InitialMs:        500,
			MaxMs:            60000,
			Factor:           2.0,
			Jitter:           0.25,
			MaxAttempts:      0,
			HeartbeatSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9090,
		},
		Agents: []AgentConfig{
			{
				ID:              "default",
				Name:            "Default Agent",
				Kind:            "json",
				Model:           "anthropic/claude-sonnet-4",
				ThinkingDefault: "",
				ElevatedEnabled: false,
			},
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Agent returns the agent configuration with the given ID
func (c *Config) Agent(id string) (*AgentConfig, bool) {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i], true
		}
	}
	return nil, false
}

var validQueueModes = map[string]bool{
	"interrupt":     true,
	"steer":         true,
	"followup":      true,
	"collect":       true,
	"steer+backlog": true,
}

var validDropPolicies = map[string]bool{
	"old":       true,
	"new":       true,
	"summarize": true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}

	for i, agent := range c.Agents {
		if agent.ID == "" {
			return fmt.Errorf("agent %d: ID is required", i)
		}
		if agent.Model == "" {
			return fmt.Errorf("agent %s: model is required", agent.ID)
		}
		if !strings.Contains(agent.Model, "/") {
			return fmt.Errorf("agent %s: model must be a provider/model pair", agent.ID)
		}
	}

	if c.Models.Default == "" {
		return fmt.Errorf("models.default is required")
	}
	if !strings.Contains(c.Models.Default, "/") {
		return fmt.Errorf("models.default must be a provider/model pair")
	}

	if c.Queue.Mode != "" && !validQueueModes[c.Queue.Mode] {
		return fmt.Errorf("invalid queue mode: %s", c.Queue.Mode)
	}
	if c.Queue.DebounceMs < 0 {
		return fmt.Errorf("queue debounce cannot be negative")
	}
	if c.Queue.Cap < 0 {
		return fmt.Errorf("queue cap cannot be negative")
	}
	if c.Queue.Drop != "" && !validDropPolicies[c.Queue.Drop] {
		return fmt.Errorf("invalid queue drop policy: %s", c.Queue.Drop)
	}

	for i, profile := range c.Auth.Profiles {
		if profile.Name == "" {
			return fmt.Errorf("auth profile %d: name is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("auth profile %s: provider is required", profile.Name)
		}
	}

	if c.Reconnect.Factor < 1 {
		return fmt.Errorf("reconnect factor must be >= 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		return fmt.Errorf("reconnect jitter must be within [0,1]")
	}

	return nil
}
