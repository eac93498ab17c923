// Package config loads the Router Agent's local identity and behavior
// configuration. Unlike the CLI preference file it is modeled on, a missing
// or invalid config file is a fatal startup condition: the agent has no
// identity to authenticate with otherwise.
package config

import (
	"fmt"
	"os"

	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location of the agent's local config file.
const DefaultConfigPath = "/etc/router-agent/agent.yaml"

// ModeConfig is the agent-wide default enforcement mode plus any
// per-section overrides, as decoded from YAML. rpc.AgentMode is its
// wire/runtime counterpart; ToAgentMode converts between the two.
type ModeConfig struct {
	Default   rpc.Mode          `yaml:"default"`
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

// Config is the agent's local configuration file, decoded from YAML.
type Config struct {
	DeviceID            string          `yaml:"device_id"`
	APIKey              string          `yaml:"api_key"`
	WebSocketURL        string          `yaml:"websocket_url"`
	LogLevel            string          `yaml:"log_level"`
	MetricsIntervalSecs int             `yaml:"metrics_interval_secs"`
	Mode                ModeConfig      `yaml:"mode"`
	Adapters            map[string]bool `yaml:"adapters,omitempty"`
}

const (
	// DefaultMetricsIntervalSecs is used when the config omits the field.
	DefaultMetricsIntervalSecs = 30

	// DefaultLogLevel is used when the config omits the field.
	DefaultLogLevel = "info"
)

// Load reads and validates the config file at the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath)
}

// LoadFrom reads and validates the config file at path. Unlike an optional
// CLI-preferences file, a missing or malformed agent config is fatal: the
// agent cannot authenticate without device_id/api_key.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.MetricsIntervalSecs <= 0 {
		c.MetricsIntervalSecs = DefaultMetricsIntervalSecs
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Mode.Default == "" {
		c.Mode.Default = rpc.ModeObserve
	}
}

// Validate checks that required identity fields are present and that mode
// values are members of the closed Mode vocabulary.
func (c *Config) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(c.DeviceID != "", "device_id is required")
	v.Add(c.APIKey != "", "api_key is required")
	v.Add(c.WebSocketURL != "", "websocket_url is required")
	v.Add(c.Mode.Default.Valid(), fmt.Sprintf("mode.default %q is not a recognized mode", c.Mode.Default))

	for section, mode := range c.Mode.Overrides {
		if !rpc.Mode(mode).Valid() {
			v.AddErrorf("mode.overrides[%s] %q is not a recognized mode", section, mode)
		}
	}

	if err := v.Build(); err != nil {
		return err
	}
	return nil
}

// EffectiveMode resolves the mode for section from the configured
// overrides, falling back to the agent default when no override is
// configured.
func (c *Config) EffectiveMode(section string) rpc.Mode {
	if m, ok := c.Mode.Overrides[section]; ok {
		return rpc.Mode(m)
	}
	return c.Mode.Default
}

// SetOverride installs a per-section mode override, replacing any existing
// override for section.
func (c *Config) SetOverride(section string, mode rpc.Mode) {
	if c.Mode.Overrides == nil {
		c.Mode.Overrides = make(map[string]string)
	}
	c.Mode.Overrides[section] = string(mode)
}

// AgentMode converts the YAML-decoded mode configuration into the
// wire-shared rpc.AgentMode type used by the dispatcher and modewrap.
func (c *Config) AgentMode() rpc.AgentMode {
	am := rpc.AgentMode{Default: c.Mode.Default}
	if len(c.Mode.Overrides) > 0 {
		am.Overrides = make(map[rpc.Section]rpc.Mode, len(c.Mode.Overrides))
		for section, mode := range c.Mode.Overrides {
			am.Overrides[rpc.Section(section)] = rpc.Mode(mode)
		}
	}
	return am
}

// AdapterEnabled reports whether the named adapter is enabled. Adapters
// absent from the adapters map are enabled by default.
func (c *Config) AdapterEnabled(name string) bool {
	enabled, ok := c.Adapters[name]
	if !ok {
		return true
	}
	return enabled
}
