package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meshbridge/routeragent/pkg/auth"
	"github.com/meshbridge/routeragent/pkg/util"
)

// DefaultServerConfigPath is the default location of controlplaned's config file.
const DefaultServerConfigPath = "/etc/router-agent/controlplaned.yaml"

// DefaultServerLogLevel is used when the config omits log_level.
const DefaultServerLogLevel = "info"

// ServerConfig is controlplaned's local configuration file, decoded from
// YAML: its Redis connection, HTTP listen address, operator bearer tokens,
// and the auth.Policy those tokens' resolved usernames are checked against.
type ServerConfig struct {
	ListenAddr    string            `yaml:"listen_addr"`
	RedisAddr     string            `yaml:"redis_addr"`
	RedisPassword string            `yaml:"redis_password,omitempty"`
	RedisDB       int               `yaml:"redis_db,omitempty"`
	LogLevel      string            `yaml:"log_level"`
	Tokens        map[string]string `yaml:"tokens"`
	Policy        auth.Policy       `yaml:"policy"`
}

// LoadServer reads and validates the server config file at the default path.
func LoadServer() (*ServerConfig, error) {
	return LoadServerFrom(DefaultServerConfigPath)
}

// LoadServerFrom reads and validates the server config file at path.
func LoadServerFrom(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	c := &ServerConfig{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8443"
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultServerLogLevel
	}
}

// Validate checks that the fields controlplaned cannot run without are present.
func (c *ServerConfig) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(c.RedisAddr != "", "redis_addr is required")
	v.Add(len(c.Tokens) > 0, "at least one operator token is required")
	return v.Build()
}
