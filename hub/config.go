package hub

import (
	"fmt"
	"time"

	"github.com/michaelquigley/df/dd"
)

// Config represents the top-level hub configuration.
type Config struct {
	Hub        HubConfig
	Backends   []BackendConfig
	Composites []CompositeConfig
}

// HubConfig contains settings for the hub itself.
type HubConfig struct {
	Name       string
	Version    string
	Connection ConnectionConfig
	// RefreshInterval re-syncs backend catalogs while serving; zero disables it.
	RefreshInterval time.Duration
}

// ConnectionConfig defines connection, retry, and call timeout behavior.
type ConnectionConfig struct {
	ConnectTimeout  time.Duration
	CallTimeout     time.Duration
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// BackendConfig defines a single backend MCP server.
type BackendConfig struct {
	Name      string
	Transport TransportConfig
	Tools     ExposureConfig
	// EnvVars rewrites ${NAME} placeholders in call arguments and masks the
	// values back out of results.
	EnvVars []EnvVarConfig
}

// TransportConfig specifies how to connect to a backend.
type TransportConfig struct {
	Type string
	// stdio transport fields
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	// sse and http transport fields
	Endpoint string
}

// ExposureConfig declares which backend tools are visible and under what
// public names. a non-empty Exposed list is authoritative: tools absent from
// it do not exist and Hidden is ignored. with no Exposed list, Hidden
// subtracts from the full catalog.
type ExposureConfig struct {
	Exposed []ExposedTool
	Hidden  []string
}

// ExposedTool admits one backend tool, optionally renaming it.
type ExposedTool struct {
	Original string
	// Exposed is the public name; empty keeps the original name.
	Exposed string
}

// EnvVarConfig binds a placeholder name to the value substituted into calls.
type EnvVarConfig struct {
	Name  string
	Value string
}

// CompositeConfig declares a synthetic tool that dispatches to subtools on
// the configured backends.
type CompositeConfig struct {
	Name        string
	Description string
	Subtools    []CompositeServerConfig
}

// CompositeServerConfig groups the subtools of one backend under a composite.
type CompositeServerConfig struct {
	Server string
	Tools  []SubtoolConfig
}

// SubtoolConfig names one callable subtool, optionally overriding the
// description documented for it.
type SubtoolConfig struct {
	Name        string
	Description string
}

// DefaultConfig returns a Config with all defaults pre-populated.
func DefaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			Name:    "mcp-hub",
			Version: "1.0.0",
			Connection: ConnectionConfig{
				ConnectTimeout:  30 * time.Second,
				CallTimeout:     60 * time.Second,
				ConnectAttempts: 3,
				ConnectDelay:    2 * time.Second,
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file, merging into defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := dd.MergeYAMLFile(cfg, path); err != nil {
		return nil, &ConfigError{Field: "file", Message: fmt.Sprintf("failed to load '%s': %v", path, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return &ConfigError{Field: "backends", Message: "at least one backend is required"}
	}
	if c.Hub.Connection.ConnectAttempts < 1 {
		return &ConfigError{Field: "hub.connection.connect_attempts", Message: "must be at least 1"}
	}

	seen := make(map[string]bool)
	for i, b := range c.Backends {
		if b.Name == "" {
			return &ConfigError{
				Field:   fmt.Sprintf("backends[%d].name", i),
				Message: "backend name is required",
			}
		}
		if seen[b.Name] {
			return &ConfigError{
				Field:   fmt.Sprintf("backends[%d].name", i),
				Message: fmt.Sprintf("duplicate backend name '%s'", b.Name),
			}
		}
		seen[b.Name] = true

		if err := b.Transport.validate(i); err != nil {
			return err
		}

		for j, e := range b.Tools.Exposed {
			if e.Original == "" {
				return &ConfigError{
					Field:   fmt.Sprintf("backends[%d].tools.exposed[%d].original", i, j),
					Message: "original tool name is required",
				}
			}
		}
		for j, hidden := range b.Tools.Hidden {
			if hidden == "" {
				return &ConfigError{
					Field:   fmt.Sprintf("backends[%d].tools.hidden[%d]", i, j),
					Message: "hidden tool name must not be empty",
				}
			}
		}
		for j, ev := range b.EnvVars {
			if ev.Name == "" {
				return &ConfigError{
					Field:   fmt.Sprintf("backends[%d].env_vars[%d].name", i, j),
					Message: "env var name is required",
				}
			}
		}
	}

	seenComposites := make(map[string]bool)
	for i, comp := range c.Composites {
		if comp.Name == "" {
			return &ConfigError{
				Field:   fmt.Sprintf("composites[%d].name", i),
				Message: "composite name is required",
			}
		}
		if seenComposites[comp.Name] {
			return &ConfigError{
				Field:   fmt.Sprintf("composites[%d].name", i),
				Message: fmt.Sprintf("duplicate composite name '%s'", comp.Name),
			}
		}
		seenComposites[comp.Name] = true

		for j, srv := range comp.Subtools {
			if srv.Server == "" {
				return &ConfigError{
					Field:   fmt.Sprintf("composites[%d].subtools[%d].server", i, j),
					Message: "server name is required",
				}
			}
			for k, sub := range srv.Tools {
				if sub.Name == "" {
					return &ConfigError{
						Field:   fmt.Sprintf("composites[%d].subtools[%d].tools[%d].name", i, j, k),
						Message: "subtool name is required",
					}
				}
			}
		}
	}

	return nil
}

func (t *TransportConfig) validate(i int) error {
	if t.Type == "" {
		return &ConfigError{
			Field:   fmt.Sprintf("backends[%d].transport.type", i),
			Message: "transport type is required",
		}
	}
	switch t.Type {
	case "stdio":
		if t.Command == "" {
			return &ConfigError{
				Field:   fmt.Sprintf("backends[%d].transport.command", i),
				Message: "command is required for stdio transport",
			}
		}
	case "sse", "http":
		if t.Endpoint == "" {
			return &ConfigError{
				Field:   fmt.Sprintf("backends[%d].transport.endpoint", i),
				Message: fmt.Sprintf("endpoint is required for %s transport", t.Type),
			}
		}
	default:
		return &ConfigError{
			Field:   fmt.Sprintf("backends[%d].transport.type", i),
			Message: fmt.Sprintf("unsupported transport type '%s', must be 'stdio', 'sse', or 'http'", t.Type),
		}
	}
	return nil
}
