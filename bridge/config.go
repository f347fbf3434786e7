package bridge

import "fmt"

// Config describes the single stdio MCP server the bridge exposes and the
// address it listens on.
type Config struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	// Address is the TCP bind address; ":0" picks an ephemeral port and the
	// bound endpoint is announced on stdout.
	Address string
}

// Validate ensures the config is valid.
func (c *Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}
