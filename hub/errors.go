package hub

import "fmt"

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in '%s': %s", e.Field, e.Message)
}

// UnknownToolError indicates a requested tool name has no route.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool '%s' not found", e.Name)
}

// UnknownResourceError indicates a requested resource URI has no route.
type UnknownResourceError struct {
	URI string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("resource '%s' not found", e.URI)
}

// UnknownPromptError indicates a requested prompt name has no route.
type UnknownPromptError struct {
	Name string
}

func (e *UnknownPromptError) Error() string {
	return fmt.Sprintf("prompt '%s' not found", e.Name)
}

// UnknownSubtoolError indicates a composite call named a server and tool
// pair that was never registered under the composite.
type UnknownSubtoolError struct {
	Composite string
	Server    string
	Tool      string
}

func (e *UnknownSubtoolError) Error() string {
	return fmt.Sprintf("composite '%s' has no subtool '%s' on server '%s'", e.Composite, e.Tool, e.Server)
}

// InvalidArgumentsError indicates a malformed argument envelope.
type InvalidArgumentsError struct {
	Name   string
	Field  string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for '%s': field '%s' %s", e.Name, e.Field, e.Reason)
}

// ToolNotExposedError indicates a call to a tool absent from a backend's
// exposure list.
type ToolNotExposedError struct {
	Backend string
	Tool    string
}

func (e *ToolNotExposedError) Error() string {
	return fmt.Sprintf("tool '%s' is not exposed by backend '%s'", e.Tool, e.Backend)
}

// ToolHiddenError indicates a call to a tool the backend hides.
type ToolHiddenError struct {
	Backend string
	Tool    string
}

func (e *ToolHiddenError) Error() string {
	return fmt.Sprintf("tool '%s' is hidden on backend '%s'", e.Tool, e.Backend)
}

// BackendCallError represents a failure while talking to a backend server.
type BackendCallError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendCallError) Error() string {
	return fmt.Sprintf("backend '%s' %s error: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendCallError) Unwrap() error {
	return e.Err
}
