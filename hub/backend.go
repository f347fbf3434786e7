package hub

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hubworks/mcp-hub/envsub"
)

// Session is the slice of mcp.ClientSession the hub consumes. it exists so
// routing and aggregation can run against in-process backends.
type Session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	ListResources(ctx context.Context, params *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error)
	ListResourceTemplates(ctx context.Context, params *mcp.ListResourceTemplatesParams) (*mcp.ListResourceTemplatesResult, error)
	ListPrompts(ctx context.Context, params *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, params *mcp.GetPromptParams) (*mcp.GetPromptResult, error)
	ReadResource(ctx context.Context, params *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error)
	Close() error
}

// BackendHandle pairs a live session with the per-backend routing state: the
// rename table, the exposure policy, and the env substitution rules. a fresh
// handle with a fresh connection id is minted on every connect or restart.
type BackendHandle struct {
	name      string
	connID    string
	session   Session
	remap     map[string]string
	policy    *ExposureConfig
	env       envsub.Rules
	closeOnce sync.Once
	closeErr  error
}

// NewBackendHandle wraps a connected session with the backend's config. the
// policy is referenced, not copied, so exposure edits take effect on the
// next catalog pass; the rename table is fixed here.
func NewBackendHandle(cfg *BackendConfig, session Session) *BackendHandle {
	var rules envsub.Rules
	for _, ev := range cfg.EnvVars {
		rules = append(rules, envsub.Rule{Name: ev.Name, Value: ev.Value})
	}
	return &BackendHandle{
		name:    cfg.Name,
		connID:  uuid.New().String(),
		session: session,
		remap:   cfg.Tools.remap(),
		policy:  &cfg.Tools,
		env:     rules,
	}
}

// Name returns the backend's configured name.
func (b *BackendHandle) Name() string {
	return b.name
}

// ConnID returns the unique id minted for this connection.
func (b *BackendHandle) ConnID() string {
	return b.connID
}

// Policy returns the backend's exposure policy.
func (b *BackendHandle) Policy() *ExposureConfig {
	return b.policy
}

// EnvRules returns the backend's env substitution rules.
func (b *BackendHandle) EnvRules() envsub.Rules {
	return b.env
}

// OriginalName translates a public tool name back to the backend's own name.
func (b *BackendHandle) OriginalName(public string) string {
	if original, ok := b.remap[public]; ok {
		return original
	}
	return public
}

// Close shuts the session down. safe to call more than once; later calls
// return the first result.
func (b *BackendHandle) Close() error {
	b.closeOnce.Do(func() {
		if b.session != nil {
			b.closeErr = b.session.Close()
		}
	})
	return b.closeErr
}

// ListTools lists the backend's tools.
func (b *BackendHandle) ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	return b.session.ListTools(ctx, params)
}

// ListResources lists the backend's resources.
func (b *BackendHandle) ListResources(ctx context.Context, params *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error) {
	return b.session.ListResources(ctx, params)
}

// ListResourceTemplates lists the backend's resource templates.
func (b *BackendHandle) ListResourceTemplates(ctx context.Context, params *mcp.ListResourceTemplatesParams) (*mcp.ListResourceTemplatesResult, error) {
	return b.session.ListResourceTemplates(ctx, params)
}

// ListPrompts lists the backend's prompts.
func (b *BackendHandle) ListPrompts(ctx context.Context, params *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error) {
	return b.session.ListPrompts(ctx, params)
}

// CallTool invokes a tool on the backend by its original name.
func (b *BackendHandle) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	return b.session.CallTool(ctx, params)
}

// GetPrompt fetches a prompt from the backend.
func (b *BackendHandle) GetPrompt(ctx context.Context, params *mcp.GetPromptParams) (*mcp.GetPromptResult, error) {
	return b.session.GetPrompt(ctx, params)
}

// ReadResource reads a resource from the backend.
func (b *BackendHandle) ReadResource(ctx context.Context, params *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error) {
	return b.session.ReadResource(ctx, params)
}

// ConnectionSet owns the live backend handles and the connect and restart
// machinery that mints them.
type ConnectionSet struct {
	config  *Config
	mu      sync.RWMutex
	handles map[string]*BackendHandle
	order   []string
}

// NewConnectionSet creates a manager for the configured backends.
func NewConnectionSet(cfg *Config) *ConnectionSet {
	return &ConnectionSet{
		config:  cfg,
		handles: make(map[string]*BackendHandle),
	}
}

// Connect establishes connections to all configured backends. a backend that
// cannot be reached after the configured retries is logged and skipped; the
// hub serves whatever subset came up.
func (s *ConnectionSet) Connect(ctx context.Context) error {
	for i := range s.config.Backends {
		bcfg := &s.config.Backends[i]
		handle, err := s.connectWithRetry(ctx, bcfg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			dl.Log().With("backend", bcfg.Name).With("error", err).Error("backend unavailable, continuing without it")
			continue
		}
		s.put(bcfg.Name, handle)
		dl.Log().With("backend", bcfg.Name).With("conn_id", handle.ConnID()).Info("connected to backend")
	}
	return nil
}

// connectWithRetry dials a backend under the configured retry budget.
func (s *ConnectionSet) connectWithRetry(ctx context.Context, cfg *BackendConfig) (*BackendHandle, error) {
	conn := s.config.Hub.Connection
	operation := func() (*BackendHandle, error) {
		return s.connect(ctx, cfg)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(conn.ConnectDelay)),
		backoff.WithMaxTries(uint(conn.ConnectAttempts)),
		backoff.WithMaxElapsedTime(conn.ConnectTimeout),
		backoff.WithNotify(func(err error, d time.Duration) {
			dl.Log().With("backend", cfg.Name).With("error", err).With("retry_in", d).Warn("backend connect failed, retrying")
		}),
	)
}

// connect dials a backend once over its configured transport.
func (s *ConnectionSet) connect(ctx context.Context, cfg *BackendConfig) (*BackendHandle, error) {
	client := mcp.NewClient(
		&mcp.Implementation{
			Name:    s.config.Hub.Name,
			Version: s.config.Hub.Version,
		},
		nil,
	)

	transport, err := s.transportFor(ctx, &cfg.Transport)
	if err != nil {
		return nil, err
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}

	return NewBackendHandle(cfg, session), nil
}

// transportFor builds the client transport for a backend config.
func (s *ConnectionSet) transportFor(ctx context.Context, tc *TransportConfig) (mcp.Transport, error) {
	switch tc.Type {
	case "stdio":
		cmd := exec.CommandContext(ctx, tc.Command, tc.Args...)
		if tc.WorkingDir != "" {
			cmd.Dir = tc.WorkingDir
		}
		cmd.Env = os.Environ()
		for k, v := range tc.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: tc.Endpoint}, nil
	case "http":
		return &mcp.StreamableClientTransport{Endpoint: tc.Endpoint}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type '%s'", tc.Type)
	}
}

// Adopt registers an externally established session under the given backend
// config. in-process backends connect this way.
func (s *ConnectionSet) Adopt(cfg *BackendConfig, session Session) *BackendHandle {
	handle := NewBackendHandle(cfg, session)
	s.put(cfg.Name, handle)
	return handle
}

// Restart tears down the named backend's connection and dials a fresh one,
// returning the replacement handle.
func (s *ConnectionSet) Restart(ctx context.Context, name string) (*BackendHandle, error) {
	var bcfg *BackendConfig
	for i := range s.config.Backends {
		if s.config.Backends[i].Name == name {
			bcfg = &s.config.Backends[i]
			break
		}
	}
	if bcfg == nil {
		return nil, fmt.Errorf("backend '%s' is not configured", name)
	}

	s.mu.RLock()
	old := s.handles[name]
	s.mu.RUnlock()
	if old != nil {
		if err := old.Close(); err != nil {
			dl.Log().With("backend", name).With("error", err).Warn("error closing backend session")
		}
	}

	handle, err := s.connectWithRetry(ctx, bcfg)
	if err != nil {
		s.drop(name)
		return nil, &BackendCallError{Backend: name, Op: "restart", Err: err}
	}

	s.put(name, handle)
	dl.Log().With("backend", name).With("conn_id", handle.ConnID()).Info("restarted backend")
	return handle, nil
}

// Handle returns the live handle for a backend name.
func (s *ConnectionSet) Handle(name string) (*BackendHandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[name]
	return h, ok
}

// LiveHandles returns the connected handles in connection order.
func (s *ConnectionSet) LiveHandles() []*BackendHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*BackendHandle, 0, len(s.order))
	for _, name := range s.order {
		if h, ok := s.handles[name]; ok {
			out = append(out, h)
		}
	}
	return out
}

// ConfiguredNames returns every configured backend name in order.
func (s *ConnectionSet) ConfiguredNames() []string {
	names := make([]string, 0, len(s.config.Backends))
	for i := range s.config.Backends {
		names = append(names, s.config.Backends[i].Name)
	}
	return names
}

// Close closes all backend connections.
func (s *ConnectionSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for name, h := range s.handles {
		if err := h.Close(); err != nil {
			dl.Log().With("backend", name).With("error", err).Warn("error closing backend session")
			lastErr = err
		}
	}
	return lastErr
}

func (s *ConnectionSet) put(name string, h *BackendHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handles[name]; !exists {
		s.order = append(s.order, name)
	}
	s.handles[name] = h
}

func (s *ConnectionSet) drop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handles[name]; !exists {
		return
	}
	delete(s.handles, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
