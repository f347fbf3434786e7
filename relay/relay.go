// Package relay connects to a remote MCP endpoint and re-serves it locally,
// so stdio-only MCP clients can talk to a networked hub or bridge.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
)

// Config points the relay at a remote endpoint.
type Config struct {
	Endpoint string
	// Transport selects the client transport: "http" for streamable HTTP
	// (the default) or "sse".
	Transport string
}

// Validate ensures the config is valid.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	switch c.Transport {
	case "", "http", "sse":
		return nil
	default:
		return errors.Errorf("unsupported transport '%s', must be 'http' or 'sse'", c.Transport)
	}
}

// Relay proxies a remote MCP server onto a local front server.
type Relay struct {
	cfg     *Config
	client  *mcp.Client
	session *mcp.ClientSession
	server  *mcp.Server
}

// New creates a Relay for the given endpoint.
func New(cfg *Config) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Relay{cfg: cfg}, nil
}

// Start connects to the remote endpoint and mirrors its tools, prompts, and
// resources onto the front server.
func (r *Relay) Start(ctx context.Context) error {
	dl.Log().With("endpoint", r.cfg.Endpoint).Debug("starting relay")

	r.client = mcp.NewClient(
		&mcp.Implementation{Name: "mcp-hub-relay", Version: "1.0.0"},
		nil,
	)

	session, err := r.client.Connect(ctx, r.transport(), nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to '%s'", r.cfg.Endpoint)
	}
	r.session = session
	dl.Log().Debug("connected to remote endpoint")

	server := mcp.NewServer(
		&mcp.Implementation{Name: "mcp-hub-relay", Version: "1.0.0"},
		nil,
	)
	if err := r.mirrorTools(ctx, server); err != nil {
		r.session.Close()
		return err
	}
	r.mirrorPrompts(ctx, server)
	r.mirrorResources(ctx, server)
	r.server = server

	dl.Log().Debug("relay started")
	return nil
}

// transport builds the client transport for the configured endpoint.
func (r *Relay) transport() mcp.Transport {
	if r.cfg.Transport == "sse" {
		return &mcp.SSEClientTransport{Endpoint: r.cfg.Endpoint}
	}
	return &mcp.StreamableClientTransport{Endpoint: r.cfg.Endpoint}
}

// mirrorTools registers a forwarder for every remote tool, draining the
// paginated list.
func (r *Relay) mirrorTools(ctx context.Context, server *mcp.Server) error {
	count := 0
	res, err := r.session.ListTools(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to list tools")
	}
	for {
		for _, tool := range res.Tools {
			server.AddTool(tool, r.forwardTool(tool.Name))
			count++
		}
		if res.NextCursor == "" {
			break
		}
		res, err = r.session.ListTools(ctx, &mcp.ListToolsParams{Cursor: res.NextCursor})
		if err != nil {
			return errors.Wrap(err, "failed to list tools")
		}
	}
	dl.Log().With("tool_count", count).Debug("mirrored tools from remote")
	return nil
}

// mirrorPrompts registers forwarders for the remote prompts. a remote that
// serves no prompts is fine.
func (r *Relay) mirrorPrompts(ctx context.Context, server *mcp.Server) {
	res, err := r.session.ListPrompts(ctx, nil)
	if err != nil {
		dl.Log().With("error", err).Debug("remote serves no prompts")
		return
	}
	for _, prompt := range res.Prompts {
		server.AddPrompt(prompt, r.forwardPrompt(prompt.Name))
	}
	dl.Log().With("prompt_count", len(res.Prompts)).Debug("mirrored prompts from remote")
}

// mirrorResources registers forwarders for the remote resources. a remote
// that serves no resources is fine.
func (r *Relay) mirrorResources(ctx context.Context, server *mcp.Server) {
	res, err := r.session.ListResources(ctx, nil)
	if err != nil {
		dl.Log().With("error", err).Debug("remote serves no resources")
		return
	}
	for _, resource := range res.Resources {
		server.AddResource(resource, r.forwardResource(resource.URI))
	}
	dl.Log().With("resource_count", len(res.Resources)).Debug("mirrored resources from remote")
}

// forwardTool forwards one tool's calls to the remote.
func (r *Relay) forwardTool(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := &mcp.CallToolParams{Name: name, Arguments: map[string]any{}}
		if len(req.Params.Arguments) > 0 {
			params.Arguments = req.Params.Arguments
		}
		result, err := r.session.CallTool(ctx, params)
		if err != nil {
			dl.Log().With("tool", name).With("error", err).Debug("tool call failed")
			return nil, err
		}
		return result, nil
	}
}

// forwardPrompt forwards one prompt's requests to the remote.
func (r *Relay) forwardPrompt(name string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return r.session.GetPrompt(ctx, &mcp.GetPromptParams{
			Name:      name,
			Arguments: req.Params.Arguments,
		})
	}
}

// forwardResource forwards one resource's reads to the remote.
func (r *Relay) forwardResource(uri string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return r.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	}
}

// Server returns the mirrored front server. valid after Start().
func (r *Relay) Server() *mcp.Server {
	return r.server
}

// Run serves the mirrored server on stdio. blocks until the context ends.
func (r *Relay) Run(ctx context.Context) error {
	if r.server == nil {
		return errors.New("relay not started, call Start() first")
	}
	dl.Log().Debug("serving mcp on stdio")
	return r.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPOptions configures RunHTTP.
type HTTPOptions struct {
	Address      string
	Stateless    bool
	JSONResponse bool
}

// RunHTTP re-serves the mirrored server over streamable HTTP, converting an
// SSE-only remote for streamable-only clients.
func (r *Relay) RunHTTP(ctx context.Context, opts *HTTPOptions) error {
	if r.server == nil {
		return errors.New("relay not started, call Start() first")
	}
	if opts == nil {
		opts = &HTTPOptions{Address: "127.0.0.1:8080"}
	}

	dl.Log().With("address", opts.Address).Debug("serving mcp on http")

	handler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return r.server },
		&mcp.StreamableHTTPOptions{
			Stateless:    opts.Stateless,
			JSONResponse: opts.JSONResponse,
		},
	)
	httpServer := &http.Server{Addr: opts.Address, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the relay.
func (r *Relay) Stop() error {
	dl.Log().Debug("stopping relay")
	if r.session != nil {
		if err := r.session.Close(); err != nil {
			dl.Log().With("error", err).Debug("error closing session")
			return err
		}
	}
	return nil
}
