package hub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Hub orchestrates backend connections, the identity map, catalog
// aggregation, composite tools, and the MCP server front.
type Hub struct {
	config   *Config
	ids      *IdentityMap
	backends *ConnectionSet
	agg      *Aggregator
	builder  *CompositeBuilder
	router   *Router
	server   *Server
}

// New creates a new Hub from configuration.
func New(cfg *Config) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Hub{
		config:   cfg,
		ids:      NewIdentityMap(),
		backends: NewConnectionSet(cfg),
	}
	h.agg = NewAggregator(h.ids)
	h.builder = NewCompositeBuilder(h.ids)
	h.router = NewRouter(h.ids, h.backends, cfg.Hub.Connection.CallTimeout)
	return h, nil
}

// NewFromFile creates a new Hub by loading configuration from a YAML file.
func NewFromFile(path string) (*Hub, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Start connects the backends, registers the live handles, and brings up
// the MCP server with a first catalog sync. backends that fail to connect
// are skipped; the hub serves with whatever came up.
func (h *Hub) Start(ctx context.Context) error {
	dl.Info("starting hub")

	if err := h.backends.Connect(ctx); err != nil {
		return err
	}
	for _, handle := range h.backends.LiveHandles() {
		h.ids.RegisterBackend(handle)
	}

	h.server = NewServer(h)
	h.server.Sync(ctx)

	dl.Log().With("backends", len(h.backends.LiveHandles())).With("tools", h.ids.Len(KindTool)).Info("hub started")
	return nil
}

// Run serves the hub on stdio until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	if h.server == nil {
		return fmt.Errorf("hub not started, call Start() first")
	}
	h.startRefresh(ctx)
	dl.Info("running hub on stdio")
	return h.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPOptions configures RunHTTP.
type HTTPOptions struct {
	Address      string
	Stateless    bool
	JSONResponse bool
}

// RunHTTP serves the hub over streamable HTTP until ctx ends.
func (h *Hub) RunHTTP(ctx context.Context, opts *HTTPOptions) error {
	if h.server == nil {
		return fmt.Errorf("hub not started, call Start() first")
	}
	h.startRefresh(ctx)

	handler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return h.server.MCPServer() },
		&mcp.StreamableHTTPOptions{
			Stateless:    opts.Stateless,
			JSONResponse: opts.JSONResponse,
		},
	)

	httpServer := &http.Server{Addr: opts.Address, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		dl.Log().With("address", opts.Address).Info("hub listening for mcp clients")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() error {
	dl.Info("stopping hub")
	return h.backends.Close()
}

// ListTools aggregates tools from every live backend, rebuilds the composite
// tools, and returns the merged catalog. aggregation never fails: an
// unreachable backend contributes nothing this cycle.
func (h *Hub) ListTools(ctx context.Context, params *mcp.ListToolsParams) *mcp.ListToolsResult {
	handles := h.backends.LiveHandles()
	entries, catalog := h.agg.Tools(ctx, handles, params)
	composites := h.builder.Build(h.config.Composites, catalog, handles)

	tools := make([]*mcp.Tool, 0, len(entries)+len(composites))
	for _, e := range entries {
		tools = append(tools, e.Tool)
	}
	for _, e := range composites {
		tools = append(tools, e.Tool)
	}
	return &mcp.ListToolsResult{Tools: tools}
}

// ListResources aggregates resources from every live backend.
func (h *Hub) ListResources(ctx context.Context, params *mcp.ListResourcesParams) *mcp.ListResourcesResult {
	entries := h.agg.Resources(ctx, h.backends.LiveHandles(), params)
	resources := make([]*mcp.Resource, 0, len(entries))
	for _, e := range entries {
		resources = append(resources, e.Resource)
	}
	return &mcp.ListResourcesResult{Resources: resources}
}

// ListResourceTemplates aggregates resource templates from every live
// backend. templates are informational; reads resolve through the resource
// key space.
func (h *Hub) ListResourceTemplates(ctx context.Context, params *mcp.ListResourceTemplatesParams) *mcp.ListResourceTemplatesResult {
	entries := h.agg.ResourceTemplates(ctx, h.backends.LiveHandles(), params)
	templates := make([]*mcp.ResourceTemplate, 0, len(entries))
	for _, e := range entries {
		templates = append(templates, e.Template)
	}
	return &mcp.ListResourceTemplatesResult{ResourceTemplates: templates}
}

// ListPrompts aggregates prompts from every live backend and appends the
// synthetic restart prompt.
func (h *Hub) ListPrompts(ctx context.Context, params *mcp.ListPromptsParams) *mcp.ListPromptsResult {
	entries := h.agg.Prompts(ctx, h.backends.LiveHandles(), params)
	prompts := make([]*mcp.Prompt, 0, len(entries)+1)
	for _, e := range entries {
		prompts = append(prompts, e.Prompt)
	}
	prompts = append(prompts, restartPrompt())
	return &mcp.ListPromptsResult{Prompts: prompts}
}

// CallTool routes a tool call by public name.
func (h *Hub) CallTool(ctx context.Context, name string, args map[string]any, meta mcp.Meta) (*mcp.CallToolResult, error) {
	return h.router.CallTool(ctx, name, args, meta)
}

// GetPrompt routes a prompt request by name.
func (h *Hub) GetPrompt(ctx context.Context, name string, args map[string]string, meta mcp.Meta) (*mcp.GetPromptResult, error) {
	return h.router.GetPrompt(ctx, name, args, meta)
}

// ReadResource routes a resource read by URI.
func (h *Hub) ReadResource(ctx context.Context, uri string, meta mcp.Meta) (*mcp.ReadResourceResult, error) {
	return h.router.ReadResource(ctx, uri, meta)
}

// Config returns the hub configuration.
func (h *Hub) Config() *Config {
	return h.config
}

// IdentityMap returns the hub's identity map for inspection.
func (h *Hub) IdentityMap() *IdentityMap {
	return h.ids
}

// Backends returns the connection set for inspection.
func (h *Hub) Backends() *ConnectionSet {
	return h.backends
}

// startRefresh re-syncs catalogs on the configured interval.
func (h *Hub) startRefresh(ctx context.Context) {
	interval := h.config.Hub.RefreshInterval
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.server.Sync(ctx)
			}
		}
	}()
}
