package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server fronts the hub with an MCP server, keeping the SDK's registry in
// sync with the aggregated catalogs so clients see list change
// notifications.
type Server struct {
	mcpServer *mcp.Server
	hub       *Hub

	mu        sync.Mutex
	tools     map[string]string
	prompts   map[string]string
	resources map[string]string
	templates map[string]string
}

// NewServer creates the MCP-facing server for a hub.
func NewServer(h *Hub) *Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    h.config.Hub.Name,
			Version: h.config.Hub.Version,
		},
		&mcp.ServerOptions{
			HasTools:     true,
			HasPrompts:   true,
			HasResources: true,
		},
	)
	return &Server{
		mcpServer: mcpServer,
		hub:       h,
		tools:     make(map[string]string),
		prompts:   make(map[string]string),
		resources: make(map[string]string),
		templates: make(map[string]string),
	}
}

// Sync re-aggregates every catalog kind and reconciles the SDK registry to
// match. entries are fingerprinted so unchanged ones are not re-registered.
func (s *Server) Sync(ctx context.Context) {
	s.syncTools(ctx)
	s.syncPrompts(ctx)
	s.syncResources(ctx)
	s.syncResourceTemplates(ctx)
}

func (s *Server) syncTools(ctx context.Context) {
	res := s.hub.ListTools(ctx, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[string]*mcp.Tool, len(res.Tools))
	for _, t := range res.Tools {
		desired[t.Name] = t
	}

	var stale []string
	for name := range s.tools {
		if _, ok := desired[name]; !ok {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		s.mcpServer.RemoveTools(stale...)
		for _, name := range stale {
			delete(s.tools, name)
		}
	}

	for name, tool := range desired {
		t := *tool
		if t.InputSchema == nil {
			// the sdk requires a schema on every registered tool
			t.InputSchema = map[string]any{"type": "object"}
		}
		fp := fingerprint(&t)
		if s.tools[name] == fp && fp != "" {
			continue
		}
		s.mcpServer.AddTool(&t, s.toolHandler(name))
		s.tools[name] = fp
	}
	dl.Log().With("count", len(desired)).Debug("synced tool registry")
}

func (s *Server) syncPrompts(ctx context.Context) {
	res := s.hub.ListPrompts(ctx, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[string]*mcp.Prompt, len(res.Prompts))
	for _, p := range res.Prompts {
		desired[p.Name] = p
	}

	var stale []string
	for name := range s.prompts {
		if _, ok := desired[name]; !ok {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		s.mcpServer.RemovePrompts(stale...)
		for _, name := range stale {
			delete(s.prompts, name)
		}
	}

	for name, prompt := range desired {
		p := *prompt
		fp := fingerprint(&p)
		if s.prompts[name] == fp && fp != "" {
			continue
		}
		s.mcpServer.AddPrompt(&p, s.promptHandler(name))
		s.prompts[name] = fp
	}
}

func (s *Server) syncResources(ctx context.Context) {
	res := s.hub.ListResources(ctx, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[string]*mcp.Resource, len(res.Resources))
	for _, r := range res.Resources {
		desired[r.URI] = r
	}

	var stale []string
	for uri := range s.resources {
		if _, ok := desired[uri]; !ok {
			stale = append(stale, uri)
		}
	}
	if len(stale) > 0 {
		s.mcpServer.RemoveResources(stale...)
		for _, uri := range stale {
			delete(s.resources, uri)
		}
	}

	for uri, resource := range desired {
		r := *resource
		fp := fingerprint(&r)
		if s.resources[uri] == fp && fp != "" {
			continue
		}
		s.mcpServer.AddResource(&r, s.resourceHandler())
		s.resources[uri] = fp
	}
}

func (s *Server) syncResourceTemplates(ctx context.Context) {
	res := s.hub.ListResourceTemplates(ctx, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[string]*mcp.ResourceTemplate, len(res.ResourceTemplates))
	for _, t := range res.ResourceTemplates {
		desired[t.URITemplate] = t
	}

	var stale []string
	for uriTemplate := range s.templates {
		if _, ok := desired[uriTemplate]; !ok {
			stale = append(stale, uriTemplate)
		}
	}
	if len(stale) > 0 {
		s.mcpServer.RemoveResourceTemplates(stale...)
		for _, uriTemplate := range stale {
			delete(s.templates, uriTemplate)
		}
	}

	for uriTemplate, template := range desired {
		t := *template
		fp := fingerprint(&t)
		if s.templates[uriTemplate] == fp && fp != "" {
			continue
		}
		s.mcpServer.AddResourceTemplate(&t, s.resourceHandler())
		s.templates[uriTemplate] = fp
	}
}

// toolHandler creates the routing handler for one registered tool name.
func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						&mcp.TextContent{Text: fmt.Sprintf("failed to parse arguments: %v", err)},
					},
					IsError: true,
				}, nil
			}
		}
		return s.hub.CallTool(ctx, name, args, req.Params.Meta)
	}
}

// promptHandler creates the routing handler for one registered prompt name.
// the restart prompt changes the connection set, so a successful run is
// followed by an immediate registry sync.
func (s *Server) promptHandler(name string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		result, err := s.hub.GetPrompt(ctx, name, req.Params.Arguments, req.Params.Meta)
		if err != nil {
			return nil, err
		}
		if name == RestartPromptName {
			s.Sync(ctx)
		}
		return result, nil
	}
}

// resourceHandler routes reads by request URI; the same handler serves
// listed resources and template-registered reads.
func (s *Server) resourceHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		result, err := s.hub.ReadResource(ctx, req.Params.URI, req.Params.Meta)
		if err != nil {
			var unknown *UnknownResourceError
			if errors.As(err, &unknown) {
				return nil, mcp.ResourceNotFoundError(req.Params.URI)
			}
			return nil, err
		}
		return result, nil
	}
}

// Run serves the hub on the given transport until ctx ends.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// MCPServer returns the underlying MCP server for advanced usage.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// fingerprint serializes a catalog entry for change detection. an empty
// fingerprint always re-registers.
func fingerprint(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
