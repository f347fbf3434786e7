package hub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hubworks/mcp-hub/envsub"
)

// RestartPromptName is the synthetic prompt the hub itself serves.
const RestartPromptName = "restart_server"

// Restarter reconnects named backends. the connection set implements it; the
// router holds the narrow interface so prompt-driven restarts can be
// exercised without real connections.
type Restarter interface {
	Restart(ctx context.Context, name string) (*BackendHandle, error)
	ConfiguredNames() []string
}

// Router resolves public names through the identity map and forwards calls
// to the owning backend.
type Router struct {
	ids         *IdentityMap
	restarter   Restarter
	callTimeout time.Duration
}

// NewRouter creates a router over the identity map.
func NewRouter(ids *IdentityMap, restarter Restarter, callTimeout time.Duration) *Router {
	return &Router{ids: ids, restarter: restarter, callTimeout: callTimeout}
}

// CallTool routes a call by public tool name. composite names detour through
// the dispatcher; everything else translates back to the backend's original
// name, passes the exposure check, and forwards with env substitution
// applied around the call.
func (r *Router) CallTool(ctx context.Context, name string, args map[string]any, meta mcp.Meta) (*mcp.CallToolResult, error) {
	dl.Log().With("tool", name).Debug("routing tool call")

	handle, ok := r.ids.Get(KindTool, name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	if handle == r.ids.Dispatcher() {
		return r.callComposite(ctx, name, args, meta)
	}

	original := handle.OriginalName(name)
	if err := handle.Policy().checkCallable(handle.Name(), original); err != nil {
		return nil, err
	}

	rules := handle.EnvRules()
	callCtx, cancel := r.withCallTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := handle.CallTool(callCtx, &mcp.CallToolParams{
		Name:      original,
		Arguments: rules.ExpandMap(args),
		Meta:      meta,
	})
	duration := time.Since(start)
	if err != nil {
		dl.Log().
			With("tool", name).
			With("backend", handle.Name()).
			With("args", summarizeArgs(args)).
			With("duration_ms", duration.Milliseconds()).
			With("error", err).
			Error("tool call failed")
		return nil, &BackendCallError{Backend: handle.Name(), Op: "call_tool", Err: err}
	}

	unexpandResult(rules, result)
	dl.Log().
		With("tool", name).
		With("backend", handle.Name()).
		With("args", summarizeArgs(args)).
		With("duration_ms", duration.Milliseconds()).
		Debug("tool call completed")
	return result, nil
}

// callComposite validates the dispatch envelope and forwards to the subtool
// the composite registered. composite traffic skips env substitution and the
// exposure check: subkeys are minted from config, nothing else resolves.
func (r *Router) callComposite(ctx context.Context, composite string, args map[string]any, meta mcp.Meta) (*mcp.CallToolResult, error) {
	server, err := stringField(composite, args, "server")
	if err != nil {
		return nil, err
	}
	tool, err := stringField(composite, args, "tool")
	if err != nil {
		return nil, err
	}

	handle, ok := r.ids.Get(KindComposite, CompositeKey(composite, server, tool))
	if !ok {
		return nil, &UnknownSubtoolError{Composite: composite, Server: server, Tool: tool}
	}

	subArgs := args["args"]
	if subArgs == nil {
		subArgs = map[string]any{}
	}

	callCtx, cancel := r.withCallTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := handle.CallTool(callCtx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: subArgs,
		Meta:      meta,
	})
	duration := time.Since(start)
	if err != nil {
		dl.Log().
			With("composite", composite).
			With("server", server).
			With("tool", tool).
			With("args", summarizeArgs(subArgs)).
			With("duration_ms", duration.Milliseconds()).
			With("error", err).
			Error("composite call failed")
		return nil, &BackendCallError{Backend: server, Op: "call_subtool", Err: err}
	}
	dl.Log().
		With("composite", composite).
		With("server", server).
		With("tool", tool).
		With("duration_ms", duration.Milliseconds()).
		Debug("composite call completed")
	return result, nil
}

// ReadResource routes a resource read by URI.
func (r *Router) ReadResource(ctx context.Context, uri string, meta mcp.Meta) (*mcp.ReadResourceResult, error) {
	handle, ok := r.ids.Get(KindResource, uri)
	if !ok {
		return nil, &UnknownResourceError{URI: uri}
	}

	callCtx, cancel := r.withCallTimeout(ctx)
	defer cancel()

	result, err := handle.ReadResource(callCtx, &mcp.ReadResourceParams{URI: uri, Meta: meta})
	if err != nil {
		dl.Log().With("uri", uri).With("backend", handle.Name()).With("error", err).Error("resource read failed")
		return nil, &BackendCallError{Backend: handle.Name(), Op: "read_resource", Err: err}
	}
	return result, nil
}

// GetPrompt routes a prompt request by name. the synthetic restart prompt is
// intercepted before the prompt key space is consulted, so a backend prompt
// of the same name is shadowed.
func (r *Router) GetPrompt(ctx context.Context, name string, args map[string]string, meta mcp.Meta) (*mcp.GetPromptResult, error) {
	if name == RestartPromptName {
		return r.restartServers(ctx, args)
	}

	handle, ok := r.ids.Get(KindPrompt, name)
	if !ok {
		return nil, &UnknownPromptError{Name: name}
	}

	callCtx, cancel := r.withCallTimeout(ctx)
	defer cancel()

	result, err := handle.GetPrompt(callCtx, &mcp.GetPromptParams{Name: name, Arguments: args, Meta: meta})
	if err != nil {
		dl.Log().With("prompt", name).With("backend", handle.Name()).With("error", err).Error("prompt fetch failed")
		return nil, &BackendCallError{Backend: handle.Name(), Op: "get_prompt", Err: err}
	}
	return result, nil
}

// restartServers implements the synthetic restart prompt: it reconnects one
// backend (or all of them), rewires the identity map, and reports a
// per-backend tally.
func (r *Router) restartServers(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	target := args["server"]
	if target == "" {
		return nil, &InvalidArgumentsError{Name: RestartPromptName, Field: "server", Reason: "is required"}
	}

	names := []string{target}
	if target == "all" {
		names = r.restarter.ConfiguredNames()
	}

	var tally strings.Builder
	for _, name := range names {
		handle, err := r.restarter.Restart(ctx, name)
		if err != nil {
			dl.Log().With("backend", name).With("error", err).Error("restart failed")
			fmt.Fprintf(&tally, "%s: restart failed: %v\n", name, err)
			continue
		}
		r.ids.ReplaceBackend(name, handle)
		fmt.Fprintf(&tally, "%s: restarted\n", name)
	}

	return &mcp.GetPromptResult{
		Description: "backend restart report",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: tally.String()},
			},
		},
	}, nil
}

// restartPrompt describes the synthetic restart prompt.
func restartPrompt() *mcp.Prompt {
	return &mcp.Prompt{
		Name:        RestartPromptName,
		Description: "Restart a backend MCP server by name, or pass \"all\" to restart every configured backend",
		Arguments: []*mcp.PromptArgument{
			{
				Name:        "server",
				Description: "backend name, or \"all\"",
				Required:    true,
			},
		},
	}
}

// stringField extracts a required string field from a composite envelope.
func stringField(composite string, args map[string]any, field string) (string, error) {
	v, ok := args[field]
	if !ok {
		return "", &InvalidArgumentsError{Name: composite, Field: field, Reason: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidArgumentsError{Name: composite, Field: field, Reason: "must be a string"}
	}
	return s, nil
}

// unexpandResult masks env substitution values back out of text content.
func unexpandResult(rules envsub.Rules, result *mcp.CallToolResult) {
	if result == nil || len(rules) == 0 {
		return
	}
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			tc.Text = rules.Unexpand(tc.Text)
		}
	}
}

// withCallTimeout derives the per-call deadline context.
func (r *Router) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.callTimeout)
}
