package hub

import (
	"context"
	"strings"

	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// discoveryConcurrency bounds the catalog fan-out across backends.
const discoveryConcurrency = 8

// ToolEntry is one aggregated catalog row: the rewritten tool plus the name
// of the backend it came from. composite entries carry an empty
// SourceBackend.
type ToolEntry struct {
	Tool          *mcp.Tool
	SourceBackend string
}

// ResourceEntry is one aggregated resource row.
type ResourceEntry struct {
	Resource      *mcp.Resource
	SourceBackend string
}

// PromptEntry is one aggregated prompt row.
type PromptEntry struct {
	Prompt        *mcp.Prompt
	SourceBackend string
}

// ResourceTemplateEntry is one aggregated resource template row.
type ResourceTemplateEntry struct {
	Template      *mcp.ResourceTemplate
	SourceBackend string
}

// RawCatalog indexes each live backend's unfiltered tools by original name.
// the composite builder reads descriptions and schemas out of it.
type RawCatalog map[string]map[string]*mcp.Tool

// Lookup finds a tool by backend name and original tool name.
func (rc RawCatalog) Lookup(server, tool string) (*mcp.Tool, bool) {
	byName, ok := rc[server]
	if !ok {
		return nil, false
	}
	t, ok := byName[tool]
	return t, ok
}

// Aggregator merges backend catalogs into entry lists and keeps the identity
// map's routing bindings current.
type Aggregator struct {
	ids *IdentityMap
}

// NewAggregator creates an aggregator over the given identity map.
func NewAggregator(ids *IdentityMap) *Aggregator {
	return &Aggregator{ids: ids}
}

// Tools rebuilds the tool key space from the live handles and returns the
// policy-filtered entries plus the raw per-backend catalog. params is passed
// through to every backend verbatim.
func (a *Aggregator) Tools(ctx context.Context, handles []*BackendHandle, params *mcp.ListToolsParams) ([]ToolEntry, RawCatalog) {
	a.ids.Clear(KindTool)

	raw := fanOut(ctx, "tools", handles, func(ctx context.Context, h *BackendHandle) ([]*mcp.Tool, error) {
		res, err := h.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		return res.Tools, nil
	})

	catalog := make(RawCatalog, len(handles))
	var entries []ToolEntry
	for i, h := range handles {
		byName := make(map[string]*mcp.Tool, len(raw[i]))
		for _, tool := range raw[i] {
			if tool == nil {
				continue
			}
			byName[tool.Name] = tool

			public, visible := h.Policy().PublicName(tool.Name)
			if !visible {
				dl.Log().With("backend", h.Name()).With("tool", tool.Name).Debug("tool filtered out by exposure policy")
				continue
			}

			exposed := *tool
			exposed.Name = public
			exposed.Description = provenanceMark(h.Name(), tool.Description)

			a.ids.Put(KindTool, public, h)
			entries = append(entries, ToolEntry{Tool: &exposed, SourceBackend: h.Name()})
		}
		catalog[h.Name()] = byName
	}
	return entries, catalog
}

// Resources rebuilds the resource key space from the live handles and
// returns the aggregated entries, keyed by URI.
func (a *Aggregator) Resources(ctx context.Context, handles []*BackendHandle, params *mcp.ListResourcesParams) []ResourceEntry {
	a.ids.Clear(KindResource)

	raw := fanOut(ctx, "resources", handles, func(ctx context.Context, h *BackendHandle) ([]*mcp.Resource, error) {
		res, err := h.ListResources(ctx, params)
		if err != nil {
			return nil, err
		}
		return res.Resources, nil
	})

	var entries []ResourceEntry
	for i, h := range handles {
		for _, resource := range raw[i] {
			if resource == nil {
				continue
			}
			marked := *resource
			marked.Description = provenanceMark(h.Name(), resource.Description)
			a.ids.Put(KindResource, resource.URI, h)
			entries = append(entries, ResourceEntry{Resource: &marked, SourceBackend: h.Name()})
		}
	}
	return entries
}

// Prompts rebuilds the prompt key space from the live handles and returns
// the aggregated entries, keyed by prompt name.
func (a *Aggregator) Prompts(ctx context.Context, handles []*BackendHandle, params *mcp.ListPromptsParams) []PromptEntry {
	a.ids.Clear(KindPrompt)

	raw := fanOut(ctx, "prompts", handles, func(ctx context.Context, h *BackendHandle) ([]*mcp.Prompt, error) {
		res, err := h.ListPrompts(ctx, params)
		if err != nil {
			return nil, err
		}
		return res.Prompts, nil
	})

	var entries []PromptEntry
	for i, h := range handles {
		for _, prompt := range raw[i] {
			if prompt == nil {
				continue
			}
			marked := *prompt
			marked.Description = provenanceMark(h.Name(), prompt.Description)
			a.ids.Put(KindPrompt, prompt.Name, h)
			entries = append(entries, PromptEntry{Prompt: &marked, SourceBackend: h.Name()})
		}
	}
	return entries
}

// ResourceTemplates returns the aggregated template entries. templates are
// display-only: no routing state is recorded, reads still resolve through
// the resource key space.
func (a *Aggregator) ResourceTemplates(ctx context.Context, handles []*BackendHandle, params *mcp.ListResourceTemplatesParams) []ResourceTemplateEntry {
	raw := fanOut(ctx, "resource_templates", handles, func(ctx context.Context, h *BackendHandle) ([]*mcp.ResourceTemplate, error) {
		res, err := h.ListResourceTemplates(ctx, params)
		if err != nil {
			return nil, err
		}
		return res.ResourceTemplates, nil
	})

	var entries []ResourceTemplateEntry
	for i, h := range handles {
		for _, template := range raw[i] {
			if template == nil {
				continue
			}
			marked := *template
			marked.Description = provenanceMark(h.Name(), template.Description)
			entries = append(entries, ResourceTemplateEntry{Template: &marked, SourceBackend: h.Name()})
		}
	}
	return entries
}

// fanOut queries every handle concurrently, preserving handle order in the
// results. a failed backend contributes an empty slot: backends that do not
// implement the method are skipped silently, anything else is logged.
func fanOut[T any](ctx context.Context, kind string, handles []*BackendHandle, fetch func(context.Context, *BackendHandle) ([]T, error)) [][]T {
	results := make([][]T, len(handles))
	var g errgroup.Group
	g.SetLimit(discoveryConcurrency)
	for i, h := range handles {
		g.Go(func() error {
			entries, err := fetch(ctx, h)
			if err != nil {
				if !isMethodNotSupported(err) {
					dl.Log().With("backend", h.Name()).With("kind", kind).With("error", err).Error("catalog discovery failed")
				}
				return nil
			}
			results[i] = entries
			return nil
		})
	}
	_ = g.Wait() // failures are absorbed per backend
	return results
}

// isMethodNotSupported reports whether a backend rejected a request because
// it does not implement the method (json-rpc -32601).
func isMethodNotSupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "-32601") || strings.Contains(msg, "method not found")
}

// provenanceMark prefixes a description with the backend it came from.
func provenanceMark(backend, description string) string {
	return "[" + backend + "] " + description
}
