package hub

import (
	"encoding/json"
	"strings"

	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
)

// compositeDescriptionHeader fronts generated composite descriptions when
// the config does not supply one.
const compositeDescriptionHeader = `Dispatches a call to one of the subtools documented below. Invoke with {"server": "<backend name>", "tool": "<subtool name>", "args": {<subtool arguments>}}.`

// CompositeBuilder synthesizes composite tool entries and registers their
// dispatch routes in the identity map.
type CompositeBuilder struct {
	ids *IdentityMap
}

// NewCompositeBuilder creates a builder over the given identity map.
func NewCompositeBuilder(ids *IdentityMap) *CompositeBuilder {
	return &CompositeBuilder{ids: ids}
}

// Build synthesizes one tool entry per configured composite. a composite
// that fails to build is logged and skipped so the rest still come up.
// handles must be the live set the raw catalog was built from.
func (b *CompositeBuilder) Build(composites []CompositeConfig, catalog RawCatalog, handles []*BackendHandle) []ToolEntry {
	b.ids.Clear(KindComposite)
	if len(composites) == 0 {
		return nil
	}

	live := make(map[string]*BackendHandle, len(handles))
	for _, h := range handles {
		live[h.Name()] = h
	}

	var entries []ToolEntry
	for i := range composites {
		entry, err := b.build(&composites[i], catalog, live)
		if err != nil {
			dl.Log().With("composite", composites[i].Name).With("error", err).Error("failed to build composite tool")
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// build assembles one composite: the documentation block, the subkey routes,
// and the dispatcher binding. a panic during assembly is converted to an
// error so one bad composite cannot take the others down.
func (b *CompositeBuilder) build(cfg *CompositeConfig, catalog RawCatalog, live map[string]*BackendHandle) (entry ToolEntry, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("composite build panic: %v", rec)
		}
	}()

	var desc strings.Builder
	if cfg.Description != "" {
		desc.WriteString(cfg.Description)
	} else {
		desc.WriteString(compositeDescriptionHeader)
	}

	for _, srv := range cfg.Subtools {
		handle, connected := live[srv.Server]
		if !connected {
			desc.WriteString("\n\nWarning: Server " + srv.Server + " not found in connected clients")
		}

		for _, sub := range srv.Tools {
			desc.WriteString("\n\n--- " + srv.Server + ":" + sub.Name + " ---\n")
			desc.WriteString(b.subtoolDescription(cfg.Name, srv.Server, sub, catalog))

			if tool, ok := catalog.Lookup(srv.Server, sub.Name); ok && tool.InputSchema != nil {
				if schema, merr := json.Marshal(tool.InputSchema); merr == nil {
					desc.WriteString("\nInput schema: " + string(schema))
				}
			}

			if connected {
				b.ids.Put(KindComposite, CompositeKey(cfg.Name, srv.Server, sub.Name), handle)
			}
		}
	}

	// the composite's own name routes to the dispatcher, not to any backend
	b.ids.Put(KindTool, cfg.Name, b.ids.Dispatcher())

	tool := &mcp.Tool{
		Name:        cfg.Name,
		Description: desc.String(),
		InputSchema: compositeInputSchema(),
	}
	return ToolEntry{Tool: tool}, nil
}

// subtoolDescription resolves a subtool's documentation: config override
// first, then the backend's own description, then empty with a warning.
func (b *CompositeBuilder) subtoolDescription(composite, server string, sub SubtoolConfig, catalog RawCatalog) string {
	if sub.Description != "" {
		return sub.Description
	}
	if tool, ok := catalog.Lookup(server, sub.Name); ok && tool.Description != "" {
		return tool.Description
	}
	dl.Log().With("composite", composite).With("server", server).With("tool", sub.Name).Warn("no description available for subtool")
	return ""
}

// compositeInputSchema returns a fresh copy of the fixed dispatch envelope
// schema.
func compositeInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"server": map[string]any{
				"type":        "string",
				"description": "name of the backend server to dispatch to",
			},
			"tool": map[string]any{
				"type":        "string",
				"description": "name of the subtool on that server",
			},
			"args": map[string]any{
				"type":        "object",
				"description": "arguments forwarded to the subtool",
			},
		},
		"required": []string{"server", "tool"},
	}
}
