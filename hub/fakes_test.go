package hub_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hubworks/mcp-hub/hub"
)

// fakeSession implements hub.Session with canned catalogs and pluggable call
// behavior.
type fakeSession struct {
	tools     []*mcp.Tool
	resources []*mcp.Resource
	templates []*mcp.ResourceTemplate
	prompts   []*mcp.Prompt

	toolsErr     error
	resourcesErr error
	templatesErr error
	promptsErr   error

	callFn   func(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	promptFn func(ctx context.Context, params *mcp.GetPromptParams) (*mcp.GetPromptResult, error)
	readFn   func(ctx context.Context, params *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error)

	closed bool
}

func (f *fakeSession) ListTools(_ context.Context, _ *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	if f.toolsErr != nil {
		return nil, f.toolsErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) ListResources(_ context.Context, _ *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error) {
	if f.resourcesErr != nil {
		return nil, f.resourcesErr
	}
	return &mcp.ListResourcesResult{Resources: f.resources}, nil
}

func (f *fakeSession) ListResourceTemplates(_ context.Context, _ *mcp.ListResourceTemplatesParams) (*mcp.ListResourceTemplatesResult, error) {
	if f.templatesErr != nil {
		return nil, f.templatesErr
	}
	return &mcp.ListResourceTemplatesResult{ResourceTemplates: f.templates}, nil
}

func (f *fakeSession) ListPrompts(_ context.Context, _ *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error) {
	if f.promptsErr != nil {
		return nil, f.promptsErr
	}
	return &mcp.ListPromptsResult{Prompts: f.prompts}, nil
}

func (f *fakeSession) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	if f.callFn != nil {
		return f.callFn(ctx, params)
	}
	return textResult("ok"), nil
}

func (f *fakeSession) GetPrompt(ctx context.Context, params *mcp.GetPromptParams) (*mcp.GetPromptResult, error) {
	if f.promptFn != nil {
		return f.promptFn(ctx, params)
	}
	return &mcp.GetPromptResult{}, nil
}

func (f *fakeSession) ReadResource(ctx context.Context, params *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error) {
	if f.readFn != nil {
		return f.readFn(ctx, params)
	}
	return &mcp.ReadResourceResult{}, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

// fakeRestarter implements hub.Restarter with canned outcomes.
type fakeRestarter struct {
	names    []string
	restarts map[string]*hub.BackendHandle
	errs     map[string]error
	calls    []string
}

func (f *fakeRestarter) Restart(_ context.Context, name string) (*hub.BackendHandle, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	if h, ok := f.restarts[name]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("backend '%s' is not configured", name)
}

func (f *fakeRestarter) ConfiguredNames() []string {
	return f.names
}

func newHandle(t *testing.T, name string, sess hub.Session, tools hub.ExposureConfig, envVars ...hub.EnvVarConfig) *hub.BackendHandle {
	t.Helper()
	cfg := &hub.BackendConfig{Name: name, Tools: tools, EnvVars: envVars}
	return hub.NewBackendHandle(cfg, sess)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		return ""
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, not text", res.Content[0])
	}
	return tc.Text
}
