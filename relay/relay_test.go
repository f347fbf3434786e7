package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubworks/mcp-hub/relay"
)

// newRemote serves a real MCP server over streamable HTTP.
func newRemote(t *testing.T) string {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "remote", Version: "0.0.1"}, nil)
	server.AddTool(
		&mcp.Tool{
			Name:        "echo",
			Description: "echoes input",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			},
		},
		func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Text string `json:"text"`
			}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return nil, err
				}
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "echo: " + args.Text}},
			}, nil
		},
	)
	server.AddPrompt(
		&mcp.Prompt{Name: "greet", Description: "says hello"},
		func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{
				Messages: []*mcp.PromptMessage{
					{Role: "user", Content: &mcp.TextContent{Text: "Hello, " + req.Params.Arguments["name"] + "!"}},
				},
			}, nil
		},
	)
	server.AddResource(
		&mcp.Resource{URI: "mem://remote/info", Name: "info", MIMEType: "text/plain"},
		func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{URI: "mem://remote/info", MIMEType: "text/plain", Text: "remote info"}},
			}, nil
		},
	)

	handler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return server },
		&mcp.StreamableHTTPOptions{},
	)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRelayMirrorsRemote(t *testing.T) {
	ctx := context.Background()

	r, err := relay.New(&relay.Config{Endpoint: newRemote(t)})
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	tServer, tClient := mcp.NewInMemoryTransports()
	ss, err := r.Server().Connect(ctx, tServer, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "relay-test", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, tClient, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "echo", tools.Tools[0].Name)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "over the wire"},
	})
	require.NoError(t, err)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "echo: over the wire", text.Text)

	prompt, err := cs.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "greet",
		Arguments: map[string]string{"name": "dev"},
	})
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
	ptext, ok := prompt.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Hello, dev!", ptext.Text)

	read, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "mem://remote/info"})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "remote info", read.Contents[0].Text)
}

func TestRelayValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     relay.Config
		wantErr bool
	}{
		{"defaults to http", relay.Config{Endpoint: "http://localhost:1234"}, false},
		{"sse", relay.Config{Endpoint: "http://localhost:1234/sse", Transport: "sse"}, false},
		{"http", relay.Config{Endpoint: "http://localhost:1234", Transport: "http"}, false},
		{"missing endpoint", relay.Config{}, true},
		{"bad transport", relay.Config{Endpoint: "http://localhost:1234", Transport: "tcp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRelayRunBeforeStart(t *testing.T) {
	t.Parallel()

	r, err := relay.New(&relay.Config{Endpoint: "http://localhost:1234"})
	require.NoError(t, err)
	assert.Error(t, r.Run(context.Background()))
	assert.Error(t, r.RunHTTP(context.Background(), nil))
}
