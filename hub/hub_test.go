package hub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubworks/mcp-hub/hub"
)

// the hub consumes real client sessions through the Session interface
var _ hub.Session = (*mcp.ClientSession)(nil)

// newBackendServer stands up a real MCP server over in-memory transports and
// returns it with a connected client session for the hub to adopt.
func newBackendServer(t *testing.T, name string, configure func(*mcp.Server)) (*mcp.Server, *mcp.ClientSession) {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: "0.0.1"}, nil)
	configure(server)

	tServer, tClient := mcp.NewInMemoryTransports()
	ss, err := server.Connect(context.Background(), tServer, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "hub-test", Version: "0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), tClient, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return server, cs
}

func echoHandler(prefix string) mcp.ToolHandler {
	return func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Text string `json:"text"`
		}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
		}
		return textResult(prefix + args.Text), nil
	}
}

func textSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
	}
}

// listAllTools drains the paginated tool list.
func listAllTools(t *testing.T, cs *mcp.ClientSession) map[string]*mcp.Tool {
	t.Helper()

	tools := make(map[string]*mcp.Tool)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	for {
		for _, tool := range res.Tools {
			tools[tool.Name] = tool
		}
		if res.NextCursor == "" {
			return tools
		}
		res, err = cs.ListTools(context.Background(), &mcp.ListToolsParams{Cursor: res.NextCursor})
		require.NoError(t, err)
	}
}

func TestHubEndToEnd(t *testing.T) {
	ctx := context.Background()

	f1Server, f1Session := newBackendServer(t, "f1", func(s *mcp.Server) {
		s.AddTool(&mcp.Tool{Name: "echo", Description: "echoes input", InputSchema: textSchema()}, echoHandler("echo: "))
		s.AddTool(&mcp.Tool{Name: "secret", Description: "internal", InputSchema: textSchema()}, echoHandler("secret: "))
		s.AddResource(
			&mcp.Resource{URI: "mem://f1/info", Name: "info", Description: "backend info", MIMEType: "text/plain"},
			func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
				return &mcp.ReadResourceResult{
					Contents: []*mcp.ResourceContents{{URI: "mem://f1/info", MIMEType: "text/plain", Text: "f1 info text"}},
				}, nil
			},
		)
		s.AddPrompt(
			&mcp.Prompt{Name: "greet", Description: "says hello"},
			func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
				name := req.Params.Arguments["name"]
				return &mcp.GetPromptResult{
					Messages: []*mcp.PromptMessage{
						{Role: "user", Content: &mcp.TextContent{Text: "Hello, " + name + "!"}},
					},
				}, nil
			},
		)
	})
	_, f2Session := newBackendServer(t, "f2", func(s *mcp.Server) {
		s.AddTool(&mcp.Tool{Name: "echo", Description: "echoes input", InputSchema: textSchema()}, echoHandler("f2 echo: "))
	})

	cfg := hub.DefaultConfig()
	cfg.Hub.Connection.CallTimeout = 5 * time.Second
	cfg.Hub.Connection.ConnectAttempts = 1
	cfg.Hub.Connection.ConnectDelay = 10 * time.Millisecond
	cfg.Hub.Connection.ConnectTimeout = time.Second
	cfg.Backends = []hub.BackendConfig{
		{
			Name:      "f1",
			Transport: hub.TransportConfig{Type: "stdio", Command: "mcp-hub-test-no-such-binary"},
			Tools:     hub.ExposureConfig{Hidden: []string{"secret"}},
			EnvVars:   []hub.EnvVarConfig{{Name: "API_KEY", Value: "hunter2"}},
		},
		{
			Name:      "f2",
			Transport: hub.TransportConfig{Type: "stdio", Command: "mcp-hub-test-no-such-binary"},
			Tools: hub.ExposureConfig{
				Exposed: []hub.ExposedTool{{Original: "echo", Exposed: "echoF2"}},
			},
		},
	}
	cfg.Composites = []hub.CompositeConfig{{
		Name: "combo",
		Subtools: []hub.CompositeServerConfig{
			{Server: "f1", Tools: []hub.SubtoolConfig{{Name: "echo"}}},
		},
	}}

	h, err := hub.New(cfg)
	require.NoError(t, err)

	// the sessions are already connected, so the hub adopts them instead of
	// dialing the configured transports
	h.Backends().Adopt(&cfg.Backends[0], f1Session)
	h.Backends().Adopt(&cfg.Backends[1], f2Session)
	for _, handle := range h.Backends().LiveHandles() {
		h.IdentityMap().RegisterBackend(handle)
	}

	srv := hub.NewServer(h)
	srv.Sync(ctx)

	tServer, tClient := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, tServer, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "front-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, tClient, nil)
	require.NoError(t, err)
	defer cs.Close()

	t.Run("tool listing", func(t *testing.T) {
		tools := listAllTools(t, cs)
		require.Contains(t, tools, "echo")
		require.Contains(t, tools, "echoF2")
		require.Contains(t, tools, "combo")
		assert.NotContains(t, tools, "secret")

		assert.Equal(t, "[f1] echoes input", tools["echo"].Description)
		assert.Equal(t, "[f2] echoes input", tools["echoF2"].Description)
		assert.Contains(t, tools["combo"].Description, "--- f1:echo ---")
	})

	t.Run("tool call with env substitution", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "echo",
			Arguments: map[string]any{"text": "key is ${API_KEY}"},
		})
		require.NoError(t, err)
		// the backend saw the real value, the client never does
		assert.Equal(t, "echo: key is ${API_KEY}", resultText(t, res))
	})

	t.Run("renamed tool call", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "echoF2",
			Arguments: map[string]any{"text": "hi"},
		})
		require.NoError(t, err)
		assert.Equal(t, "f2 echo: hi", resultText(t, res))
	})

	t.Run("hidden tool is not served", func(t *testing.T) {
		_, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "secret",
			Arguments: map[string]any{"text": "x"},
		})
		require.Error(t, err)
	})

	t.Run("composite dispatch", func(t *testing.T) {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name: "combo",
			Arguments: map[string]any{
				"server": "f1",
				"tool":   "echo",
				"args":   map[string]any{"text": "dispatch"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "echo: dispatch", resultText(t, res))

		_, err = cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "combo",
			Arguments: map[string]any{"server": "f1", "tool": "nope"},
		})
		require.Error(t, err)
		assert.ErrorContains(t, err, "no subtool")
	})

	t.Run("prompt listing and fetch", func(t *testing.T) {
		res, err := cs.ListPrompts(ctx, nil)
		require.NoError(t, err)
		byName := make(map[string]*mcp.Prompt)
		for _, p := range res.Prompts {
			byName[p.Name] = p
		}
		require.Contains(t, byName, "greet")
		require.Contains(t, byName, hub.RestartPromptName)
		assert.Equal(t, "[f1] says hello", byName["greet"].Description)

		prompt, err := cs.GetPrompt(ctx, &mcp.GetPromptParams{
			Name:      "greet",
			Arguments: map[string]string{"name": "dev"},
		})
		require.NoError(t, err)
		require.Len(t, prompt.Messages, 1)
		text, ok := prompt.Messages[0].Content.(*mcp.TextContent)
		require.True(t, ok)
		assert.Equal(t, "Hello, dev!", text.Text)
	})

	t.Run("resource listing and read", func(t *testing.T) {
		res, err := cs.ListResources(ctx, nil)
		require.NoError(t, err)
		require.Len(t, res.Resources, 1)
		assert.Equal(t, "mem://f1/info", res.Resources[0].URI)
		assert.Equal(t, "[f1] backend info", res.Resources[0].Description)

		read, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "mem://f1/info"})
		require.NoError(t, err)
		require.Len(t, read.Contents, 1)
		assert.Equal(t, "f1 info text", read.Contents[0].Text)

		_, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "mem://ghost"})
		require.Error(t, err)
	})

	t.Run("backend catalog change is picked up on sync", func(t *testing.T) {
		f1Server.RemoveTools("echo")
		srv.Sync(ctx)

		tools := listAllTools(t, cs)
		assert.NotContains(t, tools, "echo")
		assert.Contains(t, tools, "echoF2")

		_, err := cs.CallTool(ctx, &mcp.CallToolParams{
			Name:      "echo",
			Arguments: map[string]any{"text": "x"},
		})
		require.Error(t, err)
	})

	t.Run("restart prompt reports failures", func(t *testing.T) {
		// the configured command does not exist, so the reconnect fails and
		// the tally says so. the hub keeps serving the surviving backend.
		res, err := cs.GetPrompt(ctx, &mcp.GetPromptParams{
			Name:      hub.RestartPromptName,
			Arguments: map[string]string{"server": "f1"},
		})
		require.NoError(t, err)
		require.Len(t, res.Messages, 1)
		text, ok := res.Messages[0].Content.(*mcp.TextContent)
		require.True(t, ok)
		assert.Contains(t, text.Text, "f1: restart failed")

		tools := listAllTools(t, cs)
		assert.Contains(t, tools, "echoF2")
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := hub.New(hub.DefaultConfig())
	var cfgErr *hub.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "backends", cfgErr.Field)
}

func TestRunBeforeStart(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	h, err := hub.New(cfg)
	require.NoError(t, err)

	assert.Error(t, h.Run(context.Background()))
	assert.Error(t, h.RunHTTP(context.Background(), &hub.HTTPOptions{Address: "127.0.0.1:0"}))
}
