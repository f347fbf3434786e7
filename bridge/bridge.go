// Package bridge exposes a single local stdio MCP server over HTTP with SSE.
// each connecting client gets a dedicated backend subprocess, so clients can
// never observe each other's state.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/michaelquigley/df/dd"
	"github.com/michaelquigley/df/dl"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// EndpointOutput is printed to stdout once the bridge is listening, so
// callers and scripts can pick up the endpoint without parsing logs.
type EndpointOutput struct {
	Endpoint string
}

// catalog is the backend surface the bridge serves. it is probed once at
// startup and handed to every client session.
type catalog struct {
	tools     []*mcp.Tool
	prompts   []*mcp.Prompt
	resources []*mcp.Resource
}

// Bridge wraps one stdio MCP server command and serves it to MCP clients
// over HTTP.
type Bridge struct {
	cfg        *Config
	catalog    catalog
	listener   net.Listener
	httpServer *http.Server
	mu         sync.Mutex
	sessions   map[string]*clientSession
}

// clientSession pairs one connected client with its dedicated backend
// subprocess.
type clientSession struct {
	id         string
	createdAt  time.Time
	remoteAddr string
	userAgent  string
	session    *mcp.ClientSession
	cmd        *exec.Cmd
	cancel     context.CancelFunc
}

// New creates a Bridge from config.
func New(cfg *Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bridge{
		cfg:      cfg,
		sessions: make(map[string]*clientSession),
	}, nil
}

// Start probes the backend's catalog, binds the listen address, and
// announces the endpoint on stdout.
func (b *Bridge) Start(ctx context.Context) error {
	dl.Log().With("command", b.cfg.Command).Info("starting hub bridge")

	if err := b.probeCatalog(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", b.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on '%s': %w", b.cfg.Address, err)
	}
	b.listener = listener
	b.httpServer = &http.Server{Handler: b.sseHandler()}

	if out, err := dd.UnbindJSON(&EndpointOutput{Endpoint: b.Endpoint()}); err == nil {
		fmt.Println(string(out))
	} else {
		dl.Log().With("error", err).Warn("failed to unbind endpoint output")
	}

	dl.Log().With("endpoint", b.Endpoint()).Info("hub bridge listening")
	return nil
}

// Endpoint returns the SSE endpoint clients connect to. valid after Start().
func (b *Bridge) Endpoint() string {
	if b.listener == nil {
		return ""
	}
	return "http://" + b.listener.Addr().String() + "/sse"
}

// spawn starts one backend subprocess and connects an MCP session to it.
func (b *Bridge) spawn(ctx context.Context) (*mcp.ClientSession, *exec.Cmd, context.CancelFunc, error) {
	procCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(procCtx, b.cfg.Command, b.cfg.Args...)
	if b.cfg.WorkingDir != "" {
		cmd.Dir = b.cfg.WorkingDir
	}
	cmd.Env = os.Environ()
	for k, v := range b.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "mcp-hub-bridge", Version: "1.0.0"},
		nil,
	)
	session, err := client.Connect(procCtx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("backend '%s' failed to start: %w", b.cfg.Command, err)
	}
	return session, cmd, cancel, nil
}

// probeCatalog spawns a short-lived backend and reads every tool, prompt,
// and resource it serves. tools are mandatory, the other kinds optional.
// per-client sessions spawn their own backends later.
func (b *Bridge) probeCatalog(ctx context.Context) error {
	session, _, cancel, err := b.spawn(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() {
		if cerr := session.Close(); cerr != nil {
			dl.Log().With("error", cerr).Debug("error closing probe session")
		}
	}()

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}
	for {
		b.catalog.tools = append(b.catalog.tools, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		res, err = session.ListTools(ctx, &mcp.ListToolsParams{Cursor: res.NextCursor})
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
	}

	if prompts, perr := session.ListPrompts(ctx, nil); perr == nil {
		b.catalog.prompts = prompts.Prompts
	} else {
		dl.Log().With("error", perr).Debug("backend serves no prompts")
	}
	if resources, rerr := session.ListResources(ctx, nil); rerr == nil {
		b.catalog.resources = resources.Resources
	} else {
		dl.Log().With("error", rerr).Debug("backend serves no resources")
	}

	dl.Log().
		With("tools", len(b.catalog.tools)).
		With("prompts", len(b.catalog.prompts)).
		With("resources", len(b.catalog.resources)).
		Info("probed backend catalog")
	return nil
}

// sseHandler serves MCP over SSE, minting a fresh backend subprocess per
// connecting client.
func (b *Bridge) sseHandler() http.Handler {
	return mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		session, err := b.newClientSession(r.Context(), r)
		if err != nil {
			dl.Log().With("error", err).Error("could not spawn backend for client")
			return nil
		}

		go func() {
			<-r.Context().Done()
			b.dropSession(session.id)
		}()

		return session.frontServer(b.catalog)
	}, nil)
}

// newClientSession spawns a dedicated backend subprocess for one client.
func (b *Bridge) newClientSession(ctx context.Context, r *http.Request) (*clientSession, error) {
	session, cmd, cancel, err := b.spawn(ctx)
	if err != nil {
		return nil, err
	}

	cs := &clientSession{
		id:         uuid.New().String(),
		createdAt:  time.Now(),
		remoteAddr: r.RemoteAddr,
		userAgent:  r.Header.Get("User-Agent"),
		session:    session,
		cmd:        cmd,
		cancel:     cancel,
	}

	b.mu.Lock()
	b.sessions[cs.id] = cs
	b.mu.Unlock()

	dl.Log().
		With("session_id", cs.id).
		With("remote_addr", cs.remoteAddr).
		With("user_agent", cs.userAgent).
		With("pid", cmd.Process.Pid).
		Info("client connected, backend spawned")

	return cs, nil
}

// dropSession closes and removes a session.
func (b *Bridge) dropSession(sessionID string) {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if ok {
		session.Close()
		dl.Log().With("session_id", sessionID).Debug("client session dropped")
	}
}

// frontServer builds the MCP server one client talks to, forwarding the
// probed catalog to this session's backend subprocess.
func (cs *clientSession) frontServer(cat catalog) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "mcp-hub-bridge", Version: "1.0.0"},
		nil,
	)
	for _, tool := range cat.tools {
		server.AddTool(tool, cs.forwardTool(tool.Name))
	}
	for _, prompt := range cat.prompts {
		server.AddPrompt(prompt, cs.forwardPrompt(prompt.Name))
	}
	for _, resource := range cat.resources {
		server.AddResource(resource, cs.forwardResource())
	}
	return server
}

// forwardTool forwards one tool's calls to the session backend, logging
// duration and a summary of the arguments.
func (cs *clientSession) forwardTool(toolName string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		result, err := cs.session.CallTool(ctx, &mcp.CallToolParams{
			Name:      toolName,
			Arguments: req.Params.Arguments,
		})
		duration := time.Since(start)

		if err != nil {
			dl.Log().
				With("session_id", cs.id).
				With("tool", toolName).
				With("args", summarizeArgs(req.Params.Arguments)).
				With("duration_ms", duration.Milliseconds()).
				With("error", err.Error()).
				Info("tool call failed")
			return nil, err
		}

		dl.Log().
			With("session_id", cs.id).
			With("tool", toolName).
			With("args", summarizeArgs(req.Params.Arguments)).
			With("duration_ms", duration.Milliseconds()).
			With("result_type", resultKinds(result)).
			Info("tool call completed")
		return result, nil
	}
}

// forwardPrompt forwards one prompt's requests to the session backend.
func (cs *clientSession) forwardPrompt(name string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return cs.session.GetPrompt(ctx, &mcp.GetPromptParams{
			Name:      name,
			Arguments: req.Params.Arguments,
		})
	}
}

// forwardResource forwards resource reads to the session backend.
func (cs *clientSession) forwardResource() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return cs.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: req.Params.URI})
	}
}

// Close tears the session down and terminates the subprocess, SIGTERM first
// and SIGKILL after a grace period.
func (cs *clientSession) Close() error {
	var errs []error

	cs.cancel()

	if cs.session != nil {
		if err := cs.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session: %w", err))
		}
	}
	cs.terminate()

	dl.Log().
		With("session_id", cs.id).
		With("duration_ms", time.Since(cs.createdAt).Milliseconds()).
		Info("client session closed")

	return errors.Join(errs...)
}

// terminate reaps the subprocess, escalating to SIGKILL when SIGTERM is
// ignored past the grace period.
func (cs *clientSession) terminate() {
	if cs.cmd == nil || cs.cmd.Process == nil {
		return
	}

	if err := cs.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		dl.Log().With("session_id", cs.id).With("error", err).Debug("sigterm delivery failed, killing backend")
		cs.cmd.Process.Kill()
		return
	}

	done := make(chan error, 1)
	go func() { done <- cs.cmd.Wait() }()

	select {
	case <-done:
		// backend exited on its own
	case <-time.After(5 * time.Second):
		dl.Log().With("session_id", cs.id).Debug("backend ignored sigterm, killing")
		cs.cmd.Process.Kill()
	}
}

// Run serves MCP on the bound listener. blocks until the context ends.
func (b *Bridge) Run(ctx context.Context) error {
	dl.Log().With("endpoint", b.Endpoint()).Info("serving mcp clients")

	errCh := make(chan error, 1)
	go func() {
		err := b.httpServer.Serve(b.listener)
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		dl.Log().Info("shutdown requested")
		return b.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the bridge and every client session.
func (b *Bridge) Stop() error {
	dl.Log().Info("stopping hub bridge")

	var lastErr error

	if b.httpServer != nil {
		if err := b.httpServer.Shutdown(context.Background()); err != nil {
			dl.Log().With("error", err).Warn("error during http shutdown")
			lastErr = err
		}
	}

	b.mu.Lock()
	sessions := make([]*clientSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[string]*clientSession)
	b.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			dl.Log().With("session_id", s.id).With("error", err).Warn("error closing session")
			lastErr = err
		}
	}

	dl.Log().Info("hub bridge stopped")
	return lastErr
}

// summarizeArgs creates a loggable summary of tool arguments. long values
// are truncated to avoid log bloat.
func summarizeArgs(args any) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "<marshal error>"
	}
	if len(data) > 500 {
		return string(data[:500]) + "..."
	}
	return string(data)
}

// resultKinds summarizes the content kinds of a result for logging.
func resultKinds(result *mcp.CallToolResult) string {
	if result == nil {
		return "nil"
	}
	if result.IsError {
		return "error"
	}
	if len(result.Content) == 0 {
		return "empty"
	}
	kinds := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		switch c.(type) {
		case *mcp.TextContent:
			kinds = append(kinds, "text")
		case *mcp.ImageContent:
			kinds = append(kinds, "image")
		case *mcp.AudioContent:
			kinds = append(kinds, "audio")
		case *mcp.EmbeddedResource:
			kinds = append(kinds, "resource")
		default:
			kinds = append(kinds, "unknown")
		}
	}
	return strings.Join(kinds, ",")
}
