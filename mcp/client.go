// Package mcp provides a Model Context Protocol client over a stdio
// subprocess, implementing the segue.Remote tool surface.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/seguehq/segue"
)

const protocolVersion = "2024-11-05"

// Config describes the tool server subprocess.
type Config struct {
	// Command is the executable to spawn.
	Command string
	// Args are passed to the command.
	Args []string
	// Env is added to the subprocess environment as KEY=VALUE pairs.
	Env map[string]string
	// ClientName and ClientVersion identify this client during the MCP
	// handshake. Defaults are "segue" / "dev".
	ClientName    string
	ClientVersion string
}

// Client speaks MCP to a tool server subprocess. The subprocess is spawned
// lazily on first use and kept alive until Close. Safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client *mcpclient.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption { return func(c *Client) { c.logger = l } }

// NewClient creates a Client. The subprocess is not spawned until the first
// ListTools or CallTool.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.ClientName == "" {
		cfg.ClientName = "segue"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}
	c := &Client{cfg: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// connect spawns and initializes the subprocess if it is not already up.
// Callers hold no lock; connect takes it.
func (c *Client) connect(ctx context.Context) (*mcpclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.cfg.Command == "" {
		return nil, fmt.Errorf("mcp: no command configured")
	}

	env := make([]string, 0, len(c.cfg.Env))
	for k, v := range c.cfg.Env {
		env = append(env, k+"="+v)
	}

	cl, err := mcpclient.NewStdioMCPClient(c.cfg.Command, env, c.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: spawn %s: %w", c.cfg.Command, err)
	}
	if err := cl.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", c.cfg.Command, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    c.cfg.ClientName,
		Version: c.cfg.ClientVersion,
	}
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := cl.Initialize(ctx, initReq); err != nil {
		cl.Close()
		return nil, fmt.Errorf("mcp: initialize: %w", err)
	}

	c.logger.Info("mcp server connected", "command", c.cfg.Command)
	c.client = cl
	return cl, nil
}

// ListTools enumerates the server's tools as segue descriptors.
func (c *Client) ListTools(ctx context.Context) ([]segue.ToolDescriptor, error) {
	cl, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := cl.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}

	tools := make([]segue.ToolDescriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			c.logger.Warn("tool schema unmarshalable, skipping", "tool", t.Name, "err", err)
			continue
		}
		schema, err := segue.ParseInputSchema(raw)
		if err != nil {
			c.logger.Warn("tool schema unparsable, skipping", "tool", t.Name, "err", err)
			continue
		}
		tools = append(tools, segue.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return tools, nil
}

// CallTool invokes a tool and returns the concatenated text content. A
// result flagged IsError comes back as a Go error carrying the text, so the
// caller's response parsing sees the same failure either way.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	cl, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := cl.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp: call %s: %w", name, err)
	}

	text := joinTextContent(resp.Content)
	if resp.IsError {
		if text == "" {
			text = "tool reported an error with no detail"
		}
		return "", fmt.Errorf("mcp: tool %s: %s", name, text)
	}
	return text, nil
}

// joinTextContent concatenates the text blocks of a tool result.
func joinTextContent(content []mcpgo.Content) string {
	var parts []string
	for _, block := range content {
		if tc, ok := block.(mcpgo.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close terminates the subprocess. Safe to call on a never-connected client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

var _ segue.Remote = (*Client)(nil)
