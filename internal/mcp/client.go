package mcp

import (
	"context"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// ServerConfig describes how to reach one MCP server.
type ServerConfig struct {
	Name string `yaml:"name"`

	// Command, Args, and Env configure a stdio server. Command must be
	// a bare allowlisted name.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// URL configures a streamable HTTP server instead.
	URL string `yaml:"url,omitempty"`
}

// ToolInfo is one tool advertised by a server.
type ToolInfo struct {
	Server      string
	Name        string
	Description string
}

// Client wraps one connected MCP server.
type Client struct {
	name    string
	client  *mcpclient.Client
	timeout time.Duration
}

// Connect validates the server configuration, spawns or dials the
// server, and completes the MCP initialize handshake.
func Connect(ctx context.Context, cfg ServerConfig, extraAllowed []string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var (
		c   *mcpclient.Client
		err error
	)
	switch {
	case cfg.URL != "":
		c, err = mcpclient.NewStreamableHttpClient(cfg.URL)
	case cfg.Command != "":
		if err := ValidateCommand(cfg.Command, extraAllowed); err != nil {
			return nil, err
		}
		if err := ValidateEnv(cfg.Env); err != nil {
			return nil, err
		}
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		c, err = mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	default:
		return nil, fmt.Errorf("mcp: server %s has neither command nor url", cfg.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: connect %s: %w", cfg.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "zeph", Version: "1.0"}
	if _, err := c.Initialize(initCtx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize %s: %w", cfg.Name, err)
	}

	return &Client{name: cfg.Name, client: c, timeout: timeout}, nil
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// ListTools returns the server's advertised tools.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools on %s: %w", c.name, err)
	}
	out := make([]ToolInfo, 0, len(res.Tools))
	for _, tool := range res.Tools {
		out = append(out, ToolInfo{
			Server:      c.name,
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return out, nil
}

// CallTool invokes one tool and returns its text content.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp: call %s.%s: %w", c.name, tool, err)
	}

	var text string
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	if res.IsError {
		return "", fmt.Errorf("mcp: %s.%s returned error: %s", c.name, tool, text)
	}
	return text, nil
}

// Close shuts the server connection down.
func (c *Client) Close() error { return c.client.Close() }

// ToolDefs converts advertised tools into the runtime's tool
// definitions, namespaced as server.tool.
func ToolDefs(tools []ToolInfo) []models.ToolDef {
	out := make([]models.ToolDef, 0, len(tools))
	for _, t := range tools {
		out = append(out, models.ToolDef{
			ID:          t.Server + "." + t.Name,
			Description: t.Description,
		})
	}
	return out
}
