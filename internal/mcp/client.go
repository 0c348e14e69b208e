package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nugget/aide/internal/buildinfo"
	"github.com/nugget/aide/internal/httpkit"
)

// ServerConfig describes one MCP server.
type ServerConfig struct {
	Name        string
	Description string

	// Transport is "stdio" or "http".
	Transport string

	Command string
	Args    []string
	Env     []string

	URL     string
	Headers map[string]string

	// IncludeTools limits which server tools are exposed. Empty
	// exposes all of them.
	IncludeTools []string
}

// Client is a live session with one MCP server.
type Client struct {
	cfg     ServerConfig
	session *mcp.ClientSession
	logger  *slog.Logger
}

// Connect starts (or dials) the server and completes the MCP
// handshake.
func Connect(ctx context.Context, cfg ServerConfig, logger *slog.Logger) (*Client, error) {
	t, err := transport(cfg)
	if err != nil {
		return nil, err
	}
	return connect(ctx, cfg, t, logger)
}

func connect(ctx context.Context, cfg ServerConfig, t mcp.Transport, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("mcp_server", cfg.Name)

	client := mcp.NewClient(&mcp.Implementation{Name: "aide", Version: buildinfo.Version}, nil)
	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to MCP server %s: %w", cfg.Name, err)
	}
	if res := session.InitializeResult(); res != nil && res.ServerInfo != nil {
		logger.Info("MCP server initialized",
			"server_name", res.ServerInfo.Name,
			"server_version", res.ServerInfo.Version,
			"protocol_version", res.ProtocolVersion,
		)
	}
	return &Client{cfg: cfg, session: session, logger: logger}, nil
}

func transport(cfg ServerConfig) (mcp.Transport, error) {
	switch cfg.Transport {
	case "", "stdio":
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Env = append(os.Environ(), cfg.Env...)
		return &mcp.CommandTransport{Command: cmd}, nil
	case "http":
		hc := httpkit.NewClient(httpkit.WithTimeout(0))
		if len(cfg.Headers) > 0 {
			hc.Transport = &headerRoundTripper{base: hc.Transport, headers: cfg.Headers}
		}
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: hc}, nil
	}
	return nil, fmt.Errorf("mcp server %s: unknown transport %q", cfg.Name, cfg.Transport)
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// ListTools returns every tool the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var out []*mcp.Tool
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		out = append(out, tool)
	}
	c.logger.Info("discovered MCP tools", "count", len(out))
	return out, nil
}

// CallTool invokes a tool and flattens its content into one string.
// A result flagged as an error becomes a Go error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}
	text := extractText(res)
	if res.IsError {
		return "", fmt.Errorf("MCP tool %s returned error: %s", name, text)
	}
	return text, nil
}

// Close ends the session, stopping a stdio subprocess.
func (c *Client) Close() error {
	c.logger.Info("closing MCP client")
	return c.session.Close()
}

// extractText joins text content. Other content kinds are represented
// by inline markers; structured content is used when there is no text.
func extractText(res *mcp.CallToolResult) string {
	var parts []string
	for _, block := range res.Content {
		switch b := block.(type) {
		case *mcp.TextContent:
			parts = append(parts, b.Text)
		case *mcp.ImageContent:
			parts = append(parts, "[image]")
		case *mcp.AudioContent:
			parts = append(parts, "[audio]")
		case *mcp.ResourceLink:
			parts = append(parts, "[resource "+b.URI+"]")
		case *mcp.EmbeddedResource:
			if b.Resource != nil && b.Resource.Text != "" {
				parts = append(parts, b.Resource.Text)
			} else {
				parts = append(parts, "[resource]")
			}
		default:
			parts = append(parts, "[content]")
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			return string(data)
		}
	}
	return strings.Join(parts, "\n")
}

// headerRoundTripper adds configured headers to every request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return h.base.RoundTrip(req)
}
