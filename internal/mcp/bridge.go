package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nugget/aide/internal/tools"
)

// sanitizeRe matches characters that are not lowercase alphanumeric or underscore.
var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// toolCaller is the part of Client the bridged handlers use.
type toolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Category returns the capability category for a server name.
func Category(serverName string) string {
	return sanitize(serverName)
}

// Group discovers the server's tools and returns them as a capability
// group named after the server. Tool names are namespaced as
// "mcp_{server}_{tool}" so they cannot collide with native operations.
func Group(ctx context.Context, c *Client, logger *slog.Logger) (*tools.Group, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defs, err := c.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools from %s: %w", c.cfg.Name, err)
	}
	g := bridge(c, c.cfg, defs, logger)
	if len(g.Tools) == 0 {
		return nil, fmt.Errorf("mcp server %s exposes no usable tools", c.cfg.Name)
	}
	return g, nil
}

func bridge(caller toolCaller, cfg ServerConfig, defs []*mcp.Tool, logger *slog.Logger) *tools.Group {
	desc := cfg.Description
	if desc == "" {
		desc = "tools provided by the " + cfg.Name + " MCP server"
	}
	g := &tools.Group{Category: Category(cfg.Name), Description: desc}

	include := toSet(cfg.IncludeTools)
	for _, td := range defs {
		if len(include) > 0 && !include[td.Name] {
			continue
		}
		params, err := paramsFromSchema(td.InputSchema)
		if err != nil {
			logger.Warn("skipping MCP tool with unusable schema", "server", cfg.Name, "mcp_name", td.Name, "error", err)
			continue
		}
		name := ToolName(cfg.Name, td.Name)
		g.Tools = append(g.Tools, &tools.Tool{
			Name:        name,
			Description: td.Description,
			Params:      params,
			Handler:     callHandler(caller, td.Name),
		})
		logger.Debug("bridged MCP tool", "mcp_name", td.Name, "name", name, "server", cfg.Name)
	}
	return g
}

func callHandler(caller toolCaller, mcpName string) tools.Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		return caller.CallTool(ctx, mcpName, args)
	}
}

// ToolName generates a namespaced tool name from an MCP server name
// and tool name. Both components are sanitized to contain only
// lowercase alphanumeric characters and underscores.
func ToolName(serverName, mcpToolName string) string {
	return fmt.Sprintf("mcp_%s_%s", sanitize(serverName), sanitize(mcpToolName))
}

// inputSchema is the subset of JSON Schema used to describe tool
// arguments.
type inputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]propertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

type propertySchema struct {
	Type        any    `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum"`
	Default     any    `json:"default"`
}

// paramsFromSchema converts a tool's input schema into parameters.
// Required parameters come first; each group is ordered by name.
func paramsFromSchema(schema any) ([]tools.Param, error) {
	if schema == nil {
		return nil, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var s inputSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Type != "" && s.Type != "object" {
		return nil, fmt.Errorf("input schema type %q is not object", s.Type)
	}

	required := toSet(s.Required)
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})

	params := make([]tools.Param, 0, len(names))
	for _, name := range names {
		ps := s.Properties[name]
		p := tools.Param{
			Name:        name,
			Type:        paramType(ps.Type),
			Description: ps.Description,
			Required:    required[name],
		}
		if !p.Required {
			p.Default = ps.Default
		}
		if len(ps.Enum) > 0 && p.Type == tools.TypeText {
			p.Type = tools.TypeEnum
			for _, v := range ps.Enum {
				p.Enum = append(p.Enum, fmt.Sprint(v))
			}
		}
		params = append(params, p)
	}
	return params, nil
}

// paramType maps a JSON Schema type (a string, or a list such as
// ["string","null"]) to a parameter type.
func paramType(t any) tools.ParamType {
	var name string
	switch v := t.(type) {
	case string:
		name = v
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok && s != "null" {
				name = s
				break
			}
		}
	}
	switch name {
	case "integer":
		return tools.TypeInteger
	case "number":
		return tools.TypeNumber
	case "boolean":
		return tools.TypeBoolean
	case "array":
		return tools.TypeArray
	case "object":
		return tools.TypeObject
	}
	return tools.TypeText
}

// sanitize converts a name to lowercase and replaces non-alphanumeric
// characters (except underscore) with underscores. Consecutive
// underscores are collapsed and leading/trailing underscores are trimmed.
func sanitize(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "-", "_")
	s = sanitizeRe.ReplaceAllString(s, "_")

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}

	return strings.Trim(s, "_")
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}
