package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nugget/aide/internal/tools"
)

func TestToolName(t *testing.T) {
	tests := []struct {
		server string
		tool   string
		want   string
	}{
		{"home-assistant", "get_entities", "mcp_home_assistant_get_entities"},
		{"github", "create_issue", "mcp_github_create_issue"},
		{"My Server", "Do Thing", "mcp_my_server_do_thing"},
		{"test", "UPPERCASE", "mcp_test_uppercase"},
		{"a--b", "c--d", "mcp_a_b_c_d"},
		{"special!@#", "chars$%^", "mcp_special_chars"},
	}

	for _, tt := range tests {
		t.Run(tt.server+"/"+tt.tool, func(t *testing.T) {
			got := ToolName(tt.server, tt.tool)
			if got != tt.want {
				t.Errorf("ToolName(%q, %q) = %q, want %q", tt.server, tt.tool, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"Hello-World", "hello_world"},
		{"a--b", "a_b"},
		{"_leading_", "leading"},
		{"special!chars", "special_chars"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitize(tt.input)
			if got != tt.want {
				t.Errorf("sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParamsFromSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":  map[string]any{"type": "string", "description": "search text"},
			"limit":  map[string]any{"type": "integer", "default": 5},
			"mode":   map[string]any{"type": "string", "enum": []any{"fast", "full"}},
			"labels": map[string]any{"type": []any{"array", "null"}},
			"ratio":  map[string]any{"type": "number"},
		},
		"required": []any{"query"},
	}

	params, err := paramsFromSchema(schema)
	if err != nil {
		t.Fatalf("paramsFromSchema: %v", err)
	}
	var names []string
	for _, p := range params {
		names = append(names, p.Name)
	}
	if got := strings.Join(names, ","); got != "query,labels,limit,mode,ratio" {
		t.Fatalf("order = %s", got)
	}

	byName := map[string]tools.Param{}
	for _, p := range params {
		byName[p.Name] = p
	}
	if !byName["query"].Required || byName["query"].Description != "search text" {
		t.Errorf("query = %+v", byName["query"])
	}
	if byName["limit"].Type != tools.TypeInteger || byName["limit"].Default != float64(5) {
		t.Errorf("limit = %+v", byName["limit"])
	}
	if byName["mode"].Type != tools.TypeEnum || len(byName["mode"].Enum) != 2 {
		t.Errorf("mode = %+v", byName["mode"])
	}
	if byName["labels"].Type != tools.TypeArray {
		t.Errorf("labels = %+v", byName["labels"])
	}
	if byName["ratio"].Type != tools.TypeNumber {
		t.Errorf("ratio = %+v", byName["ratio"])
	}
}

func TestParamsFromSchemaRejectsNonObject(t *testing.T) {
	if _, err := paramsFromSchema(map[string]any{"type": "string"}); err == nil {
		t.Fatal("expected error for non-object schema")
	}
}

type fakeCaller struct {
	name string
	args map[string]any
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.name, f.args = name, args
	return "ok", nil
}

func TestBridgeIncludeFilter(t *testing.T) {
	defs := []*mcp.Tool{
		{Name: "get_entities", InputSchema: map[string]any{"type": "object"}},
		{Name: "call_service", InputSchema: map[string]any{"type": "object"}},
	}
	caller := &fakeCaller{}
	cfg := ServerConfig{Name: "home-assistant", IncludeTools: []string{"get_entities"}}

	g := bridge(caller, cfg, defs, nil)
	if g.Category != "home_assistant" {
		t.Errorf("category = %q", g.Category)
	}
	if len(g.Tools) != 1 || g.Tools[0].Name != "mcp_home_assistant_get_entities" {
		t.Fatalf("tools = %+v", g.Tools)
	}

	if _, err := g.Tools[0].Handler(context.Background(), map[string]any{"x": 1}); err != nil {
		t.Fatal(err)
	}
	if caller.name != "get_entities" {
		t.Errorf("called %q, want the server's own tool name", caller.name)
	}
}

type greetInput struct {
	Name string `json:"name" jsonschema:"who to greet"`
}

// connectInMemory runs an MCP server in-process and returns a client
// connected to it.
func connectInMemory(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	server := mcp.NewServer(&mcp.Implementation{Name: "greeter", Version: "v1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "greet", Description: "say hello"},
		func(_ context.Context, _ *mcp.CallToolRequest, in greetInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "Hello, " + in.Name}}}, nil, nil
		})
	mcp.AddTool(server, &mcp.Tool{Name: "fail", Description: "always fails"},
		func(_ context.Context, _ *mcp.CallToolRequest, _ greetInput) (*mcp.CallToolResult, any, error) {
			return nil, nil, errors.New("boom")
		})

	clientT, serverT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	c, err := connect(ctx, ServerConfig{Name: "greeter"}, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGroupOverInMemoryServer(t *testing.T) {
	c := connectInMemory(t)
	ctx := context.Background()

	g, err := Group(ctx, c, nil)
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if g.Category != "greeter" || len(g.Tools) != 2 {
		t.Fatalf("group = %s with %d tools", g.Category, len(g.Tools))
	}

	var greet *tools.Tool
	for _, tool := range g.Tools {
		if tool.Name == "mcp_greeter_greet" {
			greet = tool
		}
	}
	if greet == nil {
		t.Fatal("mcp_greeter_greet missing")
	}
	if p := greet.Param("name"); p == nil || p.Type != tools.TypeText {
		t.Fatalf("name param = %+v", p)
	}

	out, err := greet.Handler(ctx, map[string]any{"name": "Ana"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "Hello, Ana" {
		t.Errorf("out = %q", out)
	}
}

func TestCallToolErrorResult(t *testing.T) {
	c := connectInMemory(t)
	_, err := c.CallTool(context.Background(), "fail", map[string]any{"name": "x"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected tool error containing boom, got %v", err)
	}
}

func TestExtractText(t *testing.T) {
	res := &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: "one"},
		&mcp.ImageContent{MIMEType: "image/png"},
		&mcp.TextContent{Text: "two"},
	}}
	if got := extractText(res); got != "one\n[image]\ntwo" {
		t.Errorf("extractText = %q", got)
	}

	res = &mcp.CallToolResult{StructuredContent: map[string]any{"n": 1}}
	if got := extractText(res); got != `{"n":1}` {
		t.Errorf("structured = %q", got)
	}
}
