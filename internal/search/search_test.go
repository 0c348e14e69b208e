package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nugget/aide/internal/fetch"
	"github.com/nugget/aide/internal/tools"
)

// mockProvider is a simple test provider.
type mockProvider struct {
	name    string
	results []Result
	err     error
	opts    Options
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Search(_ context.Context, _ string, opts Options) ([]Result, error) {
	m.opts = opts
	return m.results, m.err
}

func TestManagerSearch(t *testing.T) {
	mgr := NewManager()
	mgr.Register(&mockProvider{
		name: "mock",
		results: []Result{
			{Title: "Test", URL: "https://example.com", Snippet: "A test result"},
		},
	})

	results, err := mgr.Search(context.Background(), "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Title != "Test" {
		t.Errorf("expected title 'Test', got %q", results[0].Title)
	}
}

func TestManagerFirstRegisteredIsPrimary(t *testing.T) {
	mgr := NewManager()
	mgr.Register(&mockProvider{name: "primary", results: []Result{{Title: "Primary"}}})
	mgr.Register(&mockProvider{name: "secondary", results: []Result{{Title: "Secondary"}}})

	results, err := mgr.Search(context.Background(), "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Title != "Primary" {
		t.Errorf("expected 'Primary', got %q", results[0].Title)
	}
}

func TestManagerUnconfigured(t *testing.T) {
	mgr := NewManager()
	if mgr.Configured() {
		t.Error("empty manager should not be configured")
	}
	if _, err := mgr.Search(context.Background(), "test", Options{}); err == nil {
		t.Fatal("expected error for missing provider")
	}
}

func TestSearXNG(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"A","url":"https://a.example","content":"first"},
			{"title":"B","url":"https://b.example","content":"second"},
			{"title":"C","url":"https://c.example","content":"third"}]}`))
	}))
	defer ts.Close()

	results, err := NewSearXNG(ts.URL+"/", nil).Search(context.Background(), "q", Options{Count: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[1].Snippet != "second" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestBrave(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "key" {
			t.Errorf("token = %q", got)
		}
		if r.URL.Query().Get("count") != "5" {
			t.Errorf("count = %q", r.URL.Query().Get("count"))
		}
		if r.URL.Query().Get("text_decorations") != "false" {
			t.Errorf("text_decorations = %q", r.URL.Query().Get("text_decorations"))
		}
		w.Write([]byte(`{"web":{"results":[{"title":"A","url":"https://a.example","description":"desc","page_age":"2026-10-01T08:00:00"}]}}`))
	}))
	defer ts.Close()

	b := NewBrave("key", nil)
	b.endpoint = ts.URL
	results, err := b.Search(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Snippet != "desc" || results[0].Published != "2026-10-01T08:00:00" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestBraveHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	b := NewBrave("key", nil)
	b.endpoint = ts.URL
	if _, err := b.Search(context.Background(), "q", Options{}); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected HTTP 429 error, got %v", err)
	}
}

func TestSearXNGNoEngineAnswered(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[],"unresponsive_engines":[["google","timeout"],["bing","access denied"]]}`))
	}))
	defer ts.Close()

	_, err := NewSearXNG(ts.URL, nil).Search(context.Background(), "q", Options{})
	if err == nil || !strings.Contains(err.Error(), "google: timeout") {
		t.Fatalf("expected unresponsive engine error, got %v", err)
	}
}

func TestSearXNGEmptyIsNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer ts.Close()

	results, err := NewSearXNG(ts.URL, nil).Search(context.Background(), "q", Options{})
	if err != nil || len(results) != 0 {
		t.Fatalf("Search = %+v, %v; want no results and no error", results, err)
	}
}

func TestCollect(t *testing.T) {
	raw := []Result{
		{Title: "Dubai <strong>weather</strong>", URL: " https://w.example ", Snippet: "Sunny &amp; 40\u00b0C"},
		{Title: "no link"},
		{Title: "repeat", URL: "https://w.example"},
		{URL: "https://x.example", Snippet: "  spaced\n  out "},
		{Title: "over the cap", URL: "https://y.example"},
	}
	got := collect(2, raw)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Title != "Dubai weather" || got[0].URL != "https://w.example" || got[0].Snippet != "Sunny & 40\u00b0C" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Title != "https://x.example" || got[1].Snippet != "spaced out" {
		t.Errorf("second = %+v", got[1])
	}
}

func findTool(g *tools.Group, name string) *tools.Tool {
	for _, tool := range g.Tools {
		if tool.Name == name {
			return tool
		}
	}
	return nil
}

func TestGroupOmitsUnbackedOperations(t *testing.T) {
	g := NewTools(NewManager(), fetch.New(nil)).Group()
	if g.Category != "web" {
		t.Errorf("category = %q", g.Category)
	}
	if findTool(g, "perform_web_search") != nil {
		t.Error("search should be absent without a provider")
	}
	if findTool(g, "fetch_web_page") == nil {
		t.Error("fetch_web_page missing")
	}
}

func TestPerformWebSearch(t *testing.T) {
	p := &mockProvider{name: "mock", results: []Result{{Title: "Dubai weather", URL: "https://w.example"}}}
	mgr := NewManager()
	mgr.Register(p)

	tool := findTool(NewTools(mgr, nil).Group(), "perform_web_search")
	args, err := tools.Bind(tool, map[string]any{"query": "weather in Dubai", "num_results": 50})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	out, err := tool.Handler(context.Background(), args)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if p.opts.Count != maxResults {
		t.Errorf("count = %d, want %d", p.opts.Count, maxResults)
	}

	var res searchResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != "success" || res.Count != 1 || res.Provider != "mock" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestFetchWebPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Tool Test</title></head><body><p>Content here</p></body></html>`))
	}))
	defer ts.Close()

	tool := findTool(NewTools(nil, fetch.New(nil)).Group(), "fetch_web_page")
	args, err := tools.Bind(tool, map[string]any{"url": ts.URL})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	out, err := tool.Handler(context.Background(), args)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(out, "Content here") || !strings.Contains(out, `"title":"Tool Test"`) {
		t.Errorf("unexpected output %q", out)
	}
}
