// Package search provides web search for the web capability group.
//
// Each search backend implements [Provider]. The [Manager] routes a
// query to its primary provider, and [Tools] exposes searching and
// page fetching to the agent.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nugget/aide/internal/httpkit"
)

// searchTimeout bounds one provider request when no client is given.
const searchTimeout = 15 * time.Second

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`

	// Published is the provider's page date, in whatever form it
	// reports it.
	Published string `json:"published,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "de").
	Language string `json:"language,omitempty"`
}

// defaultCount applies when Options.Count is zero.
const defaultCount = 5

func (o Options) count() int {
	if o.Count <= 0 {
		return defaultCount
	}
	return o.Count
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "searxng", "brave").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager holds configured providers and routes searches. The first
// registered provider is the primary.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates an empty search manager.
func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	if m.primary == "" {
		m.primary = p.Name()
	}
	m.providers[p.Name()] = p
}

// Search runs a query against the primary provider.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, fmt.Errorf("no search provider configured")
	}
	return p.Search(ctx, query, opts)
}

// Primary returns the name of the provider used for searches.
func (m *Manager) Primary() string {
	return m.primary
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// getJSON fetches endpoint with params and decodes a 200 reply into
// out. Errors are prefixed with the provider name.
func getJSON(ctx context.Context, client *http.Client, provider, endpoint string, params url.Values, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", provider, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}

// collect returns at most n results in provider order. Results without
// a URL and repeats of an earlier URL are dropped, and titles and
// snippets are reduced to plain text.
func collect(n int, raw []Result) []Result {
	out := make([]Result, 0, min(n, len(raw)))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		if len(out) == n {
			break
		}
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		r.Title = plainText(r.Title)
		r.Snippet = plainText(r.Snippet)
		if r.Title == "" {
			r.Title = r.URL
		}
		out = append(out, r)
	}
	return out
}

// plainText drops markup such as highlight tags and decodes entities.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
