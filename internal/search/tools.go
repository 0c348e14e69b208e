package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/aide/internal/fetch"
	"github.com/nugget/aide/internal/tools"
)

// maxResults caps num_results.
const maxResults = 10

// Tools backs the web capability group. Either half may be nil.
type Tools struct {
	mgr     *Manager
	fetcher *fetch.Fetcher
}

// NewTools creates the web operations.
func NewTools(mgr *Manager, fetcher *fetch.Fetcher) *Tools {
	return &Tools{mgr: mgr, fetcher: fetcher}
}

// Group returns the web capability group with whichever operations
// have a backend.
func (t *Tools) Group() *tools.Group {
	g := &tools.Group{
		Category:    "web",
		Description: "search the web and read web pages",
	}
	if t.mgr != nil && t.mgr.Configured() {
		g.Tools = append(g.Tools, &tools.Tool{
			Name:        "perform_web_search",
			Description: "Search the web and return titles, links and snippets",
			Params: []tools.Param{
				{Name: "query", Type: tools.TypeText, Required: true, Description: `e.g. "weather in Dubai"`},
				{Name: "num_results", Type: tools.TypeInteger, Default: defaultCount, Description: "1-10"},
			},
			Handler: t.handleSearch,
		})
	}
	if t.fetcher != nil {
		g.Tools = append(g.Tools, &tools.Tool{
			Name:        "fetch_web_page",
			Description: "Fetch a URL and return its readable text",
			Params: []tools.Param{
				{Name: "url", Type: tools.TypeText, Required: true},
				{Name: "max_chars", Type: tools.TypeInteger, Default: fetch.DefaultMaxChars},
			},
			Handler: t.handleFetch,
		})
	}
	return g
}

type searchResult struct {
	Status   string   `json:"status"`
	Query    string   `json:"query"`
	Provider string   `json:"provider"`
	Results  []Result `json:"results"`
	Count    int      `json:"count"`
}

func (t *Tools) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	query := strings.TrimSpace(tools.String(args, "query"))
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	n := tools.Int(args, "num_results", defaultCount)
	if n < 1 {
		n = defaultCount
	}
	if n > maxResults {
		n = maxResults
	}

	results, err := t.mgr.Search(ctx, query, Options{Count: n})
	if err != nil {
		return "", err
	}
	if results == nil {
		results = []Result{}
	}
	return jsonResult(searchResult{
		Status:   "success",
		Query:    query,
		Provider: t.mgr.Primary(),
		Results:  results,
		Count:    len(results),
	})
}

func (t *Tools) handleFetch(ctx context.Context, args map[string]any) (string, error) {
	res, err := t.fetcher.Fetch(ctx, tools.String(args, "url"), tools.Int(args, "max_chars", fetch.DefaultMaxChars))
	if err != nil {
		return "", err
	}
	return jsonResult(res)
}

func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
