package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nugget/aide/internal/httpkit"
)

// SearXNG queries the JSON API of a self-hosted SearXNG instance.
type SearXNG struct {
	endpoint string
	client   *http.Client
}

// NewSearXNG returns a provider for the instance rooted at baseURL,
// e.g. "http://localhost:8080". A nil client gets the shared transport.
func NewSearXNG(baseURL string, client *http.Client) *SearXNG {
	if client == nil {
		client = httpkit.NewClient(httpkit.WithTimeout(searchTimeout))
	}
	return &SearXNG{endpoint: strings.TrimRight(baseURL, "/") + "/search", client: client}
}

func (*SearXNG) Name() string { return "searxng" }

type searxngPage struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`

	// Unresponsive lists [engine, reason] pairs for engines that failed.
	Unresponsive [][]string `json:"unresponsive_engines"`
}

// Search has no server-side count, so results are cut client-side.
// An empty page where every engine failed is an error rather than "no
// results".
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{"q": {query}, "format": {"json"}}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	var page searxngPage
	if err := getJSON(ctx, s.client, s.Name(), s.endpoint, params, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 && len(page.Unresponsive) > 0 {
		failed := make([]string, 0, len(page.Unresponsive))
		for _, e := range page.Unresponsive {
			failed = append(failed, strings.Join(e, ": "))
		}
		return nil, fmt.Errorf("searxng: no engine answered (%s)", strings.Join(failed, ", "))
	}

	raw := make([]Result, len(page.Results))
	for i, r := range page.Results {
		raw[i] = Result{Title: r.Title, URL: r.URL, Snippet: r.Content, Published: r.PublishedDate}
	}
	return collect(opts.count(), raw), nil
}
