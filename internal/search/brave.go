package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nugget/aide/internal/httpkit"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave Search web API.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBrave returns a provider authenticated by apiKey. A nil client
// gets the shared transport.
func NewBrave(apiKey string, client *http.Client) *Brave {
	if client == nil {
		client = httpkit.NewClient(httpkit.WithTimeout(searchTimeout))
	}
	return &Brave{apiKey: apiKey, endpoint: braveEndpoint, client: client}
}

func (*Brave) Name() string { return "brave" }

type bravePage struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			PageAge     string `json:"page_age"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	n := opts.count()
	params := url.Values{
		"q":                {query},
		"count":            {strconv.Itoa(n)},
		"text_decorations": {"false"},
	}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}
	header := http.Header{"X-Subscription-Token": {b.apiKey}}

	var page bravePage
	if err := getJSON(ctx, b.client, b.Name(), b.endpoint, params, header, &page); err != nil {
		return nil, err
	}

	raw := make([]Result, len(page.Web.Results))
	for i, r := range page.Web.Results {
		raw[i] = Result{Title: r.Title, URL: r.URL, Snippet: r.Description, Published: r.PageAge}
	}
	return collect(n, raw), nil
}
