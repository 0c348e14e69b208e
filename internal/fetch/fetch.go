// Package fetch backs the fetch_web_page operation: it downloads a
// page and reduces it to readable text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nugget/aide/internal/httpkit"
)

const (
	// DefaultTimeout bounds a single page download.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps how much of a response body is read.
	DefaultMaxBytes int64 = 5 << 20

	// DefaultMaxChars caps the text handed back to the model.
	DefaultMaxChars = 50000
)

const acceptHeader = "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5"

// Page is the readable form of a downloaded URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Length      int    `json:"length"`
	StatusCode  int    `json:"status_code"`
}

// Fetcher downloads pages. It is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New returns a Fetcher using client, or a shared-transport client
// with DefaultTimeout when client is nil.
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = httpkit.NewClient(httpkit.WithTimeout(DefaultTimeout))
	}
	return &Fetcher{client: client, maxBytes: DefaultMaxBytes}
}

// normalizeURL defaults a bare host to https and rejects anything that
// is not http or https.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("fetch: url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("fetch: url %q has no host", raw)
	}
	return u.String(), nil
}

// Fetch downloads rawURL and returns at most maxChars characters of
// readable text. maxChars <= 0 means DefaultMaxChars.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: HTTP %d: %s", target, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 256))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", target, err)
	}

	page := &Page{
		URL:         target,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	switch mediaType(page.ContentType) {
	case "text/html", "application/xhtml+xml":
		page.Title, page.Content = readable(string(body))
	case "text/plain":
		page.Content = string(body)
	default:
		if !utf8.Valid(body) {
			page.Content = fmt.Sprintf("Binary content (%s), %d bytes", page.ContentType, len(body))
			page.Length = len(body)
			return page, nil
		}
		page.Content = string(body)
	}

	page.Content, page.Truncated = clip(page.Content, maxChars)
	page.Length = len(page.Content)
	return page, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// clip cuts s to at most n runes.
func clip(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
