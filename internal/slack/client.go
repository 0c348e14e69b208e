// Package slack connects the agent to Slack: an Events API webhook and
// a Socket Mode connection for ingress, and a Web API client that
// posts replies and resolves user identities.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nugget/aide/internal/httpkit"
)

// DefaultAPIURL is the Slack Web API base.
const DefaultAPIURL = "https://slack.com/api/"

// APIError is a Web API response with ok=false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// Client calls the Slack Web API with a bot token.
type Client struct {
	apiURL     string
	botToken   string
	appToken   string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	emails map[string]string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BotToken string
	AppToken string

	// APIURL overrides DefaultAPIURL.
	APIURL     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a Web API client.
func NewClient(cfg ClientConfig) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpkit.NewClient(httpkit.WithTimeout(15*time.Second), httpkit.WithRetry(2, time.Second))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL:     apiURL,
		botToken:   cfg.BotToken,
		appToken:   cfg.AppToken,
		httpClient: hc,
		logger:     logger,
		emails:     make(map[string]string),
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// call POSTs a JSON body to method and decodes the reply into out.
func (c *Client) call(ctx context.Context, token, method string, body any, out okError) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("slack %s: encode: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("slack %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, method, out)
}

// get issues a form-encoded GET, used by read methods that do not
// accept JSON bodies.
func (c *Client) get(ctx context.Context, method string, params url.Values, out okError) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+method+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("slack %s: build request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out okError) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack %s: HTTP %d: %s", method, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("slack %s: decode: %w", method, err)
	}
	if ok, code := out.result(); !ok {
		return &APIError{Method: method, Code: code}
	}
	return nil
}

type okError interface {
	result() (bool, string)
}

func (r *apiResponse) result() (bool, string) { return r.OK, r.Error }

type postMessageResponse struct {
	apiResponse
	TS string `json:"ts"`
}

// Post sends text to channel, threaded under thread when set, and
// returns the new message's ts.
func (c *Client) Post(ctx context.Context, channel, text, thread string) (string, error) {
	body := map[string]string{"channel": channel, "text": text}
	if thread != "" {
		body["thread_ts"] = thread
	}
	var resp postMessageResponse
	if err := c.call(ctx, c.botToken, "chat.postMessage", body, &resp); err != nil {
		c.logger.Error("slack post failed", "channel", channel, "error", err)
		return "", err
	}
	return resp.TS, nil
}

// Update edits a posted message. When Slack rejects the edit the text
// is posted as a new message instead.
func (c *Client) Update(ctx context.Context, channel, ts, text, thread string) error {
	body := map[string]string{"channel": channel, "ts": ts, "text": text}
	var resp apiResponse
	err := c.call(ctx, c.botToken, "chat.update", body, &resp)
	if err == nil {
		return nil
	}
	c.logger.Warn("slack update failed, posting instead", "channel", channel, "ts", ts, "error", err)
	_, err = c.Post(ctx, channel, text, thread)
	return err
}

type usersInfoResponse struct {
	apiResponse
	User struct {
		ID      string `json:"id"`
		Profile struct {
			Email string `json:"email"`
		} `json:"profile"`
	} `json:"user"`
}

// UserEmail returns the profile email of a user, or "" when the
// profile has none. Results are cached for the life of the client.
func (c *Client) UserEmail(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	email, ok := c.emails[userID]
	c.mu.Unlock()
	if ok {
		return email, nil
	}

	var resp usersInfoResponse
	if err := c.get(ctx, "users.info", url.Values{"user": {userID}}, &resp); err != nil {
		return "", err
	}
	email = resp.User.Profile.Email
	if email == "" {
		c.logger.Warn("no email on slack profile", "user", userID)
	}

	c.mu.Lock()
	c.emails[userID] = email
	c.mu.Unlock()
	return email, nil
}

type connectionsOpenResponse struct {
	apiResponse
	URL string `json:"url"`
}

// OpenConnection requests a Socket Mode WebSocket URL using the app
// token.
func (c *Client) OpenConnection(ctx context.Context) (string, error) {
	if c.appToken == "" {
		return "", fmt.Errorf("slack apps.connections.open: app token is not configured")
	}
	var resp connectionsOpenResponse
	if err := c.call(ctx, c.appToken, "apps.connections.open", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}
