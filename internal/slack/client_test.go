package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a minimal Slack Web API.
type fakeAPI struct {
	mu         sync.Mutex
	calls      []string
	bodies     []map[string]string
	failUpdate bool
	userCalls  int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	method := r.URL.Path[len("/api/"):]
	f.calls = append(f.calls, method)

	body := map[string]string{}
	if r.Method == http.MethodPost {
		json.NewDecoder(r.Body).Decode(&body)
	}
	f.bodies = append(f.bodies, body)

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "chat.postMessage":
		w.Write([]byte(`{"ok":true,"ts":"1700000000.000200"}`))
	case "chat.update":
		if f.failUpdate {
			w.Write([]byte(`{"ok":false,"error":"cant_update_message"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	case "users.info":
		f.userCalls++
		if r.URL.Query().Get("user") == "U1" {
			w.Write([]byte(`{"ok":true,"user":{"id":"U1","profile":{"email":"ana@example.com"}}}`))
			return
		}
		w.Write([]byte(`{"ok":false,"error":"user_not_found"}`))
	case "apps.connections.open":
		w.Write([]byte(`{"ok":true,"url":"wss://example.invalid/link"}`))
	default:
		w.Write([]byte(`{"ok":false,"error":"unknown_method"}`))
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BotToken:   "xoxb-test",
		AppToken:   "xapp-test",
		APIURL:     srv.URL + "/api",
		HTTPClient: srv.Client(),
	})
}

func TestPostThreaded(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	ts, err := c.Post(context.Background(), "C1", "hello", "1700000000.000100")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000200", ts)
	assert.Equal(t, "1700000000.000100", api.bodies[0]["thread_ts"])
	assert.Equal(t, "hello", api.bodies[0]["text"])
}

func TestUpdateFallsBackToPost(t *testing.T) {
	api := &fakeAPI{failUpdate: true}
	c := newTestClient(t, api)

	require.NoError(t, c.Update(context.Background(), "C1", "1.0", "Executing list_emails", ""))
	assert.Equal(t, []string{"chat.update", "chat.postMessage"}, api.calls)
}

func TestUpdateInPlace(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	require.NoError(t, c.Update(context.Background(), "C1", "1.0", "Executing list_emails", ""))
	assert.Equal(t, []string{"chat.update"}, api.calls)
	assert.Equal(t, "1.0", api.bodies[0]["ts"])
}

func TestUserEmailIsCached(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	for range 2 {
		email, err := c.UserEmail(context.Background(), "U1")
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", email)
	}
	assert.Equal(t, 1, api.userCalls)

	_, err := c.UserEmail(context.Background(), "U404")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "user_not_found", apiErr.Code)
}

func TestOpenConnection(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	u, err := c.OpenConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://example.invalid/link", u)
}
