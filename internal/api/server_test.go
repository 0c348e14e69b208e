package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nugget/aide/internal/agent"
	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/events"
	"github.com/nugget/aide/internal/memory"
	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/usage"
)

type fakeRunner struct {
	got  *agent.Request
	resp *agent.Response
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req *agent.Request) (*agent.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeUsage struct{}

func (fakeUsage) Summary(context.Context, time.Time, time.Time) (*usage.Summary, error) {
	return &usage.Summary{Turns: 3, TotalInputTokens: 300, TotalOutputTokens: 90}, nil
}

func (fakeUsage) SummaryByIdentity(context.Context, time.Time, time.Time) (map[string]*usage.Summary, error) {
	return map[string]*usage.Summary{"ann@example.com": {Turns: 3}}, nil
}

type fakeHealth []connwatch.Status

func (f fakeHealth) Status() []connwatch.Status { return f }

func newTestServer(cfg Config) http.Handler {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Turns == nil {
		cfg.Turns = &fakeRunner{}
	}
	return NewServer(cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestChat(t *testing.T) {
	runner := &fakeRunner{resp: &agent.Response{TurnID: "t1", Text: "It is sunny.", Iterations: 1}}
	h := newTestServer(Config{Turns: runner})

	rec := do(t, h, "POST", "/v1/chat", `{"identity":"ann@example.com","message":"weather?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	out := decode(t, rec)
	if out["text"] != "It is sunny." || out["turn_id"] != "t1" {
		t.Errorf("response = %v", out)
	}
	if runner.got.Identity != "ann@example.com" || runner.got.Source != "api" || runner.got.Channel != "api" {
		t.Errorf("request = %+v", runner.got)
	}
}

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid request body"},
		{"no identity", `{"message":"hi"}`, "identity is required"},
		{"blank message", `{"identity":"a","message":"  "}`, "message is required"},
	}
	h := newTestServer(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/v1/chat", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", rec.Body, tt.want)
			}
		})
	}
}

func TestChat_Failure(t *testing.T) {
	h := newTestServer(Config{Turns: &fakeRunner{err: errors.New("model unreachable")}})
	rec := do(t, h, "POST", "/v1/chat", `{"identity":"a","message":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "model unreachable") {
		t.Errorf("body leaks backend error: %s", body)
	}
	msg, _ := decode(t, rec)["error"].(map[string]any)
	if msg["message"] != prompts.FailureNotice {
		t.Errorf("error message = %v, want %q", msg["message"], prompts.FailureNotice)
	}
}

func TestChat_Timeout(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("turn t9: model call: %w", context.DeadlineExceeded)}
	h := newTestServer(Config{Turns: runner})
	rec := do(t, h, "POST", "/v1/chat", `{"identity":"a","message":"hi"}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "t9") {
		t.Errorf("body leaks turn detail: %s", rec.Body)
	}
}

func TestChat_DegradedStillAnswers(t *testing.T) {
	runner := &fakeRunner{
		resp: &agent.Response{Text: "partial", Degraded: true},
		err:  fmt.Errorf("turn: %w", agent.ErrIterationLimit),
	}
	h := newTestServer(Config{Turns: runner})
	rec := do(t, h, "POST", "/v1/chat", `{"identity":"a","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if out := decode(t, rec); out["degraded"] != true {
		t.Errorf("degraded = %v, want true", out["degraded"])
	}
}

func TestConversations(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.Append(ctx, "ann@example.com",
		memory.Message{Role: memory.RoleUser, Content: "hi"},
		memory.Message{Role: memory.RoleAssistant, Content: "hello"},
	); err != nil {
		t.Fatal(err)
	}
	h := newTestServer(Config{Store: store})

	rec := do(t, h, "GET", "/v1/conversations/ann@example.com?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	out := decode(t, rec)
	if out["count"] != float64(1) {
		t.Errorf("count = %v, want 1", out["count"])
	}
	msgs := out["messages"].([]any)
	if msgs[0].(map[string]any)["content"] != "hello" {
		t.Errorf("messages = %v, want the newest", msgs)
	}

	rec = do(t, h, "GET", "/v1/conversations/bob@example.com", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown identity status = %d, want 404", rec.Code)
	}

	rec = do(t, h, "GET", "/v1/conversations", "")
	if out := decode(t, rec); out["count"] != float64(1) {
		t.Errorf("list = %v", out)
	}
}

func TestConversations_NoStore(t *testing.T) {
	h := newTestServer(Config{})
	rec := do(t, h, "GET", "/v1/conversations/x", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestUsage(t *testing.T) {
	h := newTestServer(Config{Usage: fakeUsage{}})
	rec := do(t, h, "GET", "/v1/usage?hours=48", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := decode(t, rec)
	total := out["total"].(map[string]any)
	if total["Turns"] != float64(3) {
		t.Errorf("total = %v", total)
	}
	if _, ok := out["by_identity"].(map[string]any)["ann@example.com"]; !ok {
		t.Errorf("by_identity = %v", out["by_identity"])
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		health HealthReporter
		want   string
	}{
		{"no monitor", nil, "healthy"},
		{"all ready", fakeHealth{{Name: "imap", Ready: true}}, "healthy"},
		{"one down", fakeHealth{{Name: "imap", Ready: true}, {Name: "caldav", LastError: "refused"}}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(Config{Health: tt.health})
			rec := do(t, h, "GET", "/health", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := decode(t, rec)["status"]; got != tt.want {
				t.Errorf("status = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestVersionAndRoot(t *testing.T) {
	h := newTestServer(Config{})
	if out := decode(t, do(t, h, "GET", "/v1/version", "")); out["go_version"] == nil {
		t.Errorf("version = %v", out)
	}
	if out := decode(t, do(t, h, "GET", "/", "")); out["name"] != "aide" {
		t.Errorf("root = %v", out)
	}
	if rec := do(t, h, "GET", "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestSlackRoute(t *testing.T) {
	var hit bool
	slack := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = true })

	if rec := do(t, newTestServer(Config{}), "POST", "/slack/events", `{}`); rec.Code == http.StatusOK {
		t.Error("slack route served without a handler")
	}
	do(t, newTestServer(Config{Slack: slack}), "POST", "/slack/events", `{}`)
	if !hit {
		t.Error("slack handler not called")
	}
}

func TestEventsStream(t *testing.T) {
	bus := events.New()
	srv := httptest.NewServer(newTestServer(Config{Bus: bus}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The subscription is registered after headers flush.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	bus.Emit("agent", events.KindTurnStart, map[string]any{"identity": "ann@example.com"})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != 2 || lines[0] != "event: turn_start" {
		t.Fatalf("lines = %q", lines)
	}
	data := bytes.TrimPrefix([]byte(lines[1]), []byte("data: "))
	var e events.Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatal(err)
	}
	if e.Source != "agent" || e.Data["identity"] != "ann@example.com" {
		t.Errorf("event = %+v", e)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=-1", 50},
		{"limit=0", 50},
		{"limit=abc", 50},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 50); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
