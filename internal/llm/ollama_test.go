package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
			t.Errorf("messages not passed through: %+v", req.Messages)
		}
		w.Write([]byte(`{
			"model": "llama3",
			"message": {"role": "assistant", "content": "hello there"},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 42,
			"eval_count": 3
		}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL+"/", Options{Model: "llama3"}, nil)
	resp, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello there" || resp.PromptTokens != 42 || resp.CompletionTokens != 3 {
		t.Errorf("unexpected completion: %+v", resp)
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	if err := NewOllamaClient(srv.URL, Options{}, nil).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
