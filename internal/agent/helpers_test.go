package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/tools"
)

// mockLLM replays canned completions and records every prompt.
type mockLLM struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     [][]llm.Message
}

type mockResponse struct {
	text string
	in   int
	out  int
	err  error
}

func (m *mockLLM) Complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)

	if len(m.responses) == 0 {
		return nil, errors.New("mockLLM: no more responses")
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Completion{Text: r.text, Model: "test-model", PromptTokens: r.in, CompletionTokens: r.out}, nil
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockNotifier records delivered messages.
type mockNotifier struct {
	mu      sync.Mutex
	posts   []string
	updates []string
}

func (n *mockNotifier) Post(_ context.Context, _, text, _ string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts = append(n.posts, text)
	return "1700000000.000100", nil
}

func (n *mockNotifier) Update(_ context.Context, _, _, text, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, text)
	return nil
}

// calendarRegistry has a calendar group whose events call reports an
// empty day.
func calendarRegistry(t *testing.T) (*tools.Registry, *[]map[string]any) {
	t.Helper()
	var seen []map[string]any
	r := tools.NewRegistry()
	require.NoError(t, r.Register(&tools.Group{
		Category:    "calendar",
		Description: "read and change calendar events",
		Tools: []*tools.Tool{{
			Name:        "get_calendar_events",
			Description: "Get calendar events for a date range",
			Params: []tools.Param{
				{Name: "date_range", Type: tools.TypeText, Default: "today"},
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				seen = append(seen, args)
				return `{"status":"success","events":[],"message":"No events found for today","count":0}`, nil
			},
		}},
	}))
	return r, &seen
}
