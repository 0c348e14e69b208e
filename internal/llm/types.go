// Package llm adapts text-generation backends to the single operation
// the agent needs: complete an ordered list of role-tagged messages into
// text, reporting token usage. No structured function-calling contract
// is used; tool calls travel inside the text.
package llm

import (
	"errors"
	"log/slog"
	"strings"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Message is one role-tagged block of prompt text.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the unified result from any backend.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	StopReason       string
}

// Options are generation parameters shared by every backend.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
}

// DefaultMaxTokens is used when Options.MaxTokens is zero.
const DefaultMaxTokens = 4096

func (o Options) maxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return DefaultMaxTokens
}

// splitSystem separates system messages from the conversation and
// merges consecutive messages that share a role, which backends with
// strict user/assistant alternation require.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	var out []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return strings.Join(system, "\n\n"), out
}
