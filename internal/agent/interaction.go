package agent

import (
	"encoding/json"

	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/tools"
)

// Interaction memory entry types.
const (
	EntryAgentText  = "agent_response"
	EntryToolResult = "tool_call"
)

// Entry is one step of a turn: either raw model output or the outcome
// of one capability call.
type Entry struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Function string `json:"function,omitempty"`
	CallID   string `json:"id,omitempty"`
	Result   string `json:"result,omitempty"`
}

// InteractionMemory is the append-only log of a single turn. It is
// owned by that turn and is not safe for concurrent use.
type InteractionMemory struct {
	entries []Entry
}

// AgentText appends raw model output.
func (m *InteractionMemory) AgentText(content string) {
	m.entries = append(m.entries, Entry{Type: EntryAgentText, Content: content})
}

// ToolResult appends an execution outcome.
func (m *InteractionMemory) ToolResult(o tools.Outcome) {
	m.entries = append(m.entries, Entry{
		Type:     EntryToolResult,
		Function: o.Name,
		CallID:   o.CallID,
		Result:   o.Text(),
	})
}

// Entries returns a copy of the log in append order.
func (m *InteractionMemory) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of entries.
func (m *InteractionMemory) Len() int {
	return len(m.entries)
}

// JSON renders the log for the system prompt. An empty log renders "".
func (m *InteractionMemory) JSON() string {
	if len(m.entries) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// Replay converts the log to chat messages: model output as assistant
// messages and each outcome as a user message.
func (m *InteractionMemory) Replay() []llm.Message {
	out := make([]llm.Message, 0, len(m.entries))
	for _, e := range m.entries {
		switch e.Type {
		case EntryAgentText:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
		case EntryToolResult:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: prompts.ToolResult(e.Function, e.Result)})
		}
	}
	return out
}
