package prompts

import (
	"strings"
	"testing"
	"time"
)

func TestSystemPrompt(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	got := SystemPrompt(SystemParams{
		AssistantName: "Viral",
		OwnerName:     "Ann",
		OwnerEmail:    "ann@example.com",
		Now:           now,
		Signatures:    `[{"name": "get_calendar_tools"}]`,
		Memory:        `[{"type": "agent_response"}]`,
		Context:       "Recent conversation context:\n[2025-02-28 10:00:00] USER: hi",
	})

	for _, want := range []string{
		"You are Viral,",
		"personal assistant of Ann (email: ann@example.com)",
		"<tool_call>",
		"Today's Date and Time: Saturday, March 1, 2025 09:30 UTC",
		"<tools>\n[{\"name\": \"get_calendar_tools\"}]\n</tools>",
		"Current interaction context:\n[{\"type\": \"agent_response\"}]",
		"Recent conversation context:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	// Context comes after the interaction memory.
	if strings.Index(got, "Current interaction context") > strings.Index(got, "Recent conversation context") {
		t.Error("conversation context should follow interaction memory")
	}
}

func TestSystemPrompt_Minimal(t *testing.T) {
	got := SystemPrompt(SystemParams{Now: time.Now()})
	if !strings.HasPrefix(got, "You are aide, a function calling assistant. Be proactive") {
		t.Errorf("unexpected prefix: %q", got[:80])
	}
	if strings.Contains(got, "Current interaction context") {
		t.Error("empty memory should be omitted")
	}
}

func TestToolResult(t *testing.T) {
	if got := ToolResult("list_emails", "[]"); got != "Tool list_emails returned: []" {
		t.Errorf("ToolResult = %q", got)
	}
}
