package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/tools"
)

func TestInteractionMemoryReplayOrder(t *testing.T) {
	var m InteractionMemory
	assert.Empty(t, m.JSON())

	m.AgentText("thinking <tool_call>...</tool_call>")
	m.ToolResult(tools.Outcome{Name: "get_mail_tools", CallID: "1", OK: true, Result: "Loaded mail tools successfully: list_emails"})
	m.ToolResult(tools.Outcome{Name: "list_emails", CallID: "2", Error: "imap down"})

	replay := m.Replay()
	require.Len(t, replay, 3)
	assert.Equal(t, llm.RoleAssistant, replay[0].Role)
	assert.Equal(t, llm.RoleUser, replay[1].Role)
	assert.Equal(t, "Tool list_emails returned: Error: imap down", replay[2].Content)

	var decoded []Entry
	require.NoError(t, json.Unmarshal([]byte(m.JSON()), &decoded))
	assert.Equal(t, m.Entries(), decoded)
	assert.Equal(t, EntryToolResult, decoded[1].Type)
}

func TestFormatForSlack(t *testing.T) {
	assert.Equal(t, "*a* and *b c*", FormatForSlack("**a** and **b c**"))
	assert.Equal(t, "no bold *here", FormatForSlack("no bold *here"))
	assert.Equal(t, "x\n\n[Tokens: 3 in, 4 out]", AnnotateTokens("x", 3, 4))
}
