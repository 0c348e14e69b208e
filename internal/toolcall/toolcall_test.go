package toolcall

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNoCalls(t *testing.T) {
	res := Extract("You have no meetings today.")
	assert.False(t, res.HasCalls())
	assert.Empty(t, res.Thinking)
}

func TestExtractProseAndTwoCalls(t *testing.T) {
	text := `Let me check your calendar and inbox.
<tool_call>
{"name": "get_calendar_tools", "arguments": {}, "id": 1}
</tool_call>
<tool_call>{"name": "get_mail_tools", "arguments": {}, "id": "2"}</tool_call>
`
	res := Extract(text)

	assert.Equal(t, "Let me check your calendar and inbox.", res.Thinking)
	require.Len(t, res.Blocks, 2)
	require.NoError(t, res.Blocks[0].Err)
	require.NoError(t, res.Blocks[1].Err)
	assert.Equal(t, "get_calendar_tools", res.Blocks[0].Invocation.Name)
	assert.Equal(t, "1", res.Blocks[0].Invocation.ID)
	assert.Equal(t, "get_mail_tools", res.Blocks[1].Invocation.Name)
	assert.Equal(t, "2", res.Blocks[1].Invocation.ID)
}

func TestExtractMalformedSiblingDoesNotHideOthers(t *testing.T) {
	text := `<tool_call>{"name": "list_emails", "arguments": {"limit": 5}, "id": 1}</tool_call>
<tool_call>{"name": "read_email", "arguments": {"email_id": </tool_call>`

	res := Extract(text)

	require.Len(t, res.Blocks, 2)
	require.NoError(t, res.Blocks[0].Err)
	assert.Equal(t, json.Number("5"), res.Blocks[0].Invocation.Arguments["limit"])
	require.Error(t, res.Blocks[1].Err)
	assert.Contains(t, res.Blocks[1].Err.Error(), "invalid JSON")
	assert.Equal(t, "unknown", BestEffortName(res.Blocks[1]))
}

func TestExtractUnterminatedBlock(t *testing.T) {
	res := Extract(`thinking <tool_call>{"name": "a", "arguments": {}, "id": 1}`)

	assert.Equal(t, "thinking", res.Thinking)
	require.Len(t, res.Blocks, 1)
	require.Error(t, res.Blocks[0].Err)
	assert.Contains(t, res.Blocks[0].Err.Error(), "unterminated")
	assert.Equal(t, "a", BestEffortName(res.Blocks[0]))
}

func TestExtractNestedOpenMarker(t *testing.T) {
	res := Extract(`<tool_call>{"name": "a"<tool_call>{"name": "b", "arguments": {}, "id": 2}</tool_call>`)

	require.Len(t, res.Blocks, 2)
	assert.Error(t, res.Blocks[0].Err)
	require.NoError(t, res.Blocks[1].Err)
	assert.Equal(t, "b", res.Blocks[1].Invocation.Name)
}

func TestExtractTrailingProse(t *testing.T) {
	res := Extract(`<tool_call>{"name": "a", "arguments": {}, "id": 1}</tool_call> I'll wait for the result.`)

	assert.Empty(t, res.Thinking)
	require.Len(t, res.Blocks, 1)
	assert.NoError(t, res.Blocks[0].Err)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
		wantID  string
	}{
		{name: "string id", raw: `{"name":"x","arguments":{},"id":"abc"}`, wantID: "abc"},
		{name: "numeric id", raw: `{"name":"x","arguments":{},"id":7}`, wantID: "7"},
		{name: "fenced", raw: "```json\n{\"name\":\"x\",\"arguments\":{},\"id\":1}\n```", wantID: "1"},
		{name: "double encoded arguments", raw: `{"name":"x","arguments":"{\"a\":1}","id":1}`, wantID: "1"},
		{name: "missing name", raw: `{"arguments":{},"id":1}`, wantErr: `"name"`},
		{name: "missing arguments", raw: `{"name":"x","id":1}`, wantErr: `"arguments"`},
		{name: "arguments not object", raw: `{"name":"x","arguments":[1],"id":1}`, wantErr: "must be an object"},
		{name: "missing id", raw: `{"name":"x","arguments":{}}`, wantErr: `"id"`},
		{name: "bool id", raw: `{"name":"x","arguments":{},"id":true}`, wantErr: "string or number"},
		{name: "empty", raw: "  ", wantErr: "empty"},
		{name: "two objects", raw: `{"name":"x","arguments":{},"id":1}{"name":"y"}`, wantErr: "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := Parse(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", inv.Name)
			assert.Equal(t, tt.wantID, inv.ID)
			assert.NotNil(t, inv.Arguments)
		})
	}
}
