package prompts

import (
	"fmt"
	"strings"
	"time"
)

// systemTemplate is the per-iteration system preamble. Verbs, in order:
// identity line, owner line, date/time, tool signatures, then the
// optional interaction memory and conversation context blocks.
const systemTemplate = `You are %s, a function calling assistant.%s Be proactive: infer what is needed and act, then explain.

You are provided with function signatures within <tools></tools> XML tags.
You may call one or more functions to assist with the user query. Don't make assumptions about what values to plug
into functions. Pay special attention to each property's type.
For each function call return a json object with function name and arguments within <tool_call></tool_call>
XML tags as follows:

<tool_call>
{"name": <function-name>, "arguments": <args-dict>, "id": <monotonically-increasing-id>}
</tool_call>

IMPORTANT: Only the get_<category>_tools functions are available at first. Before you can send email, manage the
calendar, contacts or documents, or search the web, call the matching loader (for example get_mail_tools or
get_calendar_tools) and wait for its result.

When you have everything you need, answer the user directly without any <tool_call> blocks.

Today's Date and Time: %s

Here are the available tools:

<tools>
%s
</tools>`

// SystemParams holds the dynamic parts of the system prompt.
type SystemParams struct {
	// AssistantName is how the assistant refers to itself.
	AssistantName string

	OwnerName  string
	OwnerEmail string

	// Now is rendered as the current date and time.
	Now time.Time

	// Signatures is the rendered tool signature block.
	Signatures string

	// Memory is the JSON rendering of this turn's interaction memory.
	Memory string

	// Context is the rendered conversation history, if any.
	Context string
}

// SystemPrompt assembles the system preamble for one model call.
func SystemPrompt(p SystemParams) string {
	name := p.AssistantName
	if name == "" {
		name = "aide"
	}

	var owner string
	switch {
	case p.OwnerName != "" && p.OwnerEmail != "":
		owner = fmt.Sprintf(" You are the personal assistant of %s (email: %s).", p.OwnerName, p.OwnerEmail)
	case p.OwnerName != "":
		owner = fmt.Sprintf(" You are the personal assistant of %s.", p.OwnerName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, systemTemplate, name, owner, FormatNow(p.Now), p.Signatures)

	if p.Memory != "" {
		sb.WriteString("\n\nCurrent interaction context:\n")
		sb.WriteString(p.Memory)
	}
	if p.Context != "" {
		sb.WriteString("\n\n")
		sb.WriteString(p.Context)
	}
	return sb.String()
}

// FormatNow renders t the way the system prompt shows the clock.
func FormatNow(t time.Time) string {
	return t.Format("Monday, January 2, 2006 15:04 MST")
}

// ToolResult renders an execution outcome as the user-role message
// replayed after the assistant text that requested it.
func ToolResult(name, result string) string {
	return fmt.Sprintf("Tool %s returned: %s", name, result)
}
