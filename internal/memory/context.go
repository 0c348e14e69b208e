package memory

import (
	"strings"
	"time"
)

// ContextHeader opens the rendered conversation context.
const ContextHeader = "Recent conversation context:"

// maxContextChars truncates each rendered message.
const maxContextChars = 200

// RenderContext formats stored messages for the system prompt, oldest
// first. It returns "" when there is nothing to show.
//
//	Recent conversation context:
//	[2025-03-01 09:15:02] USER: what's on today?
//	[2025-03-01 09:15:09] ASSISTANT: You have two meetings...
//	  Tools used: get_calendar_tools, get_calendar_events
func RenderContext(msgs []Message, loc *time.Location) string {
	if len(msgs) == 0 {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}

	var sb strings.Builder
	sb.WriteString(ContextHeader)
	for _, m := range msgs {
		sb.WriteString("\n[")
		sb.WriteString(m.Timestamp.In(loc).Format(time.DateTime))
		sb.WriteString("] ")
		sb.WriteString(strings.ToUpper(m.Role))
		sb.WriteString(": ")
		sb.WriteString(truncate(m.Content, maxContextChars))

		if len(m.Invocations) > 0 {
			names := make([]string, len(m.Invocations))
			for i, inv := range m.Invocations {
				names[i] = inv.Name
			}
			sb.WriteString("\n  Tools used: ")
			sb.WriteString(strings.Join(names, ", "))
		}
	}
	return sb.String()
}

// truncate cuts s to n runes, appending "..." when anything was cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
