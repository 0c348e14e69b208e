package agent

import (
	"fmt"
	"regexp"
)

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// FormatForSlack converts Markdown **bold** to Slack *bold*.
func FormatForSlack(text string) string {
	return boldPattern.ReplaceAllString(text, "*$1*")
}

// AnnotateTokens appends the turn's token totals to text.
func AnnotateTokens(text string, in, out int) string {
	return fmt.Sprintf("%s\n\n[Tokens: %d in, %d out]", text, in, out)
}
