package agent

import (
	"context"

	"github.com/nugget/aide/internal/tools"
)

// channelNotes maps ingress sources to system prompt notes describing
// how replies will be shown.
var channelNotes = map[string]string{
	"slack": "[Source: Slack. Replies are rendered as Slack mrkdwn: use *bold*, _italic_ and short bullet lists; " +
		"avoid tables and headings.]",
	"mqtt": "[Source: automation trigger over MQTT. Nobody is reading along in real time; " +
		"act on the request and report the outcome concisely.]",
}

// ChannelProvider is a ContextProvider that adds a note about the
// ingress channel of the current turn. Unknown sources add nothing.
type ChannelProvider struct{}

// NewChannelProvider creates a channel awareness context provider.
func NewChannelProvider() *ChannelProvider {
	return &ChannelProvider{}
}

// GetContext implements ContextProvider.
func (p *ChannelProvider) GetContext(ctx context.Context, _ *Request) (string, error) {
	return channelNotes[tools.SourceFromContext(ctx)], nil
}
