package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/aide/internal/memory"
)

// HistoryProvider seeds a turn with the identity's recent conversation.
type HistoryProvider struct {
	store memory.ConversationStore
	limit int
	loc   *time.Location
}

// NewHistoryProvider renders up to limit stored messages in loc.
func NewHistoryProvider(store memory.ConversationStore, limit int, loc *time.Location) *HistoryProvider {
	if limit <= 0 {
		limit = 10
	}
	return &HistoryProvider{store: store, limit: limit, loc: loc}
}

// GetContext implements ContextProvider. Turns without an identity get
// no history.
func (p *HistoryProvider) GetContext(ctx context.Context, req *Request) (string, error) {
	if req.Identity == "" {
		return "", nil
	}
	msgs, err := p.store.Recent(ctx, req.Identity, p.limit)
	if err != nil {
		return "", fmt.Errorf("load history for %s: %w", req.Identity, err)
	}
	return memory.RenderContext(msgs, p.loc), nil
}
