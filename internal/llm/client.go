package llm

import "context"

// Client is the model port. Implementations must be safe for
// concurrent use by independent turns.
type Client interface {
	// Complete sends the ordered messages and returns the model's text.
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}

// Pinger is implemented by backends that can cheaply verify they are
// reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
