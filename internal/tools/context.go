package tools

import "context"

type contextKey string

const identityKey contextKey = "identity"
const channelKey contextKey = "channel"

// WithIdentity adds the requesting user's identity to the context so
// handlers can scope their work (e.g. the mailbox owner).
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the identity from the context.
// Returns "" if not set.
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(string); ok {
		return id
	}
	return ""
}

// WithChannel records the delivery channel of the current turn.
func WithChannel(ctx context.Context, channel string) context.Context {
	if channel == "" {
		return ctx
	}
	return context.WithValue(ctx, channelKey, channel)
}

// ChannelFromContext returns the delivery channel, or "".
func ChannelFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(channelKey).(string); ok {
		return c
	}
	return ""
}

const sourceKey contextKey = "source"

// WithSource records which ingress started the turn ("slack", "api",
// "mqtt", "cli").
func WithSource(ctx context.Context, source string) context.Context {
	if source == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceKey, source)
}

// SourceFromContext returns the ingress source, or "".
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey).(string); ok {
		return s
	}
	return ""
}
