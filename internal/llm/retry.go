package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryClient retries failed completions a fixed number of times with
// exponential backoff. Context cancellation is never retried.
type RetryClient struct {
	next    Client
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// WithRetries wraps c. With retries <= 0 it returns c unchanged.
func WithRetries(c Client, retries int, backoff time.Duration, logger *slog.Logger) Client {
	if retries <= 0 {
		return c
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{next: c, retries: retries, backoff: backoff, logger: logger}
}

// Complete implements Client.
func (r *RetryClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	wait := r.backoff
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying model request", "attempt", attempt, "wait", wait, "error", lastErr)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			wait *= 2
		}

		resp, err := r.next.Complete(ctx, messages)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Unwrap returns the wrapped client.
func (r *RetryClient) Unwrap() Client {
	return r.next
}

// PingerOf returns the health check of c or of a client it wraps.
func PingerOf(c Client) (Pinger, bool) {
	for c != nil {
		if p, ok := c.(Pinger); ok {
			return p, true
		}
		u, ok := c.(interface{ Unwrap() Client })
		if !ok {
			return nil, false
		}
		c = u.Unwrap()
	}
	return nil, false
}
