package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Invocation is a model-issued request to run one operation. It is
// untrusted until bound against the operation's parameters.
type Invocation struct {
	Name      string
	Arguments map[string]any
	ID        string
}

// FailureReason classifies a failed outcome.
type FailureReason string

// Failure reasons reported in outcomes.
const (
	ReasonMalformed        FailureReason = "malformed_call"
	ReasonUnknownOperation FailureReason = "unknown_operation"
	ReasonUnknownCategory  FailureReason = "unknown_category"
	ReasonInvalidArguments FailureReason = "invalid_arguments"
	ReasonExecution        FailureReason = "execution_error"
)

// Outcome is the result of one invocation.
type Outcome struct {
	Name     string
	CallID   string
	OK       bool
	Result   string
	Error    string
	Reason   FailureReason
	Duration time.Duration
}

// Text is the payload replayed to the model.
func (o Outcome) Text() string {
	if o.OK {
		return o.Result
	}
	return "Error: " + o.Error
}

// Failure builds a failed outcome.
func Failure(name, callID string, reason FailureReason, err error) Outcome {
	return Outcome{
		Name:   name,
		CallID: callID,
		Reason: reason,
		Error:  err.Error(),
	}
}

// Engine resolves invocations against a session and runs them. A
// failing or panicking operation yields a failed Outcome; Execute never
// returns an error.
type Engine struct {
	logger      *slog.Logger
	callTimeout time.Duration
}

// NewEngine creates an engine. A positive callTimeout bounds each
// operation in addition to the caller's context.
func NewEngine(logger *slog.Logger, callTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, callTimeout: callTimeout}
}

// Execute runs one invocation. Meta operations load their category into
// the session; everything else must already be materialized.
func (e *Engine) Execute(ctx context.Context, s *Session, inv Invocation) Outcome {
	start := time.Now()
	out := e.execute(ctx, s, inv)
	out.Duration = time.Since(start)

	if out.OK {
		e.logger.Debug("tool executed",
			"tool", inv.Name,
			"call_id", inv.ID,
			"duration", out.Duration.Round(time.Millisecond),
			"result_len", len(out.Result),
		)
	} else {
		e.logger.Warn("tool failed",
			"tool", inv.Name,
			"call_id", inv.ID,
			"reason", out.Reason,
			"error", out.Error,
		)
	}
	return out
}

func (e *Engine) execute(ctx context.Context, s *Session, inv Invocation) Outcome {
	if category, ok := MetaCategory(inv.Name); ok {
		lr, err := s.Load(category)
		if err != nil {
			return Failure(inv.Name, inv.ID, ReasonUnknownCategory, err)
		}
		return Outcome{Name: inv.Name, CallID: inv.ID, OK: true, Result: lr.Message()}
	}

	t, ok := s.Lookup(inv.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownOperation, inv.Name)
		if owner, known := s.registry.Owner(inv.Name); known {
			err = fmt.Errorf("%w: %s (call %s first)", ErrUnknownOperation, inv.Name, MetaName(owner))
		}
		return Failure(inv.Name, inv.ID, ReasonUnknownOperation, err)
	}

	args, err := Bind(t, inv.Arguments)
	if err != nil {
		return Failure(inv.Name, inv.ID, ReasonInvalidArguments, err)
	}

	result, err := e.run(ctx, t, args)
	if err != nil {
		return Failure(inv.Name, inv.ID, ReasonExecution, fmt.Errorf("executing %s: %w", t.Name, err))
	}
	return Outcome{Name: inv.Name, CallID: inv.ID, OK: true, Result: result}
}

type runResult struct {
	result string
	err    error
}

// run calls the handler in its own goroutine so a handler that ignores
// ctx cannot hold the turn past its deadline. An abandoned handler
// finishes in the background and its result is discarded.
func (e *Engine) run(ctx context.Context, t *Tool, args map[string]any) (string, error) {
	if e.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
	}

	done := make(chan runResult, 1)
	go func() {
		var r runResult
		defer func() {
			if p := recover(); p != nil {
				e.logger.Error("tool panicked", "tool", t.Name, "panic", p)
				r = runResult{err: fmt.Errorf("panic: %v", p)}
			}
			done <- r
		}()
		r.result, r.err = t.Handler(ctx, args)
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
			r.err = fmt.Errorf("timed out: %w", r.err)
		}
		return r.result, r.err
	case <-ctx.Done():
		e.logger.Warn("abandoning tool after cancellation", "tool", t.Name, "error", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out: %w", ctx.Err())
		}
		return "", ctx.Err()
	}
}
