// Package agent runs conversational turns. An Orchestrator repeatedly
// asks the model for a reply, executes the capability calls embedded
// in that reply against a per-turn tool session, and feeds the results
// back until the model answers without calls or the iteration ceiling
// is reached.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/aide/internal/events"
	"github.com/nugget/aide/internal/llm"
	"github.com/nugget/aide/internal/memory"
	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/toolcall"
	"github.com/nugget/aide/internal/tools"
	"github.com/nugget/aide/internal/usage"
)

// ErrIterationLimit is returned (wrapped) alongside a degraded
// response when a turn uses up its model calls without an answer.
var ErrIterationLimit = errors.New("iteration limit reached")

// Defaults applied when Config leaves a field zero.
const (
	DefaultMaxIterations = 10
	DefaultTurnTimeout   = 5 * time.Minute
)

// State is a step of the per-turn state machine.
type State string

// Turn states. A turn moves AwaitingModel → HasCalls → Executing →
// AwaitingModel until the model answers (Done) or the ceiling is hit.
const (
	StateAwaitingModel State = "awaiting_model"
	StateHasCalls      State = "has_calls"
	StateExecuting     State = "executing"
	StateDone          State = "done"
)

// Request is one inbound user turn.
type Request struct {
	// Identity keys conversation history (email or platform user id).
	Identity string
	Channel  string
	Thread   string
	Text     string

	// Source names the ingress: "slack", "api", "mqtt" or "cli".
	Source string
}

// Response is the result of a turn.
type Response struct {
	TurnID string `json:"turn_id"`

	// Text is the final answer with token annotation and Slack
	// formatting applied.
	Text string `json:"text"`

	// Raw is the model's final output as returned.
	Raw string `json:"-"`

	Model            string              `json:"model,omitempty"`
	PromptTokens     int                 `json:"prompt_tokens"`
	CompletionTokens int                 `json:"completion_tokens"`
	Iterations       int                 `json:"iterations"`
	Invocations      []memory.Invocation `json:"invocations,omitempty"`

	// Degraded is set when the turn stopped at the iteration ceiling.
	Degraded bool `json:"degraded,omitempty"`
}

// UsageRecorder persists per-turn token usage.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Config holds an Orchestrator's collaborators and limits.
type Config struct {
	Registry *tools.Registry
	Engine   *tools.Engine
	Model    llm.Client

	// ModelName and Provider label usage records and events.
	ModelName string
	Provider  string

	// Store receives completed turns. Nil disables persistence.
	Store memory.ConversationStore

	// Context adds blocks to the system prompt (history, channel notes).
	Context ContextProvider

	Usage UsageRecorder
	Bus   *events.Bus

	MaxIterations int
	TurnTimeout   time.Duration
	Location      *time.Location

	AssistantName string
	OwnerName     string
	OwnerEmail    string

	Logger *slog.Logger
}

// Orchestrator answers turns. It holds no per-turn state and is safe
// for concurrent use; each Run builds its own session and memory.
type Orchestrator struct {
	cfg     Config
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Engine == nil {
		cfg.Engine = tools.NewEngine(cfg.Logger, 0)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger.With("component", "agent"),
		nowFunc: time.Now,
	}
}

// turn carries the mutable state of one Run.
type turn struct {
	id       string
	req      *Request
	session  *tools.Session
	mem      InteractionMemory
	progress Progress
	context  string

	state       State
	iterations  int
	promptTok   int
	complTok    int
	model       string
	calls       int
	invocations []memory.Invocation
	nudged      bool
}

// Run answers one turn. The turn is bounded by the configured timeout;
// on any error nothing is written to the store. When the iteration
// ceiling is reached Run returns a degraded Response together with an
// error wrapping ErrIterationLimit; that response is still stored.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Response, error) {
	return o.run(ctx, req, nil)
}

func (o *Orchestrator) run(ctx context.Context, req *Request, progress Progress) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	ctx = tools.WithIdentity(ctx, req.Identity)
	ctx = tools.WithChannel(ctx, req.Channel)
	ctx = tools.WithSource(ctx, req.Source)

	t := &turn{
		id:       newTurnID(),
		req:      req,
		session:  tools.NewSession(o.cfg.Registry),
		progress: progress,
		state:    StateAwaitingModel,
	}
	log := o.logger.With("turn_id", t.id, "identity", req.Identity, "source", req.Source)
	start := o.nowFunc()

	log.Info("turn started", "channel", req.Channel, "text_len", len(req.Text))
	o.cfg.Bus.Emit(events.SourceAgent, events.KindTurnStart, map[string]any{
		"turn_id":  t.id,
		"identity": req.Identity,
		"channel":  req.Channel,
	})

	resp, err := o.loop(ctx, t, log)
	if err != nil && !errors.Is(err, ErrIterationLimit) {
		o.fail(ctx, t, start, err, log)
		return nil, err
	}

	if commitErr := o.commit(ctx, t, resp); commitErr != nil {
		o.fail(ctx, t, start, commitErr, log)
		return nil, commitErr
	}

	elapsed := o.nowFunc().Sub(start)
	log.Info("turn complete",
		"iterations", t.iterations,
		"calls", t.calls,
		"tokens_in", t.promptTok,
		"tokens_out", t.complTok,
		"degraded", resp.Degraded,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	o.cfg.Bus.Emit(events.SourceAgent, events.KindTurnComplete, map[string]any{
		"turn_id":    t.id,
		"iterations": t.iterations,
		"tokens_in":  t.promptTok,
		"tokens_out": t.complTok,
		"degraded":   resp.Degraded,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	o.recordUsage(ctx, t, false, log)
	return resp, err
}

// loop drives the state machine until Done or the ceiling.
func (o *Orchestrator) loop(ctx context.Context, t *turn, log *slog.Logger) (*Response, error) {
	if o.cfg.Context != nil {
		text, err := o.cfg.Context.GetContext(ctx, t.req)
		if err != nil {
			return nil, fmt.Errorf("build context: %w", err)
		}
		t.context = text
	}

	var extraUser string
	for t.iterations < o.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("turn aborted: %w", err)
		}
		t.iterations++
		t.state = StateAwaitingModel

		messages := o.buildMessages(t, extraUser)
		extraUser = ""

		o.cfg.Bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
			"turn_id": t.id,
			"iter":    t.iterations,
		})
		comp, err := o.cfg.Model.Complete(ctx, messages)
		if errors.Is(err, llm.ErrEmptyResponse) {
			if !t.nudged {
				log.Warn("empty model response, nudging", "iter", t.iterations)
				t.nudged = true
				extraUser = prompts.EmptyResponseNudge
				continue
			}
			log.Warn("empty model response after nudge", "iter", t.iterations)
			return o.finish(t, prompts.EmptyResponseFallback, false), nil
		}
		if err != nil {
			return nil, fmt.Errorf("model call %d: %w", t.iterations, err)
		}

		t.promptTok += comp.PromptTokens
		t.complTok += comp.CompletionTokens
		if comp.Model != "" {
			t.model = comp.Model
		}
		t.mem.AgentText(comp.Text)

		extracted := toolcall.Extract(comp.Text)
		o.cfg.Bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
			"turn_id":    t.id,
			"iter":       t.iterations,
			"model":      comp.Model,
			"tokens_in":  comp.PromptTokens,
			"tokens_out": comp.CompletionTokens,
			"calls":      len(extracted.Blocks),
		})
		log.Debug("model responded",
			"iter", t.iterations,
			"tokens_in", comp.PromptTokens,
			"tokens_out", comp.CompletionTokens,
			"calls", len(extracted.Blocks),
		)

		if !extracted.HasCalls() {
			t.state = StateDone
			return o.finish(t, comp.Text, false), nil
		}

		t.state = StateHasCalls
		if extracted.Thinking != "" {
			log.Debug("model thinking", "iter", t.iterations, "thinking", extracted.Thinking)
		}
		if t.progress != nil {
			t.progress.Thinking(ctx, extracted.Thinking)
		}
		o.execute(ctx, t, extracted, log)
	}

	log.Warn("iteration limit reached", "max_iterations", o.cfg.MaxIterations)
	t.state = StateDone
	text := fmt.Sprintf(prompts.IterationLimitResponse, o.cfg.MaxIterations)
	return o.finish(t, text, true), fmt.Errorf("%w after %d model calls", ErrIterationLimit, t.iterations)
}

// execute runs every block of one model reply in source order. Each
// block yields exactly one memory entry, successful or not.
func (o *Orchestrator) execute(ctx context.Context, t *turn, res toolcall.Result, log *slog.Logger) {
	t.state = StateExecuting
	for _, b := range res.Blocks {
		var out tools.Outcome
		if b.Err != nil {
			name := toolcall.BestEffortName(b)
			log.Warn("malformed tool call", "tool", name, "error", b.Err)
			out = tools.Failure(name, "", tools.ReasonMalformed, b.Err)
		} else {
			inv := b.Invocation
			t.calls++
			t.invocations = append(t.invocations, memory.Invocation{Name: inv.Name, Arguments: inv.Arguments})
			if t.progress != nil {
				t.progress.Executing(ctx, inv.Name)
			}
			o.cfg.Bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
				"turn_id": t.id,
				"tool":    inv.Name,
				"call_id": inv.ID,
			})
			out = o.cfg.Engine.Execute(ctx, t.session, inv)
			o.cfg.Bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
				"turn_id":     t.id,
				"tool":        inv.Name,
				"ok":          out.OK,
				"duration_ms": out.Duration.Milliseconds(),
			})
		}
		t.mem.ToolResult(out)
	}
}

// buildMessages assembles the prompt for the next model call.
func (o *Orchestrator) buildMessages(t *turn, extraUser string) []llm.Message {
	system := prompts.SystemPrompt(prompts.SystemParams{
		AssistantName: o.cfg.AssistantName,
		OwnerName:     o.cfg.OwnerName,
		OwnerEmail:    o.cfg.OwnerEmail,
		Now:           o.nowFunc().In(o.cfg.Location),
		Signatures:    t.session.Signatures(),
		Memory:        t.mem.JSON(),
		Context:       t.context,
	})

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: t.req.Text},
	}
	messages = append(messages, t.mem.Replay()...)
	if extraUser != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: extraUser})
	}
	return messages
}

func (o *Orchestrator) finish(t *turn, text string, degraded bool) *Response {
	return &Response{
		TurnID:           t.id,
		Text:             FormatForSlack(AnnotateTokens(text, t.promptTok, t.complTok)),
		Raw:              text,
		Model:            t.model,
		PromptTokens:     t.promptTok,
		CompletionTokens: t.complTok,
		Iterations:       t.iterations,
		Invocations:      t.invocations,
		Degraded:         degraded,
	}
}

// commit appends the user message and the answer in one store call.
func (o *Orchestrator) commit(ctx context.Context, t *turn, resp *Response) error {
	if o.cfg.Store == nil || t.req.Identity == "" {
		return nil
	}
	now := o.nowFunc()
	err := o.cfg.Store.Append(ctx, t.req.Identity,
		memory.Message{
			Timestamp: now,
			Role:      memory.RoleUser,
			Content:   t.req.Text,
			Channel:   t.req.Channel,
			Thread:    t.req.Thread,
		},
		memory.Message{
			Timestamp:        now,
			Role:             memory.RoleAssistant,
			Content:          resp.Text,
			Channel:          t.req.Channel,
			Thread:           t.req.Thread,
			Invocations:      resp.Invocations,
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
		},
	)
	if err != nil {
		return fmt.Errorf("store turn: %w", err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, t *turn, start time.Time, err error, log *slog.Logger) {
	elapsed := o.nowFunc().Sub(start)
	log.Error("turn failed", "error", err, "iterations", t.iterations, "elapsed", elapsed.Round(time.Millisecond))
	o.cfg.Bus.Emit(events.SourceAgent, events.KindTurnFailed, map[string]any{
		"turn_id":    t.id,
		"error":      err.Error(),
		"tokens_in":  t.promptTok,
		"tokens_out": t.complTok,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	o.recordUsage(ctx, t, true, log)
}

func (o *Orchestrator) recordUsage(ctx context.Context, t *turn, failed bool, log *slog.Logger) {
	if o.cfg.Usage == nil || t.iterations == 0 {
		return
	}
	model := t.model
	if model == "" {
		model = o.cfg.ModelName
	}
	err := o.cfg.Usage.Record(context.WithoutCancel(ctx), usage.Record{
		TurnID:       t.id,
		Identity:     t.req.Identity,
		Channel:      t.req.Channel,
		Source:       t.req.Source,
		Model:        model,
		Provider:     o.cfg.Provider,
		InputTokens:  t.promptTok,
		OutputTokens: t.complTok,
		Iterations:   t.iterations,
		Calls:        t.calls,
		Failed:       failed,
	})
	if err != nil {
		log.Warn("failed to record usage", "error", err)
	}
}

func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
