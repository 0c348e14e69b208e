package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nugget/aide/internal/prompts"
)

// noticeTimeout bounds delivery of a notice after the turn's own
// context may already be gone.
const noticeTimeout = 15 * time.Second

// Notifier delivers text to the user on the channel a turn came from.
type Notifier interface {
	// Post sends a new message and returns its delivery id.
	Post(ctx context.Context, channel, text, thread string) (string, error)

	// Update replaces a posted message. Implementations fall back to
	// posting a new message when the edit is rejected.
	Update(ctx context.Context, channel, deliveryID, text, thread string) error
}

// Progress receives a notice before each capability call. Thinking
// carries the text the model wrote ahead of its calls, empty when it
// wrote none.
type Progress interface {
	Thinking(ctx context.Context, text string)
	Executing(ctx context.Context, operation string)
}

// statusProgress keeps one status message per turn and edits it in
// place as calls run.
type statusProgress struct {
	n       Notifier
	channel string
	thread  string
	id      string
	note    string
	logger  *slog.Logger
}

// Thinking sets the note shown above the status line until the next
// model reply replaces it.
func (p *statusProgress) Thinking(_ context.Context, text string) {
	p.note = text
}

func (p *statusProgress) Executing(ctx context.Context, operation string) {
	text := "Executing " + operation
	if p.note != "" {
		text = p.note + "\n" + text
	}
	if p.id == "" {
		id, err := p.n.Post(ctx, p.channel, text, p.thread)
		if err != nil {
			p.logger.Warn("progress notice failed", "operation", operation, "error", err)
			return
		}
		p.id = id
		return
	}
	if err := p.n.Update(ctx, p.channel, p.id, text, p.thread); err != nil {
		p.logger.Warn("progress update failed", "operation", operation, "error", err)
	}
}

// Handle runs a turn and delivers the outcome through n: progress
// notices while calls execute, then the answer, or a generic failure
// notice when the turn fails. It is what ingress adapters run in the
// goroutine they spawn per event.
func (o *Orchestrator) Handle(ctx context.Context, req *Request, n Notifier, progress bool) {
	log := o.logger.With("identity", req.Identity, "channel", req.Channel)

	var p Progress
	if progress {
		p = &statusProgress{n: n, channel: req.Channel, thread: req.Thread, logger: log}
	}

	resp, err := o.run(ctx, req, p)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noticeTimeout)
	defer cancel()

	text := prompts.FailureNotice
	if resp != nil && (err == nil || errors.Is(err, ErrIterationLimit)) {
		text = resp.Text
	}
	if _, postErr := n.Post(sendCtx, req.Channel, text, req.Thread); postErr != nil {
		log.Error("failed to deliver reply", "error", postErr)
	}
}
