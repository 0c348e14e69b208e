package slack

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nugget/aide/internal/agent"
	"github.com/nugget/aide/internal/dedup"
)

// Envelope is an Events API request body. Socket Mode delivers the
// same shape as the payload of an events_api frame.
type Envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	Event     *Event `json:"event,omitempty"`
	EventID   string `json:"event_id,omitempty"`
}

// Event is the inner event of an event_callback.
type Event struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// TurnHandler runs a turn and delivers its outcome. The orchestrator
// implements it.
type TurnHandler interface {
	Handle(ctx context.Context, req *agent.Request, n agent.Notifier, progress bool)
}

// Identities resolves Slack users to conversation identities.
type Identities interface {
	UserEmail(ctx context.Context, userID string) (string, error)
}

// Ingress turns Slack message events into agent turns. Each accepted
// event is handled on its own goroutine; delivery retries are dropped
// by the dedup set.
type Ingress struct {
	ctx        context.Context
	turns      TurnHandler
	notifier   agent.Notifier
	identities Identities
	seen       *dedup.Set
	progress   bool
	logger     *slog.Logger

	// spawn runs a turn; tests replace it to run synchronously.
	spawn func(func())
}

// IngressConfig configures an Ingress.
type IngressConfig struct {
	Turns      TurnHandler
	Notifier   agent.Notifier
	Identities Identities
	Dedup      *dedup.Set

	// Progress posts an "Executing" status message during calls.
	Progress bool
	Logger   *slog.Logger
}

// NewIngress creates an Ingress. Turns run under ctx, so cancelling it
// aborts in-flight turns at shutdown.
func NewIngress(ctx context.Context, cfg IngressConfig) *Ingress {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seen := cfg.Dedup
	if seen == nil {
		seen = dedup.New(dedup.DefaultCapacity, logger)
	}
	return &Ingress{
		ctx:        ctx,
		turns:      cfg.Turns,
		notifier:   cfg.Notifier,
		identities: cfg.Identities,
		seen:       seen,
		progress:   cfg.Progress,
		logger:     logger.With("ingress", "slack"),
		spawn:      func(f func()) { go f() },
	}
}

// Dispatch handles a decoded envelope. It never blocks on the turn and
// returns the challenge for url_verification requests.
func (in *Ingress) Dispatch(env *Envelope) (challenge string) {
	switch env.Type {
	case "url_verification":
		return env.Challenge
	case "event_callback":
	default:
		return ""
	}

	ev := env.Event
	if ev == nil || ev.BotID != "" || ev.Subtype != "" {
		return ""
	}
	if ev.Type != "message" && ev.Type != "app_mention" {
		return ""
	}

	key := dedup.Key(ev.TS, ev.Channel, ev.User, ev.Text)
	if in.seen.CheckAndRemember(key) {
		in.logger.Debug("duplicate event skipped", "key", key)
		return ""
	}

	text := ev.Text
	if ev.Type == "app_mention" {
		text = stripMention(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	in.logger.Info("event accepted", "key", key, "channel", ev.Channel, "user", ev.User)
	in.spawn(func() { in.run(ev, text) })
	return ""
}

// DispatchJSON decodes body and dispatches it. Malformed bodies are
// logged and ignored.
func (in *Ingress) DispatchJSON(body []byte) string {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		in.logger.Warn("malformed event envelope", "error", err)
		return ""
	}
	return in.Dispatch(&env)
}

func (in *Ingress) run(ev *Event, text string) {
	req := &agent.Request{
		Identity: in.identity(ev.User),
		Channel:  ev.Channel,
		Thread:   ev.ThreadTS,
		Text:     text,
		Source:   "slack",
	}
	in.turns.Handle(in.ctx, req, in.notifier, in.progress)
}

// identity maps a user to an email, falling back to the user id so
// history still accumulates when the profile has no email.
func (in *Ingress) identity(userID string) string {
	if in.identities == nil || userID == "" {
		return userID
	}
	email, err := in.identities.UserEmail(in.ctx, userID)
	if err != nil {
		in.logger.Warn("user lookup failed", "user", userID, "error", err)
		return userID
	}
	if email == "" {
		return userID
	}
	return email
}

// stripMention drops everything up to the first ">", removing the
// leading <@U123> of an app_mention.
func stripMention(text string) string {
	if i := strings.Index(text, ">"); i >= 0 {
		return text[i+1:]
	}
	return text
}
