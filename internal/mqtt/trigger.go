package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// Trigger is an inbound turn request. A payload that is not a JSON
// object is taken as the text of a turn for the default identity.
type Trigger struct {
	// ID identifies the request for redelivery detection. Triggers
	// without one are never treated as duplicates.
	ID string `json:"id,omitempty"`

	Identity string `json:"identity"`
	Text     string `json:"text"`
	Channel  string `json:"channel,omitempty"`
	Thread   string `json:"thread,omitempty"`

	// ReplyTopic overrides <prefix>/replies/<identity>.
	ReplyTopic string `json:"reply_topic,omitempty"`
}

var errEmptyTrigger = errors.New("trigger has no text")

// defaultIdentity keys turns from plain-text triggers.
const defaultIdentity = "mqtt"

func parseTrigger(payload []byte) (Trigger, error) {
	var t Trigger
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &t); err != nil {
			return Trigger{}, err
		}
	} else {
		t.Text = trimmed
	}
	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" {
		return Trigger{}, errEmptyTrigger
	}
	if t.Identity == "" {
		t.Identity = defaultIdentity
	}
	if t.Channel == "" {
		t.Channel = "mqtt"
	}
	return t, nil
}

// topicSegment makes s safe as a single topic level.
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

// Reply is the payload published for each message a turn delivers.
type Reply struct {
	DeliveryID string    `json:"delivery_id"`
	Channel    string    `json:"channel"`
	Thread     string    `json:"thread,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"ts"`
}

// publisher is the slice of the autopaho connection manager the bridge
// publishes through.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// replyNotifier delivers a turn's messages to one reply topic. MQTT has
// no edits, so Update publishes again under the same delivery id.
type replyNotifier struct {
	pub   publisher
	topic string
}

func (n *replyNotifier) Post(ctx context.Context, channel, text, thread string) (string, error) {
	id := uuid.NewString()
	return id, n.publish(ctx, Reply{DeliveryID: id, Channel: channel, Thread: thread, Text: text})
}

func (n *replyNotifier) Update(ctx context.Context, channel, deliveryID, text, thread string) error {
	return n.publish(ctx, Reply{DeliveryID: deliveryID, Channel: channel, Thread: thread, Text: text})
}

func (n *replyNotifier) publish(ctx context.Context, r Reply) error {
	r.Timestamp = time.Now().UTC()
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = n.pub.Publish(ctx, &paho.Publish{Topic: n.topic, Payload: data, QoS: 1})
	return err
}

// rateLimiter drops triggers beyond limit per interval. The hot path
// is lock-free.
type rateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *rateLimiter {
	return &rateLimiter{limit: limit, interval: interval, logger: logger}
}

// run resets the window every interval until ctx ends.
func (r *rateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reset()
		}
	}
}

func (r *rateLimiter) reset() {
	count := r.count.Swap(0)
	if dropped := r.dropped.Swap(0); dropped > 0 {
		r.logger.Warn("mqtt triggers dropped by rate limit",
			"received", count,
			"dropped", dropped,
			"limit", r.limit,
			"interval", r.interval.String(),
		)
	}
}

func (r *rateLimiter) allow() bool {
	if r.count.Add(1) > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
