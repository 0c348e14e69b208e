package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/aide/internal/agent"
	"github.com/nugget/aide/internal/buildinfo"
	"github.com/nugget/aide/internal/config"
	"github.com/nugget/aide/internal/dedup"
	"github.com/nugget/aide/internal/events"
)

// TurnHandler runs a turn and delivers its outcome. The orchestrator
// implements it.
type TurnHandler interface {
	Handle(ctx context.Context, req *agent.Request, n agent.Notifier, progress bool)
}

// statePublishInterval is how often sensor states are refreshed
// between turns.
const statePublishInterval = time.Minute

// Config configures a Bridge.
type Config struct {
	MQTT       config.MQTTConfig
	InstanceID string

	// Turns handles triggers. Nil disables trigger ingress.
	Turns TurnHandler

	// Dedup drops redelivered triggers. Nil gets a private set.
	Dedup *dedup.Set

	// Bus is mirrored to <prefix>/turns/<state>.
	Bus      *events.Bus
	Location *time.Location
	Logger   *slog.Logger
}

// Bridge owns the broker connection.
type Bridge struct {
	cfg        config.MQTTConfig
	instanceID string
	turns      TurnHandler
	seen       *dedup.Set
	bus        *events.Bus
	counters   *DailyTokens
	limiter    *rateLimiter
	logger     *slog.Logger

	mu  sync.RWMutex
	cm  *autopaho.ConnectionManager
	pub publisher

	// spawn runs a triggered turn; tests replace it to run inline.
	spawn func(func())
}

// New creates a Bridge but does not connect.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := int64(cfg.MQTT.RateLimitPerMinute)
	if limit <= 0 {
		limit = 60
	}
	seen := cfg.Dedup
	if seen == nil {
		seen = dedup.New(dedup.DefaultCapacity, logger)
	}
	return &Bridge{
		cfg:        cfg.MQTT,
		instanceID: cfg.InstanceID,
		turns:      cfg.Turns,
		seen:       seen,
		bus:        cfg.Bus,
		counters:   NewDailyTokens(cfg.Location),
		limiter:    newRateLimiter(limit, time.Minute, logger),
		logger:     logger,
		spawn:      func(f func()) { go f() },
	}
}

// Start connects and runs until ctx is cancelled. Reconnection is
// handled in the background.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   b.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.Broker)
			b.publishAvailability(ctx, cm, "online")
			b.publishDiscovery(ctx, cm)
			b.subscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					b.handleTrigger(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.mu.Lock()
	b.cm = cm
	b.pub = cm
	b.mu.Unlock()

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	go b.limiter.run(ctx)
	b.run(ctx)
	return nil
}

// Stop publishes "offline" and disconnects.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.RLock()
	cm := b.cm
	b.mu.RUnlock()
	if cm == nil {
		return nil
	}
	b.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up or ctx
// ends. It serves as the health probe.
func (b *Bridge) AwaitConnection(ctx context.Context) error {
	b.mu.RLock()
	cm := b.cm
	b.mu.RUnlock()
	if cm == nil {
		return fmt.Errorf("mqtt bridge not started")
	}
	return cm.AwaitConnection(ctx)
}

func (b *Bridge) publisher() publisher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pub
}

// --- Topics ---

func (b *Bridge) availabilityTopic() string {
	return b.cfg.TopicPrefix + "/availability"
}

func (b *Bridge) turnTopic(state string) string {
	return b.cfg.TopicPrefix + "/turns/" + state
}

func (b *Bridge) replyTopic(identity string) string {
	return b.cfg.TopicPrefix + "/replies/" + topicSegment(identity)
}

func (b *Bridge) stateTopic(entity string) string {
	return b.cfg.TopicPrefix + "/sensor/" + entity + "/state"
}

func (b *Bridge) discoveryTopic(entity string) string {
	return b.cfg.DiscoveryPrefix + "/sensor/" + topicSegment(b.cfg.ClientID) + "/" + entity + "/config"
}

// --- Connection callbacks ---

func (b *Bridge) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	if b.turns == nil || b.cfg.TriggerTopic == "" {
		return
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: b.cfg.TriggerTopic, QoS: 1}},
	}); err != nil {
		b.logger.Warn("mqtt subscribe failed", "topic", b.cfg.TriggerTopic, "error", err)
		return
	}
	b.logger.Info("mqtt subscribed", "topic", b.cfg.TriggerTopic)
}

func (b *Bridge) publishAvailability(ctx context.Context, pub publisher, status string) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   b.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	}
}

func (b *Bridge) publishDiscovery(ctx context.Context, pub publisher) {
	if b.cfg.DiscoveryPrefix == "" || b.cfg.DiscoveryPrefix == "none" {
		return
	}
	for _, s := range b.sensorDefinitions() {
		payload, err := json.Marshal(s.config)
		if err != nil {
			b.logger.Error("mqtt marshal discovery payload", "entity", s.entity, "error", err)
			continue
		}
		topic := b.discoveryTopic(s.entity)
		if _, err := pub.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			b.logger.Warn("mqtt discovery publish failed", "entity", s.entity, "topic", topic, "error", err)
		}
	}
}

// --- Triggers ---

func (b *Bridge) handleTrigger(ctx context.Context, topic string, payload []byte) {
	if b.turns == nil {
		return
	}
	if !b.limiter.allow() {
		return
	}
	t, err := parseTrigger(payload)
	if err != nil {
		b.logger.Warn("mqtt trigger ignored", "topic", topic, "error", err)
		return
	}
	if t.ID != "" {
		key := dedup.Key(t.ID, t.Channel, t.Identity, t.Text)
		if b.seen.CheckAndRemember(key) {
			b.bus.Emit(events.SourceMQTT, events.KindEventDuplicate, map[string]any{
				"channel": t.Channel,
				"user":    t.Identity,
			})
			b.logger.Debug("duplicate mqtt trigger skipped", "topic", topic, "key", key)
			return
		}
	}
	pub := b.publisher()
	if pub == nil {
		return
	}

	reply := t.ReplyTopic
	if reply == "" {
		reply = b.replyTopic(t.Identity)
	}
	b.bus.Emit(events.SourceMQTT, events.KindEventReceived, map[string]any{
		"channel": t.Channel,
		"user":    t.Identity,
	})
	b.logger.Info("mqtt trigger accepted", "topic", topic, "identity", t.Identity, "reply_topic", reply)

	req := &agent.Request{
		Identity: t.Identity,
		Channel:  t.Channel,
		Thread:   t.Thread,
		Text:     t.Text,
		Source:   "mqtt",
	}
	n := &replyNotifier{pub: pub, topic: reply}
	b.spawn(func() { b.turns.Handle(ctx, req, n, false) })
}

// --- Turn mirroring and sensors ---

// turnState maps agent events to the state segment of the turn topic.
func turnState(kind string) string {
	switch kind {
	case events.KindTurnStart:
		return string(agent.StateAwaitingModel)
	case events.KindToolCall:
		return string(agent.StateExecuting)
	case events.KindTurnComplete:
		return string(agent.StateDone)
	case events.KindTurnFailed:
		return "failed"
	}
	return ""
}

func (b *Bridge) run(ctx context.Context) {
	var ch <-chan events.Event
	if b.bus != nil {
		ch = b.bus.Subscribe(128)
		defer b.bus.Unsubscribe(ch)
	}

	ticker := time.NewTicker(statePublishInterval)
	defer ticker.Stop()
	b.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishStates(ctx)
		case e, ok := <-ch:
			if !ok {
				return
			}
			b.mirror(ctx, e)
		}
	}
}

func (b *Bridge) mirror(ctx context.Context, e events.Event) {
	if e.Source != events.SourceAgent {
		return
	}
	state := turnState(e.Kind)
	if state == "" {
		return
	}

	if e.Kind == events.KindTurnComplete || e.Kind == events.KindTurnFailed {
		b.counters.OnTurn(intField(e.Data, "tokens_in"), intField(e.Data, "tokens_out"),
			e.Kind == events.KindTurnFailed)
		defer b.publishStates(ctx)
	}

	pub := b.publisher()
	if pub == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Debug("mqtt marshal turn event", "kind", e.Kind, "error", err)
		return
	}
	if _, err := pub.Publish(ctx, &paho.Publish{Topic: b.turnTopic(state), Payload: payload}); err != nil {
		b.logger.Debug("mqtt turn event publish failed", "state", state, "error", err)
	}
}

func (b *Bridge) sensorStates() map[string]string {
	snap := b.counters.Snapshot()
	states := map[string]string{
		"turns_today":        strconv.FormatInt(snap.Turns, 10),
		"failed_turns_today": strconv.FormatInt(snap.Failed, 10),
		"tokens_today":       strconv.FormatInt(snap.InputTokens+snap.OutputTokens, 10),
		"version":            buildinfo.Version,
		"last_turn":          "unknown",
	}
	if !snap.LastTurn.IsZero() {
		states["last_turn"] = snap.LastTurn.Format(time.RFC3339)
	}
	return states
}

func (b *Bridge) publishStates(ctx context.Context) {
	pub := b.publisher()
	if pub == nil {
		return
	}
	for entity, value := range b.sensorStates() {
		if _, err := pub.Publish(ctx, &paho.Publish{
			Topic:   b.stateTopic(entity),
			Payload: []byte(value),
			Retain:  true,
		}); err != nil {
			b.logger.Debug("mqtt state publish failed", "entity", entity, "error", err)
		}
	}
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
