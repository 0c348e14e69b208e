// Package events provides a publish/subscribe bus for turn lifecycle
// events. The orchestrator and ingress adapters publish; the MQTT
// mirror and tests subscribe. Calling Publish on a nil *Bus is a
// no-op, so components do not need guard checks.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the orchestrator.
	SourceAgent = "agent"
	// SourceSlack identifies events from Slack ingress.
	SourceSlack = "slack"
	// SourceAPI identifies events from the HTTP API.
	SourceAPI = "api"
	// SourceMQTT identifies events from the MQTT trigger subscriber.
	SourceMQTT = "mqtt"
	// SourcePruner identifies events from retention pruning.
	SourcePruner = "pruner"
)

// Kind constants describe the type of event within a source.
const (
	// KindTurnStart signals the beginning of a turn.
	// Data: turn_id, identity, channel.
	KindTurnStart = "turn_start"
	// KindLLMCall signals the start of a model call.
	// Data: turn_id, iter.
	KindLLMCall = "llm_call"
	// KindLLMResponse signals completion of a model call.
	// Data: turn_id, iter, model, tokens_in, tokens_out, calls.
	KindLLMResponse = "llm_response"
	// KindToolCall signals the start of a capability call.
	// Data: turn_id, tool, call_id.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a capability call.
	// Data: turn_id, tool, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindTurnComplete signals a turn produced a final answer.
	// Data: turn_id, iterations, tokens_in, tokens_out, elapsed_ms.
	KindTurnComplete = "turn_complete"
	// KindTurnFailed signals a turn ended without an answer.
	// Data: turn_id, error, tokens_in, tokens_out, elapsed_ms.
	KindTurnFailed = "turn_failed"

	// KindEventReceived signals an accepted inbound event.
	// Data: channel, user.
	KindEventReceived = "event_received"
	// KindEventDuplicate signals a redelivered event that was dropped.
	// Data: key.
	KindEventDuplicate = "event_duplicate"

	// KindPruneComplete signals a retention pass finished.
	// Data: removed.
	KindPruneComplete = "prune_complete"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus fans events out to subscribers without ever blocking the
// publisher. A subscriber whose buffer is full misses the event and
// the bus counts the drop.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan Event]chan Event

	dropped atomic.Uint64
	now     func() time.Time
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[<-chan Event]chan Event),
		now:  time.Now,
	}
}

// Publish delivers e to every subscriber with buffer space. A nil bus
// discards it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: b.now(), Source: source, Kind: kind, Data: data})
}

// Subscribe registers a subscriber with a buffer of size buf. Every
// Subscribe needs a matching Unsubscribe.
func (b *Bus) Subscribe(buf int) <-chan Event {
	ch := make(chan Event, buf)
	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel. Unknown or
// already removed channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if send, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(send)
	}
}

// SubscriberCount reports how many subscribers are registered.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a
// subscriber was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
