// Package memory provides durable per-identity conversation history.
// Completed turns are appended as user/assistant message pairs; the
// most recent messages seed the next turn's context and a retention
// window bounds how long they are kept.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Roles stored in the conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Invocation records one capability call made while answering.
type Invocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one stored conversation message.
type Message struct {
	ID               string       `json:"id"`
	Timestamp        time.Time    `json:"timestamp"`
	Role             string       `json:"role"`
	Content          string       `json:"content"`
	Channel          string       `json:"channel,omitempty"`
	Thread           string       `json:"thread,omitempty"`
	Invocations      []Invocation `json:"invocations,omitempty"`
	PromptTokens     int          `json:"prompt_tokens,omitempty"`
	CompletionTokens int          `json:"completion_tokens,omitempty"`
}

// ConversationStore persists conversation history keyed by identity
// (an email address or platform user id).
type ConversationStore interface {
	// Append stores msgs for identity as one atomic unit.
	Append(ctx context.Context, identity string, msgs ...Message) error

	// Recent returns at most limit of the newest messages, oldest first.
	Recent(ctx context.Context, identity string, limit int) ([]Message, error)

	// Prune removes messages strictly older than olderThan and returns
	// how many were removed.
	Prune(ctx context.Context, identity string, olderThan time.Time) (int, error)

	// PruneAll applies Prune to every identity.
	PruneAll(ctx context.Context, olderThan time.Time) (int, error)

	// Identities lists identities with stored history.
	Identities(ctx context.Context) ([]string, error)
}

// Store is an in-memory ConversationStore. Each identity has its own
// lock; the map lock is only held to find or create that entry.
type Store struct {
	mu       sync.Mutex
	convs    map[string]*conversation
	nowFunc  func() time.Time
	idSource func() string
}

type conversation struct {
	mu       sync.Mutex
	messages []Message
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		convs:    make(map[string]*conversation),
		nowFunc:  time.Now,
		idSource: newID,
	}
}

func (s *Store) conversation(identity string, create bool) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[identity]
	if !ok && create {
		c = &conversation{}
		s.convs[identity] = c
	}
	return c
}

// Append implements ConversationStore. Timestamps never go backwards
// within an identity: a message older than the newest stored one is
// stamped with the newest time.
func (s *Store) Append(ctx context.Context, identity string, msgs ...Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	c := s.conversation(identity, true)

	c.mu.Lock()
	defer c.mu.Unlock()

	var last time.Time
	if n := len(c.messages); n > 0 {
		last = c.messages[n-1].Timestamp
	}
	for _, m := range msgs {
		m = prepare(m, s.nowFunc, s.idSource)
		if m.Timestamp.Before(last) {
			m.Timestamp = last
		}
		last = m.Timestamp
		c.messages = append(c.messages, m)
	}
	return nil
}

// Recent implements ConversationStore.
func (s *Store) Recent(ctx context.Context, identity string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.conversation(identity, false)
	if c == nil || limit <= 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := len(c.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(c.messages)-start)
	copy(out, c.messages[start:])
	return out, nil
}

// Prune implements ConversationStore.
func (s *Store) Prune(ctx context.Context, identity string, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c := s.conversation(identity, false)
	if c == nil {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Timestamps are non-decreasing, so the expired messages are a prefix.
	n := sort.Search(len(c.messages), func(i int) bool {
		return !c.messages[i].Timestamp.Before(olderThan)
	})
	if n == 0 {
		return 0, nil
	}
	c.messages = append([]Message(nil), c.messages[n:]...)
	return n, nil
}

// PruneAll implements ConversationStore.
func (s *Store) PruneAll(ctx context.Context, olderThan time.Time) (int, error) {
	ids, err := s.Identities(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := s.Prune(ctx, id, olderThan)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Identities implements ConversationStore.
func (s *Store) Identities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// prepare fills the ID and timestamp of a message about to be stored.
func prepare(m Message, now func() time.Time, id func() string) Message {
	if m.ID == "" {
		m.ID = id()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now()
	}
	return m
}
