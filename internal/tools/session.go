package tools

import (
	"fmt"
	"strings"
)

// Session is the per-turn view of materialized operations. It starts
// with only the registry's meta operations and grows as the model loads
// categories. A Session is owned by one turn and is not safe for
// concurrent use; build a fresh one for every turn.
type Session struct {
	registry *Registry
	meta     []*Tool
	loaded   map[string]*Group
	order    []string
	tools    map[string]*Tool
}

// LoadResult reports the outcome of loading a category.
type LoadResult struct {
	Category      string
	Tools         []*Tool
	Signatures    string
	AlreadyLoaded bool
}

// Message is the text returned to the model for a load request.
func (lr LoadResult) Message() string {
	if lr.AlreadyLoaded {
		return fmt.Sprintf("%s tools already loaded", lr.Category)
	}
	names := make([]string, len(lr.Tools))
	for i, t := range lr.Tools {
		names[i] = t.Name
	}
	return fmt.Sprintf("Loaded %s tools successfully: %s", lr.Category, strings.Join(names, ", "))
}

// NewSession creates a session holding only the meta operations.
func NewSession(r *Registry) *Session {
	return &Session{
		registry: r,
		meta:     r.Meta(),
		loaded:   make(map[string]*Group),
		tools:    make(map[string]*Tool),
	}
}

// Load materializes a category's tools. Loading an already-loaded
// category changes nothing and reports AlreadyLoaded.
func (s *Session) Load(category string) (LoadResult, error) {
	g, ok := s.registry.Group(category)
	if !ok {
		return LoadResult{Category: category}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if _, ok := s.loaded[g.Category]; ok {
		return LoadResult{Category: g.Category, Tools: g.Tools, AlreadyLoaded: true}, nil
	}

	s.loaded[g.Category] = g
	s.order = append(s.order, g.Category)
	for _, t := range g.Tools {
		s.tools[t.Name] = t
	}
	return LoadResult{
		Category:   g.Category,
		Tools:      g.Tools,
		Signatures: Signatures(g.Tools),
	}, nil
}

// Lookup returns a materialized (non-meta) tool by name.
func (s *Session) Lookup(name string) (*Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Loaded returns loaded categories in load order.
func (s *Session) Loaded() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// IsLoaded reports whether a category (or alias) has been loaded.
func (s *Session) IsLoaded(category string) bool {
	g, ok := s.registry.Group(category)
	if !ok {
		return false
	}
	_, ok = s.loaded[g.Category]
	return ok
}

// Available returns the meta operations followed by every loaded tool,
// in load order.
func (s *Session) Available() []*Tool {
	out := make([]*Tool, 0, len(s.meta)+len(s.tools))
	out = append(out, s.meta...)
	for _, c := range s.order {
		out = append(out, s.loaded[c].Tools...)
	}
	return out
}

// Signatures renders the meta operations and each loaded category as
// separate JSON blocks.
func (s *Session) Signatures() string {
	var b strings.Builder
	b.WriteString(Signatures(s.meta))
	for _, c := range s.order {
		b.WriteString("\n\n")
		b.WriteString(Signatures(s.loaded[c].Tools))
	}
	return b.String()
}
