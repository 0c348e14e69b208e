// Package tools defines the operations available to the agent, the
// capability groups that bundle them, and the engine that executes
// model-issued invocations against a per-turn session.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ParamType is the semantic type of an operation parameter.
type ParamType string

// Parameter types understood by the binder and signature renderer.
const (
	TypeText    ParamType = "text"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeEnum    ParamType = "enum"
	TypeNumber  ParamType = "number"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param describes one named argument of an operation.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any      // applied when an optional argument is absent
	Enum        []string // allowed values for TypeEnum
}

// Handler runs an operation with bound arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a named, schema-described operation.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Param returns the parameter with the given name, or nil.
func (t *Tool) Param(name string) *Param {
	for i := range t.Params {
		if t.Params[i].Name == name {
			return &t.Params[i]
		}
	}
	return nil
}

// Group is a bundle of related tools that the model loads as a unit.
type Group struct {
	Category    string
	Description string
	Aliases     []string // alternate category names, e.g. "gmail" for "mail"
	Tools       []*Tool
}

// Registry is the static catalog of capability groups. Groups are
// registered at startup; after that the registry is read-only and safe
// to share between concurrent turns.
type Registry struct {
	groups  map[string]*Group
	aliases map[string]string
	names   map[string]string // tool name → owning category
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups:  make(map[string]*Group),
		aliases: make(map[string]string),
		names:   make(map[string]string),
	}
}

// Register adds a capability group. Tool names must be unique across
// every group, and must not collide with a meta operation name.
func (r *Registry) Register(g *Group) error {
	if g == nil || g.Category == "" {
		return fmt.Errorf("register group: category is required")
	}
	category := strings.ToLower(g.Category)
	if _, ok := r.groups[category]; ok {
		return fmt.Errorf("register group %s: category already registered", category)
	}
	if _, ok := r.aliases[category]; ok {
		return fmt.Errorf("register group %s: category already used as an alias", category)
	}

	seen := make(map[string]bool, len(g.Tools))
	for _, t := range g.Tools {
		if t == nil || t.Name == "" {
			return fmt.Errorf("register group %s: tool without a name", category)
		}
		if t.Handler == nil {
			return fmt.Errorf("register group %s: tool %s has no handler", category, t.Name)
		}
		if owner, ok := r.names[t.Name]; ok {
			return fmt.Errorf("register group %s: tool %s already registered by %s", category, t.Name, owner)
		}
		if seen[t.Name] {
			return fmt.Errorf("register group %s: duplicate tool %s", category, t.Name)
		}
		if _, ok := MetaCategory(t.Name); ok {
			return fmt.Errorf("register group %s: tool name %s is reserved for meta operations", category, t.Name)
		}
		seen[t.Name] = true
	}

	g.Category = category
	r.groups[category] = g
	r.order = append(r.order, category)
	for _, t := range g.Tools {
		r.names[t.Name] = category
	}
	for _, alias := range g.Aliases {
		alias = strings.ToLower(alias)
		if _, ok := r.groups[alias]; ok {
			continue
		}
		r.aliases[alias] = category
	}
	return nil
}

// MustRegister is Register that panics on error. Intended for
// compile-time-constant groups wired in main.
func (r *Registry) MustRegister(g *Group) {
	if err := r.Register(g); err != nil {
		panic(err)
	}
}

// Group returns the group for a category or alias.
func (r *Registry) Group(category string) (*Group, bool) {
	category = strings.ToLower(strings.TrimSpace(category))
	if canonical, ok := r.aliases[category]; ok {
		category = canonical
	}
	g, ok := r.groups[category]
	return g, ok
}

// Categories returns registered categories in registration order.
func (r *Registry) Categories() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Owner reports which category defines the named tool.
func (r *Registry) Owner(name string) (string, bool) {
	c, ok := r.names[name]
	return c, ok
}

// Meta returns the always-available bootstrap operations, one per
// category, sorted by name.
func (r *Registry) Meta() []*Tool {
	metas := make([]*Tool, 0, len(r.groups))
	for _, category := range r.order {
		g := r.groups[category]
		desc := fmt.Sprintf("Load the %s tools so they can be called.", category)
		if g.Description != "" {
			desc = fmt.Sprintf("Load the %s tools: %s", category, g.Description)
		}
		metas = append(metas, &Tool{
			Name:        MetaName(category),
			Description: desc,
		})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas
}

// MetaName returns the bootstrap operation name for a category.
func MetaName(category string) string {
	return "get_" + category + "_tools"
}

// MetaCategory reports whether name follows the get_<category>_tools
// convention and, if so, returns the category.
func MetaCategory(name string) (string, bool) {
	const prefix, suffix = "get_", "_tools"
	if len(name) <= len(prefix)+len(suffix) {
		return "", false
	}
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}
