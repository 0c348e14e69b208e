package agent

import (
	"context"
	"strings"
)

// ContextProvider contributes a block of text to the system prompt of
// every turn.
type ContextProvider interface {
	GetContext(ctx context.Context, req *Request) (string, error)
}

// CompositeContextProvider combines multiple context providers.
// Each provider's output is joined with blank lines. The first error
// aborts the composition.
type CompositeContextProvider struct {
	providers []ContextProvider
}

// NewCompositeContextProvider creates a composite from multiple providers.
func NewCompositeContextProvider(providers ...ContextProvider) *CompositeContextProvider {
	c := &CompositeContextProvider{}
	for _, p := range providers {
		c.Add(p)
	}
	return c
}

// Add appends a provider to the composite.
func (c *CompositeContextProvider) Add(provider ContextProvider) {
	if provider != nil {
		c.providers = append(c.providers, provider)
	}
}

// GetContext calls all providers in order and combines their output.
func (c *CompositeContextProvider) GetContext(ctx context.Context, req *Request) (string, error) {
	var parts []string
	for _, p := range c.providers {
		content, err := p.GetContext(ctx, req)
		if err != nil {
			return "", err
		}
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
