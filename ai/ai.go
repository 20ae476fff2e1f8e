// Package ai wraps the LLM behind a narrow invoker interface so the
// planner, healer, obstacle detector, and selector finder share one
// completion path and tests can substitute a fake.
package ai

import (
	"context"
)

// Request is one completion invocation.
type Request struct {
	// System is the system prompt, persona-composed by the caller.
	System string
	// User is the user prompt.
	User string
	// Temperature overrides the model default when > 0.
	Temperature float32
	// MaxTokens caps the response length. Zero means model default.
	MaxTokens int
}

// Invoker produces one completion for one request. Implementations
// must be safe for concurrent use.
type Invoker interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f InvokerFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
