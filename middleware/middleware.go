// Package middleware provides composable middleware for step
// execution. Middleware wraps the executor's step handler
// synchronously and can modify execution (recover from panics, enforce
// timeouts, log, record metrics, add tracing).
package middleware

import (
	"context"

	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// StepContext carries the run and step a middleware is wrapping.
type StepContext struct {
	Run  *run.TestRun
	Step *step.ActionStep
	// Attempt counts prior executions of the step's logical root;
	// zero on the first try.
	Attempt int
}

// Handler is the terminal function that executes step logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the step being executed, and the next handler to
// call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, sc *StepContext, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(recover, logging, timeout) executes as:
//
//	recover → logging → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, sc *StepContext, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, sc, prev)
			}
		}
		return h(ctx)
	}
}
