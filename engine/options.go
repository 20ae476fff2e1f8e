package engine

import (
	"log/slog"

	"github.com/probelab/pilot/backoff"
	"github.com/probelab/pilot/ext"
	"github.com/probelab/pilot/middleware"
)

type options struct {
	logger     *slog.Logger
	extensions []ext.Extension
	chain      middleware.Middleware
	pacing     backoff.Strategy
	summaries  bool
}

func defaultOptions() *options {
	return &options{
		logger: slog.Default(),
		pacing: backoff.DefaultStrategy(),
	}
}

// Option configures Build.
type Option func(*options)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(o *options) { o.extensions = append(o.extensions, e) }
}

// WithMiddleware replaces the default step middleware chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.chain = middleware.Chain(mws...) }
}

// WithPacing sets the backoff strategy applied between repair rounds.
func WithPacing(s backoff.Strategy) Option {
	return func(o *options) {
		if s != nil {
			o.pacing = s
		}
	}
}

// WithSummaries enables model-generated run summaries, back-filled
// after a run reaches a terminal state.
func WithSummaries() Option {
	return func(o *options) { o.summaries = true }
}
