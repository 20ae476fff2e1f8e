// Package store defines the aggregate persistence interface. Each
// subsystem (run, selector, persona, event) defines its own store
// interface; the composite Store composes them all. Backends: Memory
// and Redis.
package store

import (
	"context"

	"github.com/probelab/pilot/event"
	"github.com/probelab/pilot/persona"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/selector"
)

// Store is the aggregate persistence interface. Each subsystem store
// is a composable interface; a single backend implements all of them.
type Store interface {
	run.Store
	selector.Store
	persona.Store
	event.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
