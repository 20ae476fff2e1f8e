// Package pilot provides an autonomous browser QA execution core:
// given a target URL and natural-language goals, an AI-driven agent
// plans a sequence of browser actions, executes them against a real
// browser via a bridge protocol, observes outcomes, repairs failures
// through a self-healing loop, and records an auditable step history.
//
// Pilot is designed as a library, not a service. Import it, configure
// a store and a browser bridge, and submit test runs.
//
// # Quick Start
//
//	eng, err := engine.Build(store, dialer, invoker, pilot.DefaultConfig())
//	if err := eng.Start(ctx); err != nil { ... }
//
//	r, err := eng.CreateRun(ctx, engine.CreateRunParams{
//	    TenantID:  "org_acme",
//	    TargetURL: "https://example.com",
//	    Goals:     []string{"verify homepage loads"},
//	})
//	err = eng.Submit(ctx, r.ID)
//
// # Architecture
//
// Pilot follows a composable store pattern where each subsystem (run,
// selector, persona, event) defines its own store interface. A single
// backend implements all of them; an in-memory backend ships for
// testing and development, and a Redis backend shares the selector
// cache across instances so concurrent runs for the same tenant
// benefit from each other's discoveries.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package pilot
