package bridge

import "context"

// Bridge is the browser automation capability consumed by the executor.
// Each method performs one browser action and returns the structured
// diagnostics the endpoint captured while it ran. Implementations must
// tolerate partial or malformed endpoint responses — a bad frame is an
// error return, never a panic.
type Bridge interface {
	// Navigate loads the given URL in the session's page.
	Navigate(ctx context.Context, url string) (*ActionResult, error)

	// Click clicks the element matched by selector.
	Click(ctx context.Context, selector string) (*ActionResult, error)

	// Fill types value into the element matched by selector.
	Fill(ctx context.Context, selector, value string) (*ActionResult, error)

	// Screenshot captures the current page.
	Screenshot(ctx context.Context, params ScreenshotParams) (*ActionResult, error)

	// Snapshot returns the current DOM/accessibility snapshot.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Query probes whether selector resolves on the live page without
	// performing an action. Used for selector verification.
	Query(ctx context.Context, selector string) (*QueryResult, error)

	// ScanAccessibility runs an accessibility audit of the current page.
	ScanAccessibility(ctx context.Context) ([]A11yWarning, error)

	// MeasurePerformance collects page timing metrics.
	MeasurePerformance(ctx context.Context) (*Performance, error)
}

// Session is one live browser session: the Bridge plus the per-run
// diagnostic collectors fed by asynchronous event frames.
type Session interface {
	Bridge

	// Network returns the session's network sniffer.
	Network() *NetworkSniffer

	// Console returns the session's console spy.
	Console() *ConsoleSpy

	// Close releases the session and its browser resources.
	Close() error
}

// Dialer opens browser sessions. One session is opened per run; the
// bridge is single-session per run, so intra-run execution is strictly
// sequential.
type Dialer interface {
	NewSession(ctx context.Context) (Session, error)
}
