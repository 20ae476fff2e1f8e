// Package bridge implements the browser bridge protocol — a message-based
// request/response protocol for driving a remote browser automation
// session. Frames are transported over WebSocket; the payload format is
// negotiable between JSON (default) and MessagePack.
package bridge

import (
	"encoding/json"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the bridge message envelope. Every message exchanged with the
// browser automation endpoint is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g., "page.navigate").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Channel identifies the event channel for event frames
	// (e.g., "network", "console").
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in a response or error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// ── Well-known methods ──────────────────────────────

const (
	MethodNavigate    = "page.navigate"
	MethodScreenshot  = "page.screenshot"
	MethodSnapshot    = "page.snapshot"
	MethodPerformance = "page.performance"
	MethodClick       = "dom.click"
	MethodFill        = "dom.fill"
	MethodQuery       = "dom.query"
	MethodA11yScan    = "a11y.scan"
)

// ── Event channels ──────────────────────────────────

const (
	ChannelNetwork = "network"
	ChannelConsole = "console"
)

// ── Method payloads ─────────────────────────────────

// NavigateParams is the request payload for page.navigate.
type NavigateParams struct {
	URL string `json:"url" msgpack:"url"`
}

// TargetParams is the request payload for dom.click and dom.query.
type TargetParams struct {
	Selector  string `json:"selector" msgpack:"selector"`
	TimeoutMS int    `json:"timeout_ms,omitempty" msgpack:"timeout_ms,omitempty"`
}

// FillParams is the request payload for dom.fill.
type FillParams struct {
	Selector string `json:"selector" msgpack:"selector"`
	Value    string `json:"value" msgpack:"value"`
}

// ScreenshotParams is the request payload for page.screenshot.
type ScreenshotParams struct {
	FullPage bool   `json:"full_page,omitempty" msgpack:"full_page,omitempty"`
	Format   string `json:"format,omitempty" msgpack:"format,omitempty"`
}

// ActionResult is the response payload shared by navigate/click/fill/
// screenshot calls. The browser endpoint attaches whatever diagnostics
// it captured while the action ran.
type ActionResult struct {
	OK          bool           `json:"ok" msgpack:"ok"`
	URL         string         `json:"url,omitempty" msgpack:"url,omitempty"`
	Error       string         `json:"error,omitempty" msgpack:"error,omitempty"`
	Network     []NetworkEvent `json:"network,omitempty" msgpack:"network,omitempty"`
	Console     []ConsoleEntry `json:"console,omitempty" msgpack:"console,omitempty"`
	Screenshot  []byte         `json:"screenshot,omitempty" msgpack:"screenshot,omitempty"`
	Performance *Performance   `json:"performance,omitempty" msgpack:"performance,omitempty"`
}

// QueryResult is the response payload for dom.query.
type QueryResult struct {
	Found   bool `json:"found" msgpack:"found"`
	Visible bool `json:"visible" msgpack:"visible"`
	Count   int  `json:"count" msgpack:"count"`
}

// Snapshot captures the page state used for planning, selector
// resolution, and obstacle detection.
type Snapshot struct {
	URL               string    `json:"url" msgpack:"url"`
	Title             string    `json:"title,omitempty" msgpack:"title,omitempty"`
	DOM               string    `json:"dom,omitempty" msgpack:"dom,omitempty"`
	AccessibilityTree string    `json:"a11y_tree,omitempty" msgpack:"a11y_tree,omitempty"`
	CapturedAt        time.Time `json:"captured_at" msgpack:"captured_at"`
}

// ── Diagnostics ─────────────────────────────────────

// NetworkEvent is one observed network exchange.
type NetworkEvent struct {
	Method string    `json:"method" msgpack:"method"`
	URL    string    `json:"url" msgpack:"url"`
	Status int       `json:"status" msgpack:"status"`
	At     time.Time `json:"at" msgpack:"at"`
}

// Failure reports whether the exchange ended in an HTTP error.
func (e NetworkEvent) Failure() bool { return e.Status >= 400 }

// ServerError reports whether the exchange ended in a 5xx response.
func (e NetworkEvent) ServerError() bool { return e.Status >= 500 }

// ConsoleEntry is one observed browser console message.
type ConsoleEntry struct {
	Level  string    `json:"level" msgpack:"level"`
	Text   string    `json:"text" msgpack:"text"`
	Source string    `json:"source,omitempty" msgpack:"source,omitempty"`
	At     time.Time `json:"at" msgpack:"at"`
}

// IsError reports whether the entry is an error-level message.
func (c ConsoleEntry) IsError() bool { return c.Level == "error" }

// A11yWarning is one accessibility rule violation from a scan.
type A11yWarning struct {
	Rule     string `json:"rule" msgpack:"rule"`
	Severity string `json:"severity" msgpack:"severity"`
	Message  string `json:"message" msgpack:"message"`
	Selector string `json:"selector,omitempty" msgpack:"selector,omitempty"`
}

// Performance carries page timing metrics for measure_performance steps.
type Performance struct {
	LoadMS           int64 `json:"load_ms" msgpack:"load_ms"`
	DOMContentMS     int64 `json:"dom_content_ms" msgpack:"dom_content_ms"`
	FirstPaintMS     int64 `json:"first_paint_ms" msgpack:"first_paint_ms"`
	TransferredBytes int64 `json:"transferred_bytes" msgpack:"transferred_bytes"`
}
