package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// Client is a browser bridge session that communicates with a remote
// automation endpoint over WebSocket. It implements Session.
type Client struct {
	url    string
	codec  Codec
	logger *slog.Logger

	callTimeout time.Duration

	conn   net.Conn
	mu     sync.Mutex // guards writes to conn
	closed atomic.Bool

	// Request-response correlation: frame ID → chan *Frame.
	pending sync.Map

	network *NetworkSniffer
	console *ConsoleSpy
}

// Option configures a Client.
type Option func(*Client)

// WithCodec selects the frame codec ("json" or "msgpack").
func WithCodec(name string) Option {
	return func(c *Client) { c.codec = GetCodec(name) }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCallTimeout sets the default deadline for a single bridge call
// when the caller's context carries none.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// Dial connects to a browser automation endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:         url,
		codec:       &JSONCodec{},
		logger:      slog.Default(),
		callTimeout: 30 * time.Second,
		network:     NewNetworkSniffer(),
		console:     NewConsoleSpy(),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", url, err)
	}
	c.conn = conn

	go c.readLoop()

	return c, nil
}

// Network returns the session's network sniffer.
func (c *Client) Network() *NetworkSniffer { return c.network }

// Console returns the session's console spy.
func (c *Client) Console() *ConsoleSpy { return c.console }

// Close shuts the session down. Pending calls fail with ErrBridgeClosed
// semantics (their channels are abandoned; Call returns on context).
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// readLoop reads frames off the connection and dispatches them. A frame
// that fails to decode is logged and skipped — a malformed endpoint
// response must never crash the execution loop.
func (c *Client) readLoop() {
	for {
		data, err := wsutil.ReadServerBinary(c.conn)
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("bridge read loop ended", slog.String("error", err.Error()))
			}
			return
		}

		frame, decodeErr := c.codec.Decode(data)
		if decodeErr != nil {
			c.logger.Warn("bridge: dropping malformed frame",
				slog.String("error", decodeErr.Error()),
			)
			continue
		}

		c.dispatch(frame)
	}
}

// dispatch routes one decoded frame.
func (c *Client) dispatch(frame *Frame) {
	switch frame.Type {
	case FrameResponse, FrameErr:
		if ch, ok := c.pending.LoadAndDelete(frame.CorrelID); ok {
			ch.(chan *Frame) <- frame
		} else {
			c.logger.Debug("bridge: uncorrelated response", slog.String("correl_id", frame.CorrelID))
		}

	case FrameEvent:
		c.dispatchEvent(frame)

	case FramePing:
		pong := &Frame{ID: uuid.NewString(), Type: FramePong, CorrelID: frame.ID, Timestamp: time.Now().UTC()}
		if err := c.send(pong); err != nil {
			c.logger.Warn("bridge: pong failed", slog.String("error", err.Error()))
		}

	default:
		// Unknown frame types are tolerated for forward compatibility.
	}
}

// dispatchEvent feeds asynchronous diagnostics into the sniffers.
// Malformed event payloads are dropped.
func (c *Client) dispatchEvent(frame *Frame) {
	switch frame.Channel {
	case ChannelNetwork:
		var e NetworkEvent
		if err := json.Unmarshal(frame.Data, &e); err != nil {
			c.logger.Debug("bridge: bad network event", slog.String("error", err.Error()))
			return
		}
		c.network.Observe(e)

	case ChannelConsole:
		var e ConsoleEntry
		if err := json.Unmarshal(frame.Data, &e); err != nil {
			c.logger.Debug("bridge: bad console event", slog.String("error", err.Error()))
			return
		}
		c.console.Observe(e)
	}
}

func (c *Client) send(frame *Frame) error {
	data, err := c.codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteClientBinary(c.conn, data)
}

// Call performs one request/response exchange.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("bridge: marshal params for %s: %w", method, err)
	}

	if _, ok := ctx.Deadline(); !ok && c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	frame := &Frame{
		ID:        uuid.NewString(),
		Type:      FrameRequest,
		Method:    method,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	ch := make(chan *Frame, 1)
	c.pending.Store(frame.ID, ch)
	defer c.pending.Delete(frame.ID)

	if sendErr := c.send(frame); sendErr != nil {
		return nil, fmt.Errorf("bridge: send %s: %w", method, sendErr)
	}

	select {
	case resp := <-ch:
		if resp.Type == FrameErr || resp.Error != nil {
			if resp.Error != nil {
				return nil, fmt.Errorf("bridge: %s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
			}
			return nil, fmt.Errorf("bridge: %s failed", method)
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("bridge: %s: %w", method, ctx.Err())
	}
}

// call unmarshals the response payload into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bridge: decode %s response: %w", method, err)
	}
	return nil
}

// ── Bridge implementation ───────────────────────────

// Navigate loads the given URL.
func (c *Client) Navigate(ctx context.Context, url string) (*ActionResult, error) {
	var res ActionResult
	if err := c.call(ctx, MethodNavigate, NavigateParams{URL: url}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Click clicks the element matched by selector.
func (c *Client) Click(ctx context.Context, selector string) (*ActionResult, error) {
	var res ActionResult
	if err := c.call(ctx, MethodClick, TargetParams{Selector: selector}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Fill types value into the element matched by selector.
func (c *Client) Fill(ctx context.Context, selector, value string) (*ActionResult, error) {
	var res ActionResult
	if err := c.call(ctx, MethodFill, FillParams{Selector: selector, Value: value}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Screenshot captures the current page.
func (c *Client) Screenshot(ctx context.Context, params ScreenshotParams) (*ActionResult, error) {
	var res ActionResult
	if err := c.call(ctx, MethodScreenshot, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Snapshot returns the current DOM/accessibility snapshot.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.call(ctx, MethodSnapshot, struct{}{}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Query probes whether selector resolves on the live page.
func (c *Client) Query(ctx context.Context, selector string) (*QueryResult, error) {
	var res QueryResult
	if err := c.call(ctx, MethodQuery, TargetParams{Selector: selector}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ScanAccessibility runs an accessibility audit of the current page.
func (c *Client) ScanAccessibility(ctx context.Context) ([]A11yWarning, error) {
	var warnings []A11yWarning
	if err := c.call(ctx, MethodA11yScan, struct{}{}, &warnings); err != nil {
		return nil, err
	}
	return warnings, nil
}

// MeasurePerformance collects page timing metrics.
func (c *Client) MeasurePerformance(ctx context.Context) (*Performance, error) {
	var perf Performance
	if err := c.call(ctx, MethodPerformance, struct{}{}, &perf); err != nil {
		return nil, err
	}
	return &perf, nil
}

var _ Session = (*Client)(nil)

// ClientDialer opens Client sessions against a fixed endpoint URL.
type ClientDialer struct {
	URL  string
	Opts []Option
}

// NewSession dials a fresh browser session.
func (d *ClientDialer) NewSession(ctx context.Context) (Session, error) {
	return Dial(ctx, d.URL, d.Opts...)
}

var _ Dialer = (*ClientDialer)(nil)
