// Package driver resolves plain-language element targets to CSS
// selectors. The cache is consulted first and every cached selector is
// verified against the live page before use — trust, but verify. Only
// a cache miss or a failed verification costs a model call.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/probelab/pilot"
	"github.com/probelab/pilot/ai"
	"github.com/probelab/pilot/bridge"
	"github.com/probelab/pilot/selector"
)

// Resolution is a resolved selector plus where it came from.
type Resolution struct {
	Selector    string
	Description string
	// FromCache is true when the cached selector verified and no model
	// call was made.
	FromCache bool
}

// Driver is the selector resolution engine.
type Driver struct {
	cache   *selector.Cache
	invoker ai.Invoker
	logger  *slog.Logger
}

// New creates a Driver.
func New(cache *selector.Cache, invoker ai.Invoker, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cache: cache, invoker: invoker, logger: logger}
}

// selectorPayload is the model's wire representation of a found
// element.
type selectorPayload struct {
	Selector    string `json:"selector"`
	Description string `json:"description,omitempty"`
}

const findSystem = `You locate elements on a web page.
Given a plain-language target and the page content, respond with a JSON
object {"selector":...,"description":...} where selector is the most
stable CSS selector for the element. Prefer ids and data attributes
over positional selectors. If no matching element exists, return
{"selector":""}.`

// Resolve maps the target description to a selector for the current
// page. The cache fast path verifies and returns without any model
// involvement; on verification failure the entry's failure count grows
// but the entry survives — a transient overlay or slow render should
// not evict a selector with a long success history. A model-found
// selector is verified before it is cached.
func (d *Driver) Resolve(ctx context.Context, br bridge.Bridge, tenantID, target string, snap *bridge.Snapshot) (*Resolution, error) {
	cached, err := d.cache.Find(ctx, tenantID, target, snap.URL)
	if err == nil {
		if d.verify(ctx, br, cached.Selector) {
			if rerr := d.cache.RecordSuccess(ctx, tenantID, target, snap.URL); rerr != nil {
				d.logger.Warn("selector success not recorded", slog.String("error", rerr.Error()))
			}
			return &Resolution{
				Selector:    cached.Selector,
				Description: cached.Description,
				FromCache:   true,
			}, nil
		}
		if rerr := d.cache.RecordFailure(ctx, tenantID, target, snap.URL); rerr != nil {
			d.logger.Warn("selector failure not recorded", slog.String("error", rerr.Error()))
		}
		d.logger.Debug("cached selector failed verification",
			slog.String("selector", cached.Selector),
			slog.String("target", target),
		)
	} else if !errors.Is(err, pilot.ErrSelectorNotFound) {
		return nil, err
	}

	return d.find(ctx, br, tenantID, target, snap)
}

// FindWithoutVerification resolves with the live-page check deferred:
// the cache is still consulted first, and a model-found candidate is
// still cached so later RecordOutcome calls land on real counters. Used
// when no session is available to verify against.
func (d *Driver) FindWithoutVerification(ctx context.Context, tenantID, target string, snap *bridge.Snapshot) (*Resolution, error) {
	cached, err := d.cache.Find(ctx, tenantID, target, snap.URL)
	if err == nil {
		return &Resolution{
			Selector:    cached.Selector,
			Description: cached.Description,
			FromCache:   true,
		}, nil
	}
	if !errors.Is(err, pilot.ErrSelectorNotFound) {
		return nil, err
	}

	payload, err := d.ask(ctx, target, snap)
	if err != nil {
		return nil, err
	}
	if payload.Selector == "" {
		return nil, fmt.Errorf("no element matches %q: %w", target, pilot.ErrNoSelector)
	}
	if err := d.cache.Put(ctx, tenantID, target, snap.URL, payload.Selector, payload.Description); err != nil {
		d.logger.Warn("selector not cached", slog.String("error", err.Error()))
	}
	return &Resolution{Selector: payload.Selector, Description: payload.Description}, nil
}

// RecordOutcome funnels post-execution evidence into the same counters
// verification uses: a selector that verified but then failed to act
// still accumulates failures.
func (d *Driver) RecordOutcome(ctx context.Context, tenantID, target, url string, ok bool) {
	var err error
	if ok {
		err = d.cache.RecordSuccess(ctx, tenantID, target, url)
	} else {
		err = d.cache.RecordFailure(ctx, tenantID, target, url)
	}
	if err != nil {
		d.logger.Warn("selector outcome not recorded", slog.String("error", err.Error()))
	}
}

// find asks the model, verifies the candidate, and caches it on
// success.
func (d *Driver) find(ctx context.Context, br bridge.Bridge, tenantID, target string, snap *bridge.Snapshot) (*Resolution, error) {
	payload, err := d.ask(ctx, target, snap)
	if err != nil {
		return nil, err
	}
	if payload.Selector == "" {
		return nil, fmt.Errorf("no element matches %q: %w", target, pilot.ErrNoSelector)
	}

	if !d.verify(ctx, br, payload.Selector) {
		return nil, fmt.Errorf("candidate %q for %q failed verification: %w",
			payload.Selector, target, pilot.ErrNoSelector)
	}

	if err := d.cache.Put(ctx, tenantID, target, snap.URL, payload.Selector, payload.Description); err != nil {
		d.logger.Warn("selector not cached", slog.String("error", err.Error()))
	}
	return &Resolution{Selector: payload.Selector, Description: payload.Description}, nil
}

func (d *Driver) ask(ctx context.Context, target string, snap *bridge.Snapshot) (*selectorPayload, error) {
	dom := snap.DOM
	if len(dom) > 8000 {
		dom = dom[:8000]
	}
	payload, err := ai.Call[selectorPayload](ctx, d.invoker, ai.Request{
		System:      findSystem,
		User:        fmt.Sprintf("Target: %s\nPage: %s\n\n%s", target, snap.URL, dom),
		Temperature: 0.1,
	})
	if err != nil {
		if errors.Is(err, pilot.ErrMalformedPayload) {
			return nil, fmt.Errorf("element search for %q: %w", target, pilot.ErrNoSelector)
		}
		return nil, err
	}
	return &payload, nil
}

// verify probes the selector on the live page. Any failure — bridge
// error, zero matches, hidden element, or a panic inside the bridge
// implementation — reads as "not verified"; verification must never
// take down the run.
func (d *Driver) verify(ctx context.Context, br bridge.Bridge, sel string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("selector verification panicked", slog.Any("panic", r))
			ok = false
		}
	}()

	res, err := br.Query(ctx, sel)
	if err != nil {
		return false
	}
	return res.Found && res.Visible
}
