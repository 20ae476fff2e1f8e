package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes a completion event. Handlers run synchronously on
// the publishing goroutine; they must not block.
type Handler func(ctx context.Context, e *CompletionEvent)

// Bus persists completion events and fans them out to subscribers.
// Persistence happens before fan-out so a crash between the two loses
// a notification, never the record.
type Bus struct {
	store  Store
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[int]Handler
	next int
}

// NewBus creates a bus over the given store.
func NewBus(store Store, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		store:  store,
		logger: logger,
		subs:   make(map[int]Handler),
	}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	token := b.next
	b.next++
	b.subs[token] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, token)
		b.mu.Unlock()
	}
}

// Publish persists the event, then notifies subscribers. A handler
// panic is contained so one bad subscriber cannot break delivery to
// the rest.
func (b *Bus) Publish(ctx context.Context, e *CompletionEvent) error {
	if err := b.store.SaveEvent(ctx, e); err != nil {
		return fmt.Errorf("save completion event for run %s: %w", e.RunID, err)
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, e)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, h Handler, e *CompletionEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slog.String("run_id", e.RunID.String()),
				slog.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}
