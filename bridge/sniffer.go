package bridge

import "sync"

// NetworkSniffer accumulates network events for the current step scope.
// The browser endpoint emits events asynchronously relative to the
// orchestrator's step loop, so the sniffer is safe for a concurrent
// writer and reader. Drain returns the collected events and resets the
// scope for the next step.
type NetworkSniffer struct {
	mu     sync.Mutex
	events []NetworkEvent
}

// NewNetworkSniffer creates an empty sniffer.
func NewNetworkSniffer() *NetworkSniffer {
	return &NetworkSniffer{}
}

// Observe records one network event.
func (s *NetworkSniffer) Observe(e NetworkEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// Drain returns all collected events and resets the sniffer.
func (s *NetworkSniffer) Drain() []NetworkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// Failures returns the collected 4xx/5xx events without resetting.
func (s *NetworkSniffer) Failures() []NetworkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []NetworkEvent
	for _, e := range s.events {
		if e.Failure() {
			out = append(out, e)
		}
	}
	return out
}

// Size returns the number of collected events.
func (s *NetworkSniffer) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// ConsoleSpy accumulates console messages for the current step scope.
// Same concurrency contract as NetworkSniffer.
type ConsoleSpy struct {
	mu      sync.Mutex
	entries []ConsoleEntry
}

// NewConsoleSpy creates an empty spy.
func NewConsoleSpy() *ConsoleSpy {
	return &ConsoleSpy{}
}

// Observe records one console message.
func (s *ConsoleSpy) Observe(e ConsoleEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

// Drain returns all collected messages and resets the spy.
func (s *ConsoleSpy) Drain() []ConsoleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.entries
	s.entries = nil
	return out
}

// Errors returns the collected error-level messages without resetting.
func (s *ConsoleSpy) Errors() []ConsoleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ConsoleEntry
	for _, e := range s.entries {
		if e.IsError() {
			out = append(out, e)
		}
	}
	return out
}

// Size returns the number of collected messages.
func (s *ConsoleSpy) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
