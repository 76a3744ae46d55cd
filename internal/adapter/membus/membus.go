// Package membus implements the notification bus port in process. It is
// the default bus for single-process hosts and tests.
package membus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/crosstalk-ai/crosstalk/internal/port/bus"
)

// Bus is an in-memory, synchronous implementation of bus.Bus. Handlers run
// on the publisher's goroutine; handler errors are logged and isolated so
// one failing subscriber cannot affect the others.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []*subscriber
	closed bool
}

type subscriber struct {
	id      uint64
	subject string
	handler bus.Handler
}

// New creates an empty in-memory bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers data to every subscriber whose subject matches, in
// subscription order.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := append([]*subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if !subjectMatches(s.subject, subject) {
			continue
		}
		if err := s.handler(ctx, subject, data); err != nil {
			slog.Warn("bus handler failed", "subject", subject, "error", err)
		}
	}
	return nil
}

// Subscribe registers a handler for the given subject. A trailing ".>"
// matches any suffix. The returned cancel removes the registration; after
// cancel returns the handler is never invoked again.
func (b *Bus) Subscribe(_ context.Context, subject string, handler bus.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	b.nextID++
	s := &subscriber{id: b.nextID, subject: subject, handler: handler}
	b.subs = append(b.subs, s)

	id := s.id
	return func() { b.remove(id) }, nil
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Close drops all subscriptions and rejects further use.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = nil
	return nil
}

// subjectMatches reports whether a published subject matches a
// subscription pattern: exact equality, or prefix match when the pattern
// ends in ".>" (NATS-style full-wildcard tail).
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".>"); ok {
		return strings.HasPrefix(subject, prefix+".")
	}
	return false
}
