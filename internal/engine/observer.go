package engine

import (
	"context"
	"sync"

	"github.com/roach88/banish/internal/ir"
)

// Observer receives trace events as a run produces them.
//
// Observe is called synchronously from the run, in seq order. A non-nil
// error halts the run with ErrCodeRecordFailed.
type Observer interface {
	Observe(ctx context.Context, ev ir.Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev ir.Event) error

func (f ObserverFunc) Observe(ctx context.Context, ev ir.Event) error { return f(ctx, ev) }

// Collector keeps every observed event in memory.
//
// Thread-safety: Collector is safe for concurrent use, so one collector may
// observe several engines.
type Collector struct {
	mu     sync.Mutex
	events []ir.Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Observe appends the event.
func (c *Collector) Observe(_ context.Context, ev ir.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []ir.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ir.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset discards all collected events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
