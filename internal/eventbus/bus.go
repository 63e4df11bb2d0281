package eventbus

import (
	"context"
	"sync/atomic"
)

// Bus is the bounded single-consumer channel the main loop drains. Render
// events never occupy a channel slot: Emit(Render) only bumps a counter,
// so multiple emits per tick collapse into one frame without the channel
// itself needing special-casing per Kind.
type Bus struct {
	ch      chan Event
	renders atomic.Int64
}

// New constructs a Bus with the given channel capacity. A small bound
// (e.g. 256) is enough to absorb a burst of watcher-driven Files events
// without blocking the producer goroutines for long.
func New(capacity int) *Bus {
	return &Bus{ch: make(chan Event, capacity)}
}

// Emit enqueues e. Render events are coalesced into the counter instead
// of being queued; every other Kind is sent on the channel, blocking if
// it is full (backpressure is the deliberate choice over dropping a
// filesystem delta). Emit respects ctx cancellation while blocked.
func (b *Bus) Emit(ctx context.Context, e Event) error {
	if e.Kind == KindRender || e.Kind == KindRenderPartial {
		b.renders.Add(1)
		return nil
	}
	select {
	case b.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next non-Render event, or returns false if ctx is
// done.
func (b *Bus) Recv(ctx context.Context) (Event, bool) {
	select {
	case e := <-b.ch:
		return e, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// TryRecv returns the next queued event without blocking.
func (b *Bus) TryRecv() (Event, bool) {
	select {
	case e := <-b.ch:
		return e, true
	default:
		return Event{}, false
	}
}

// ConsumeRender reports whether at least one Render was emitted since the
// last call, atomically resetting the counter to zero. The main loop
// calls this once per tick after draining available events.
func (b *Bus) ConsumeRender() bool {
	return b.renders.Swap(0) > 0
}
