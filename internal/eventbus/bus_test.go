package eventbus

import (
	"context"
	"testing"
)

func TestRenderCoalescesMultipleEmits(t *testing.T) {
	b := New(4)
	ctx := context.Background()
	b.Emit(ctx, Event{Kind: KindRender})
	b.Emit(ctx, Event{Kind: KindRender})
	b.Emit(ctx, Event{Kind: KindRender})

	if !b.ConsumeRender() {
		t.Fatalf("expected a pending render")
	}
	if b.ConsumeRender() {
		t.Fatalf("render flag must reset after consumption")
	}
}

func TestNonRenderEventsQueueInOrder(t *testing.T) {
	b := New(4)
	ctx := context.Background()
	b.Emit(ctx, Event{Kind: KindCall, Command: "first"})
	b.Emit(ctx, Event{Kind: KindCall, Command: "second"})

	e1, ok := b.Recv(ctx)
	if !ok || e1.Command != "first" {
		t.Fatalf("expected first event, got %+v", e1)
	}
	e2, ok := b.Recv(ctx)
	if !ok || e2.Command != "second" {
		t.Fatalf("expected second event, got %+v", e2)
	}
}

func TestTryRecvOnEmptyBus(t *testing.T) {
	b := New(1)
	if _, ok := b.TryRecv(); ok {
		t.Fatalf("expected empty bus to report no event")
	}
}

func TestRecvRespectsCancellation(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.Recv(ctx); ok {
		t.Fatalf("expected Recv to report false on a cancelled context")
	}
}
